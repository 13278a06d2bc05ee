// Package domain contains the core business entities, value objects, and
// domain logic of the application: the orthomosaic Task, its status state
// machine, and the accepted archive formats. It is independent of any specific
// infrastructure or delivery mechanism.
package domain
