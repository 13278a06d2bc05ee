// Package memory provides in-process implementations of the store interfaces.
// State held here is lost when the process exits.
package memory
