// Package archive manages the on-disk files of a task: the uploaded archive,
// the scratch directory it is unpacked into, and the downloaded result.
//
// Zip archives are unpacked in-process. Rar archives are handed to an external
// unrar binary whose path is configurable.
package archive
