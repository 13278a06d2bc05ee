// Package webodm provides a client for the remote photogrammetry service
// (the WebODM Lightning / NodeODM task API).
//
// The client submits a batch of images as a new remote task, reads the task's
// status and progress, and downloads the finished results archive. The access
// token is sent as a query parameter on every call, so errors are passed
// through the redact package before they are logged or returned.
package webodm
