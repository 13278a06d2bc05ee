// Package task drives orthomosaic tasks through their lifecycle in the
// background. Each launched task runs in its own goroutine, which extracts the
// uploaded archive, submits the images to the remote service, polls until the
// remote work ends, and downloads the result. Every state change goes through
// the task registry, which is the only state shared with request handlers.
package task
