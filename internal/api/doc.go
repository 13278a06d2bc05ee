// Package api exposes the task service over HTTP. It parses uploads and path
// parameters, translates service errors into status codes with safe messages,
// and renders the JSON bodies clients poll for progress.
//
// Middleware lives in the middleware subpackage; response and trace helpers
// shared with it live in shared.
package api
