// Package events decouples the request path from the background task machinery.
//
// The task service announces that a task was submitted or deleted by emitting a
// TaskEvent; the task manager subscribes through an EventHandler. Neither side
// imports the other.
package events
