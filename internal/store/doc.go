// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying storage mechanism from the
// application's core logic. The task registry is currently memory-only
// (see internal/platform/memory), but callers depend only on TaskStore.
package store
