// Package service contains the application use cases. TaskService accepts
// uploaded archives, answers status and listing queries, resolves result files,
// and deletes tasks. It coordinates the task registry (internal/store), the
// archive files and the background pipelines, which it reaches only through
// events, so the API layer never touches those pieces directly.
package service
