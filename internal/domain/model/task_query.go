package model

// TaskListOptions holds filtering and pagination options for listing tasks.
type TaskListOptions struct {
	Status *TaskStatus // Optional filter by status (pending, scheduled, running, paused, completed, failed)
	Limit  int         // Pagination limit
	Offset int         // Pagination offset
}
