package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dispatchq/dispatchq/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// TaskRepository defines the interface for task data operations.
type TaskRepository interface {
	Create(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error)
	GetByID(ctx context.Context, id string) (*model.Task, error)
	List(ctx context.Context, opts *model.TaskListOptions) (*model.TaskList, error)
	Update(ctx context.Context, id string, req *model.UpdateTaskRequest) (*model.Task, error)
	Delete(ctx context.Context, id string) error

	// ClaimNext atomically claims the highest-priority ready task for the given
	// worker. Returns model.ErrNoTasksAvailable when nothing is ready.
	ClaimNext(ctx context.Context, workerID string) (*model.Task, error)
	WaitForNotification(ctx context.Context) error

	Pause(ctx context.Context, id string) (*model.Task, error)
	Resume(ctx context.Context, id string) (*model.Task, error)
	Complete(ctx context.Context, id string, result json.RawMessage) (*model.Task, error)
	Fail(ctx context.Context, id, errMsg string) (*model.Task, error)

	Stats(ctx context.Context) (*model.TaskStats, error)
}

// WorkerRepository defines the interface for worker data operations.
type WorkerRepository interface {
	Register(ctx context.Context, req *model.RegisterWorkerRequest) (*model.Worker, error)
	GetByID(ctx context.Context, id string) (*model.Worker, error)
	List(ctx context.Context, limit, offset int) ([]*model.Worker, error)

	// Heartbeat refreshes last_heartbeat and marks the worker active.
	Heartbeat(ctx context.Context, id string) (*model.Worker, error)
	UpdateStatus(ctx context.Context, id, status string) (*model.Worker, error)
}

// RequeueAbandonedParams groups parameters for RequeueAbandonedTasks to keep param count ≤3.
type RequeueAbandonedParams struct {
	WorkerTimeout time.Duration
	BatchSize     int
}

// DeleteOldTasksParams groups parameters for DeleteOldTasks to keep param count ≤3.
type DeleteOldTasksParams struct {
	Status    model.TaskStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for task and worker cleanup operations.
type ReaperRepository interface {
	// RequeueAbandonedTasks returns running tasks whose worker has not sent a
	// heartbeat within WorkerTimeout to the pending queue, clearing claim state.
	// Processes up to BatchSize tasks per call to prevent long locks.
	// Returns the number of tasks requeued.
	RequeueAbandonedTasks(ctx context.Context, params RequeueAbandonedParams) (int64, error)

	// MarkStaleWorkersInactive flips active workers whose heartbeat is older
	// than WorkerTimeout to inactive. Returns the number of workers updated.
	MarkStaleWorkersInactive(ctx context.Context, params RequeueAbandonedParams) (int64, error)

	// DeleteOldTasks deletes terminal tasks with the given status older than MaxAge.
	// Processes up to BatchSize tasks per call to prevent long locks.
	// Returns the number of tasks deleted.
	DeleteOldTasks(ctx context.Context, params DeleteOldTasksParams) (int64, error)
}
