package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchq/dispatchq/internal/core"
	"github.com/dispatchq/dispatchq/internal/data"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	domaintask "github.com/dispatchq/dispatchq/internal/domain/task"
	"github.com/dispatchq/dispatchq/internal/observability/notify"
	"github.com/dispatchq/dispatchq/internal/service/failurenotifier"
)

// TaskServiceOptions groups dependencies for TaskService.
type TaskServiceOptions struct {
	Repo            core.TaskRepository        // Required: task repository
	Logger          *slog.Logger               // Optional: structured logger
	StatsCache      *core.StatsCacheService    // Optional: cached stats reads with best-effort invalidation
	Notifier        domaintask.Notifier        // Optional: custom task availability notifier
	NotifierOptions domaintask.NotifierOptions // Optional: configure default notifier behaviour
	FailureNotifier *failurenotifier.Service   // Optional: fan task failures out to alert sinks
}

// TaskService provides business logic for task operations including pub/sub notifications.
//
// This service manages:
// - CRUD operations for tasks
// - Atomic claiming and the running-task lifecycle (complete/fail)
// - Pause and resume of queued work
// - Pub/sub notification system for task availability
// - Goroutine management for background listeners
// - Graceful shutdown of all listeners.
type TaskService struct {
	repo            core.TaskRepository
	notifier        domaintask.Notifier
	statsCache      *core.StatsCacheService
	failureNotifier *failurenotifier.Service
	logger          *slog.Logger
}

// NewTaskService constructs a new TaskService.
func NewTaskService(opts TaskServiceOptions) (*TaskService, error) {
	if opts.Repo == nil {
		return nil, errors.New("TaskRepository is required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domaintask.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create task notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "task_service")
		logger.Debug("TaskService initialized",
			"stats_cache", opts.StatsCache != nil,
			"failure_notifier", opts.FailureNotifier.Enabled(),
		)
	}

	return &TaskService{
		repo:            opts.Repo,
		notifier:        notifier,
		statsCache:      opts.StatsCache,
		failureNotifier: opts.FailureNotifier,
		logger:          logger,
	}, nil
}

// MustNewTaskService constructs a new TaskService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewTaskService(opts TaskServiceOptions) *TaskService {
	svc, err := NewTaskService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create TaskService: %v", err))
	}
	return svc
}

// checkTaskID rejects ids that cannot match any row. A malformed UUID maps to
// ErrTaskNotFound so lookups never reach Postgres with an uncastable id.
func checkTaskID(id string) error {
	if id == "" {
		return errors.New("task id is required")
	}
	if uuid.Validate(id) != nil {
		return fmt.Errorf("task id %q is not a valid uuid: %w", id, data.ErrTaskNotFound)
	}
	return nil
}

// Create creates a new task with the given request parameters.
func (s *TaskService) Create(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
	task, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"task created",
			"id",
			task.ID,
			"name",
			task.Name,
			"status",
			task.Status,
			"priority",
			task.Priority,
		)
	}

	s.invalidateStats(ctx)

	return task, nil
}

// GetByID returns a task by its ID.
func (s *TaskService) GetByID(ctx context.Context, id string) (*model.Task, error) {
	if err := checkTaskID(id); err != nil {
		return nil, err
	}

	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task by id %s: %w", id, err)
	}
	return task, nil
}

// List returns a page of tasks with optional status filtering.
// Pagination defaults are normalized here to avoid drift across layers.
func (s *TaskService) List(ctx context.Context, opts *model.TaskListOptions) (*model.TaskList, error) {
	if opts == nil {
		opts = &model.TaskListOptions{}
	}

	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	list, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return list, nil
}

// Update applies a partial update to a task.
// Status writes through this path are an operator bypass of the guarded
// lifecycle transitions; claim and complete/fail flows never use it.
func (s *TaskService) Update(
	ctx context.Context,
	id string,
	req *model.UpdateTaskRequest,
) (*model.Task, error) {
	if err := checkTaskID(id); err != nil {
		return nil, err
	}

	task, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "task updated", "id", id, "status", task.Status)
	}

	s.invalidateStats(ctx)

	return task, nil
}

// Delete deletes a task by ID with state machine safety checks.
// Running tasks cannot be deleted; complete or fail them first.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	if err := checkTaskID(id); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "attempting to delete task", "id", id)
	}

	err := s.repo.Delete(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "failed to delete task", "id", id, "error", err)
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "task deleted successfully", "id", id)
	}

	s.invalidateStats(ctx)

	return nil
}

// ClaimNext atomically claims the highest-priority ready task for the given worker.
// Returns model.ErrNoTasksAvailable when nothing is ready to run.
func (s *TaskService) ClaimNext(ctx context.Context, workerID string) (*model.Task, error) {
	if workerID == "" {
		return nil, errors.New("worker id is required")
	}
	if uuid.Validate(workerID) != nil {
		return nil, fmt.Errorf("worker id %q is not a valid uuid", workerID)
	}

	task, err := s.repo.ClaimNext(ctx, workerID)
	if err != nil {
		if errors.Is(err, model.ErrNoTasksAvailable) {
			return nil, model.ErrNoTasksAvailable
		}
		return nil, fmt.Errorf("claim next task: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"task claimed",
			"id",
			task.ID,
			"worker_id",
			workerID,
			"priority",
			task.Priority,
		)
	}

	s.invalidateStats(ctx)

	return task, nil
}

// Pause moves a pending, scheduled, or running task to paused.
// Pausing a running task clears its claim so the worker's terminal write is rejected.
func (s *TaskService) Pause(ctx context.Context, id string) (*model.Task, error) {
	if err := checkTaskID(id); err != nil {
		return nil, err
	}

	task, err := s.repo.Pause(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pause task %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "task paused", "id", id)
	}

	s.invalidateStats(ctx)

	return task, nil
}

// Resume returns a paused task to the queue. Tasks with a future scheduled_at
// go back to scheduled; everything else becomes pending immediately.
func (s *TaskService) Resume(ctx context.Context, id string) (*model.Task, error) {
	if err := checkTaskID(id); err != nil {
		return nil, err
	}

	task, err := s.repo.Resume(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume task %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "task resumed", "id", id, "status", task.Status)
	}

	s.invalidateStats(ctx)

	return task, nil
}

// Complete marks a running task as completed with an optional result document.
func (s *TaskService) Complete(ctx context.Context, id string, result json.RawMessage) (*model.Task, error) {
	if err := checkTaskID(id); err != nil {
		return nil, err
	}

	task, err := s.repo.Complete(ctx, id, result)
	if err != nil {
		return nil, fmt.Errorf("complete task %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "task completed", "id", id)
	}

	s.invalidateStats(ctx)

	return task, nil
}

// Fail marks a running task as failed with the given error message.
func (s *TaskService) Fail(ctx context.Context, id, errMsg string) (*model.Task, error) {
	return s.FailWithDetails(ctx, id, errMsg, TaskFailureDetails{})
}

// TaskFailureDetails carries optional context for failure notifications.
// In-process callers that hold the original error can attach a classification;
// HTTP callers typically leave everything zero.
type TaskFailureDetails struct {
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// FailWithDetails marks a running task as failed and propagates optional
// context to the failure notifier.
func (s *TaskService) FailWithDetails(
	ctx context.Context,
	id, errMsg string,
	details TaskFailureDetails,
) (*model.Task, error) {
	if errMsg == "" {
		return nil, errors.New("error message required")
	}
	if err := checkTaskID(id); err != nil {
		return nil, err
	}

	task, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		return nil, fmt.Errorf("fail task %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "task failed", "id", id, "error", errMsg)
	}

	s.invalidateStats(ctx)
	s.notifyTaskFailure(ctx, task, errMsg, details)

	return task, nil
}

// notifyTaskFailure fans the failure out to alert sinks. The task row returned
// by the terminal write supplies the notification context, so no extra read is
// needed.
func (s *TaskService) notifyTaskFailure(
	ctx context.Context,
	task *model.Task,
	errMsg string,
	details TaskFailureDetails,
) {
	if !s.failureNotifier.Enabled() || task == nil {
		return
	}

	payload := notify.TaskFailurePayload{
		TaskID:     task.ID,
		TaskName:   task.Name,
		Priority:   task.Priority.String(),
		Error:      errMsg,
		ErrorClass: details.ErrorClass,
		Severity:   details.Severity,
		OccurredAt: details.OccurredAt,
		Metadata:   copyFailureMetadata(details.Metadata),
	}
	if task.WorkerID != nil {
		payload.WorkerID = *task.WorkerID
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now()
	}

	s.failureNotifier.NotifyTaskFailure(ctx, payload)
}

func copyFailureMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" || v == "" {
			continue
		}
		dst[k] = v
	}
	if len(dst) == 0 {
		return nil
	}
	return dst
}

// Stats returns per-status task counts. When a stats cache is configured a
// fresh-enough snapshot is served from it; cache errors degrade to the
// direct query.
func (s *TaskService) Stats(ctx context.Context) (*model.TaskStats, error) {
	if s.statsCache != nil {
		cached, err := s.statsCache.CachedStats(ctx)
		switch {
		case err != nil:
			if s.logger != nil {
				s.logger.WarnContext(ctx, "stats cache read failed", "error", err)
			}
		case cached != nil:
			return cached, nil
		}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get task stats: %w", err)
	}

	if s.statsCache != nil {
		if err := s.statsCache.StoreStats(ctx, stats); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "stats cache write failed", "error", err)
		}
	}

	return stats, nil
}

// invalidateStats drops the cached stats snapshot after a mutation.
// Invalidation is best-effort: a failure only means the cache stays stale
// until its TTL expires, so the error is logged and swallowed.
func (s *TaskService) invalidateStats(ctx context.Context) {
	if s.statsCache == nil {
		return
	}
	if err := s.statsCache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.DebugContext(ctx, "stats cache invalidation failed", "error", err)
	}
}

// Subscribe creates a subscription for task availability notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *TaskService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// WaitForNotification waits for a notification indicating new tasks are available.
func (s *TaskService) WaitForNotification(ctx context.Context) error {
	return s.repo.WaitForNotification(ctx)
}

// StopAllListeners stops all active task notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *TaskService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all task listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

// normalizePagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 1000, min offset: 0.
func normalizePagination(limit, offset int) paginationParams {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return paginationParams{Limit: limit, Offset: offset}
}

// paginationParams holds normalized pagination parameters.
type paginationParams struct {
	Limit  int
	Offset int
}
