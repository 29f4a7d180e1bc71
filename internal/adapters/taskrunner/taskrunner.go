// Package taskrunner provides task execution and worker lifecycle management for the dispatchq worker plane.
package taskrunner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dispatchq/dispatchq/config"
	"github.com/dispatchq/dispatchq/internal/core"
	"github.com/dispatchq/dispatchq/internal/data"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	obserrors "github.com/dispatchq/dispatchq/internal/observability/errors"
	"github.com/dispatchq/dispatchq/internal/observability/metrics"
	"github.com/dispatchq/dispatchq/internal/observability/statsd"
	"github.com/dispatchq/dispatchq/internal/service"
	"github.com/dispatchq/dispatchq/internal/service/failurenotifier"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc executes a claimed task and returns its result document.
// A non-nil error marks the task failed with the error message.
type HandlerFunc func(ctx context.Context, task *model.Task) (json.RawMessage, error)

// RunnerOptions configures the task runner adapter.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger
	Config config.WorkerConfig

	// Handlers maps task names to handlers. Tasks with no entry fall back to
	// DefaultHandler, or to EchoHandler when that is nil too.
	Handlers       map[string]HandlerFunc
	DefaultHandler HandlerFunc

	// Optional dependency injections (useful for tests/decoupling)
	TasksRepo       core.TaskRepository
	WorkersRepo     core.WorkerRepository
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// Runner hosts worker loops that register themselves, claim tasks, and
// execute them using registered handlers.
type Runner struct {
	tasks          *service.TaskService
	workers        *service.WorkerService
	logger         *slog.Logger
	metrics        statsd.Sink
	handlers       map[string]HandlerFunc
	defaultHandler HandlerFunc

	pollInterval   time.Duration
	heartbeatEvery time.Duration
	maxTasks       int
	count          int
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// NewRunner wires repositories/services and constructs a task runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && (opts.TasksRepo == nil || opts.WorkersRepo == nil) {
		return nil, errors.New("either DB or both repositories must be provided")
	}

	logger := resolveLogger(opts.Logger)

	cfg := opts.Config
	cfg.Sanitize()

	tasksRepo := opts.TasksRepo
	if tasksRepo == nil {
		tasksRepo = data.NewTaskRepo(opts.DB, data.RepoConfig{})
	}
	workersRepo := opts.WorkersRepo
	if workersRepo == nil {
		workersRepo = data.NewWorkerRepo(opts.DB)
	}

	taskSvc := service.MustNewTaskService(service.TaskServiceOptions{
		Repo:            tasksRepo,
		Logger:          opts.Logger,
		FailureNotifier: opts.FailureNotifier,
	})
	workerSvc := service.MustNewWorkerService(service.WorkerServiceOptions{
		Repo:   workersRepo,
		Logger: opts.Logger,
	})

	handlers := make(map[string]HandlerFunc, len(opts.Handlers))
	for name, h := range opts.Handlers {
		handlers[name] = h
	}
	defaultHandler := opts.DefaultHandler
	if defaultHandler == nil {
		defaultHandler = EchoHandler
	}

	return &Runner{
		tasks:          taskSvc,
		workers:        workerSvc,
		logger:         logger,
		metrics:        opts.Metrics,
		handlers:       handlers,
		defaultHandler: defaultHandler,
		pollInterval:   cfg.PollInterval(),
		heartbeatEvery: cfg.HeartbeatInterval,
		maxTasks:       cfg.MaxTasks,
		count:          cfg.Count,
	}, nil
}

// Register binds a handler to a task name, replacing any previous binding.
// It must be called before Run.
func (r *Runner) Register(name string, h HandlerFunc) {
	r.handlers[name] = h
}

// EchoHandler completes a task by echoing its payload back as the result.
// It is the fallback when no handler is registered for a task name.
func EchoHandler(_ context.Context, task *model.Task) (json.RawMessage, error) {
	return task.Payload, nil
}

// Run starts the configured number of worker loops and processes tasks until
// the context is cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting task runner",
		"workers", r.count,
		"poll_interval", r.pollInterval,
		"heartbeat_interval", r.heartbeatEvery,
		"max_tasks", r.maxTasks,
	)

	// Subscribe for queue notifications so idle workers wake early
	unsub, notify := r.tasks.Subscribe()
	defer unsub()

	g, ctx := errgroup.WithContext(ctx)
	for i := range r.count {
		g.Go(func() error {
			return r.runWorker(ctx, i+1, notify)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runWorker is a single worker loop: register, then claim and execute tasks
// until the context is cancelled or the max task count is reached. The worker
// is marked inactive on the way out regardless of how the loop ends.
func (r *Runner) runWorker(ctx context.Context, num int, notify <-chan struct{}) error {
	name := workerName(num, r.count)

	worker, err := r.workers.Register(ctx, &model.RegisterWorkerRequest{Name: name})
	if err != nil {
		return fmt.Errorf("register worker %s: %w", name, err)
	}
	defer r.markInactive(ctx, worker.ID)

	r.logger.InfoContext(ctx, "worker loop started", "worker_id", worker.ID, "name", name)

	lastHeartbeat := time.Now()
	processed := 0

	for ctx.Err() == nil {
		if time.Since(lastHeartbeat) >= r.heartbeatEvery {
			if _, err := r.workers.Heartbeat(ctx, worker.ID); err != nil {
				r.logger.WarnContext(ctx, "worker heartbeat failed", "worker_id", worker.ID, "error", err)
			} else {
				lastHeartbeat = time.Now()
			}
		}

		task, err := r.tasks.ClaimNext(ctx, worker.ID)
		switch {
		case err == nil:
			r.processTask(ctx, task)
			processed++
			if r.maxTasks > 0 && processed >= r.maxTasks {
				r.logger.InfoContext(ctx, "worker reached max tasks, retiring",
					"worker_id", worker.ID,
					"processed", processed,
				)
				return nil
			}
		case errors.Is(err, model.ErrNoTasksAvailable):
			if !r.waitForWork(ctx, notify, lastHeartbeat) {
				return nil
			}
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("claim next: %w", err)
		}
	}
	return ctx.Err()
}

// waitForWork blocks until a queue notification arrives, the poll interval
// elapses, or the context is done. The wait is capped at the next heartbeat
// due time so liveness never starves behind a long poll interval.
// Returns false when the context is done.
func (r *Runner) waitForWork(ctx context.Context, notify <-chan struct{}, lastHeartbeat time.Time) bool {
	wait := r.pollInterval
	if due := r.heartbeatEvery - time.Since(lastHeartbeat); due < wait {
		wait = due
	}
	// Floor the wait so an overdue heartbeat cannot busy-loop the claim path
	if wait < time.Second {
		wait = time.Second
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-timer.C:
		return true
	}
}

// markInactive records the worker as inactive on exit. The write uses a
// detached context so it still lands while the process is shutting down.
func (r *Runner) markInactive(ctx context.Context, workerID string) {
	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := r.workers.UpdateStatus(exitCtx, workerID, model.WorkerStatusInactive); err != nil {
		r.logger.ErrorContext(exitCtx, "mark worker inactive failed", "worker_id", workerID, "error", err)
	}
}

func (r *Runner) processTask(ctx context.Context, task *model.Task) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitTaskLifecycle(r.metrics, metrics.TaskMetric{
			Priority:   task.Priority.String(),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	result, err := r.execute(ctx, task)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "task handler failed"
		}
		details := service.TaskFailureDetails{ErrorClass: obserrors.Classify(err)}
		if _, ferr := r.tasks.FailWithDetails(ctx, task.ID, msg, details); ferr != nil {
			if errors.Is(ferr, data.ErrTaskNotRunning) {
				// The claim was revoked while we were executing (operator
				// pause or reaper requeue); the terminal write is dropped.
				r.logger.WarnContext(ctx, "task no longer running, dropping failure", "task_id", task.ID)
				emit("failed", metrics.ResultNoop, nil)
				return
			}
			r.logger.ErrorContext(ctx, "fail task error", "task_id", task.ID, "error", ferr, "original_error", err)
		}
		emit("failed", metrics.ResultError, err)
		return
	}

	if _, cerr := r.tasks.Complete(ctx, task.ID, result); cerr != nil {
		if errors.Is(cerr, data.ErrTaskNotRunning) {
			r.logger.WarnContext(ctx, "task no longer running, dropping result", "task_id", task.ID)
			emit("completed", metrics.ResultNoop, nil)
			return
		}
		r.logger.ErrorContext(ctx, "complete task error", "task_id", task.ID, "error", cerr)
		emit("completed", metrics.ResultError, cerr)
		return
	}
	emit("completed", metrics.ResultSuccess, nil)
}

// execute runs the handler for the task, converting a panic into an error so
// one bad handler cannot take down the worker process.
func (r *Runner) execute(ctx context.Context, task *model.Task) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task handler panic: %v", p)
		}
	}()

	return r.handlerFor(task.Name)(ctx, task)
}

func (r *Runner) handlerFor(name string) HandlerFunc {
	if h, ok := r.handlers[name]; ok {
		return h
	}
	return r.defaultHandler
}

// workerName derives the registration name from the host identity. Loops get
// a numeric suffix when more than one runs in the same process.
func workerName(num, total int) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	name := fmt.Sprintf("worker-%s-%d", host, os.Getpid())
	if total > 1 {
		name = fmt.Sprintf("%s-%d", name, num)
	}
	return name
}
