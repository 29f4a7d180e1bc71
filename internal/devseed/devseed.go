package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dispatchq/dispatchq/internal/data"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	tasks   *service.TaskService
	workers *service.WorkerService
}

// NewServices constructs all required services for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	taskRepo := data.NewTaskRepo(db, data.RepoConfig{})
	taskService := service.MustNewTaskService(service.TaskServiceOptions{
		Repo: taskRepo,
	})

	workerRepo := data.NewWorkerRepo(db)
	workerService := service.MustNewWorkerService(service.WorkerServiceOptions{
		Repo: workerRepo,
	})

	return Services{
		tasks:   taskService,
		workers: workerService,
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := 0
	failures += seedWorkers(ctx, svcs.workers, logger)
	failures += seedTasks(ctx, svcs.tasks, logger)
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedWorkers(ctx context.Context, svc *service.WorkerService, logger *slog.Logger) int {
	existing, err := existingWorkerNames(ctx, svc)
	if err != nil {
		if logger != nil {
			logger.ErrorContext(ctx, "failed to list existing workers", "error", err)
		}
		return 1
	}

	failures := 0
	for _, req := range defaultWorkers() {
		if existing[req.Name] {
			if logger != nil {
				logger.InfoContext(ctx, "worker already exists", "name", req.Name)
			}
			continue
		}
		if _, registerErr := svc.Register(ctx, req); registerErr != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to register worker", "name", req.Name, "error", registerErr)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "registered worker", "name", req.Name)
		}
	}

	return failures
}

func defaultWorkers() []*model.RegisterWorkerRequest {
	return []*model.RegisterWorkerRequest{
		{Name: "dev-worker-1"},
		{Name: "dev-worker-2", Status: model.WorkerStatusInactive},
	}
}

func existingWorkerNames(ctx context.Context, svc *service.WorkerService) (map[string]bool, error) {
	const pageSize = 100
	offset := 0
	out := make(map[string]bool)
	for {
		page, err := svc.List(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, worker := range page {
			out[worker.Name] = true
		}
		offset += len(page)
		if len(page) < pageSize {
			break
		}
	}
	return out, nil
}

type taskSeedSpec struct {
	name     string
	payload  string
	priority model.TaskPriority

	// inMinutes delays the task into the scheduled state; zero seeds an
	// immediately claimable one.
	inMinutes int
	paused    bool
}

func defaultTaskSeedSpecs() []taskSeedSpec {
	return []taskSeedSpec{
		{
			name:     "send-welcome-email",
			payload:  `{"to": "dev@example.com", "template": "welcome"}`,
			priority: model.TaskPriorityMedium,
		},
		{
			name:     "process-payment-batch",
			payload:  `{"batch_id": "batch-0001", "count": 25}`,
			priority: model.TaskPriorityCritical,
		},
		{
			name:     "cleanup-temp-files",
			payload:  `{"path": "/tmp/dispatchq", "max_age_hours": 24}`,
			priority: model.TaskPriorityLow,
		},
		{
			name:      "generate-daily-report",
			payload:   `{"report": "daily-activity", "format": "csv"}`,
			priority:  model.TaskPriorityHigh,
			inMinutes: 60,
		},
		{
			name:     "rebuild-search-index",
			payload:  `{"index": "tasks", "full": true}`,
			priority: model.TaskPriorityMedium,
			paused:   true,
		},
	}
}

func seedTasks(ctx context.Context, svc *service.TaskService, logger *slog.Logger) int {
	existing, err := existingTaskNames(ctx, svc)
	if err != nil {
		if logger != nil {
			logger.ErrorContext(ctx, "failed to list existing tasks", "error", err)
		}
		return 1
	}

	failures := 0
	for _, spec := range defaultTaskSeedSpecs() {
		if existing[spec.name] {
			if logger != nil {
				logger.InfoContext(ctx, "task already queued", "name", spec.name)
			}
			continue
		}
		if seedErr := seedTask(ctx, svc, spec); seedErr != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed task", "name", spec.name, "error", seedErr)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded task", "name", spec.name, "priority", spec.priority)
		}
	}

	return failures
}

func seedTask(ctx context.Context, svc *service.TaskService, spec taskSeedSpec) error {
	priority := spec.priority
	req := &model.CreateTaskRequest{
		Name:     spec.name,
		Payload:  json.RawMessage(spec.payload),
		Priority: &priority,
	}
	if spec.inMinutes > 0 {
		at := time.Now().UTC().Add(time.Duration(spec.inMinutes) * time.Minute)
		req.ScheduledAt = &at
	}

	task, err := svc.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	if spec.paused {
		if _, pauseErr := svc.Pause(ctx, task.ID); pauseErr != nil {
			return fmt.Errorf("pause task: %w", pauseErr)
		}
	}
	return nil
}

// existingTaskNames collects the names of queued tasks so re-running the seed
// does not pile up duplicates. Terminal tasks are ignored on purpose: once a
// sample task has run to completion, a fresh seed puts a new one on the queue.
func existingTaskNames(ctx context.Context, svc *service.TaskService) (map[string]bool, error) {
	out := make(map[string]bool)
	statuses := []model.TaskStatus{
		model.TaskStatusPending,
		model.TaskStatusScheduled,
		model.TaskStatusPaused,
	}
	for _, status := range statuses {
		if err := collectTaskNames(ctx, svc, status, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func collectTaskNames(
	ctx context.Context,
	svc *service.TaskService,
	status model.TaskStatus,
	out map[string]bool,
) error {
	const pageSize = 100
	offset := 0
	for {
		list, err := svc.List(ctx, &model.TaskListOptions{
			Status: &status,
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			return err
		}
		if len(list.Items) == 0 {
			break
		}
		for _, task := range list.Items {
			out[task.Name] = true
		}
		offset += len(list.Items)
		if len(list.Items) < pageSize {
			break
		}
	}
	return nil
}
