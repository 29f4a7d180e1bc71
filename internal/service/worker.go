package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dispatchq/dispatchq/internal/core"
	"github.com/dispatchq/dispatchq/internal/data"
	"github.com/dispatchq/dispatchq/internal/domain/model"
)

// WorkerServiceOptions groups dependencies for WorkerService.
type WorkerServiceOptions struct {
	Repo   core.WorkerRepository // Required: worker repository
	Logger *slog.Logger          // Optional: structured logger
}

// WorkerService provides business logic for worker registration and liveness.
type WorkerService struct {
	repo   core.WorkerRepository
	logger *slog.Logger
}

// NewWorkerService constructs a new WorkerService.
func NewWorkerService(opts WorkerServiceOptions) (*WorkerService, error) {
	if opts.Repo == nil {
		return nil, errors.New("WorkerRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "worker_service")
	}

	return &WorkerService{
		repo:   opts.Repo,
		logger: logger,
	}, nil
}

// MustNewWorkerService constructs a new WorkerService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewWorkerService(opts WorkerServiceOptions) *WorkerService {
	svc, err := NewWorkerService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create WorkerService: %v", err))
	}
	return svc
}

// checkWorkerID rejects ids that cannot match any row. A malformed UUID maps
// to ErrWorkerNotFound so lookups never reach Postgres with an uncastable id.
func checkWorkerID(id string) error {
	if id == "" {
		return errors.New("worker id is required")
	}
	if uuid.Validate(id) != nil {
		return fmt.Errorf("worker id %q is not a valid uuid: %w", id, data.ErrWorkerNotFound)
	}
	return nil
}

// Register registers a new worker.
func (s *WorkerService) Register(ctx context.Context, req *model.RegisterWorkerRequest) (*model.Worker, error) {
	worker, err := s.repo.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("register worker: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(
			ctx,
			"worker registered",
			"id",
			worker.ID,
			"name",
			worker.Name,
			"status",
			worker.Status,
		)
	}

	return worker, nil
}

// GetByID returns a worker by its ID.
func (s *WorkerService) GetByID(ctx context.Context, id string) (*model.Worker, error) {
	if err := checkWorkerID(id); err != nil {
		return nil, err
	}

	worker, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get worker by id %s: %w", id, err)
	}
	return worker, nil
}

// List returns a page of workers ordered by registration time.
// Pagination defaults are normalized here to avoid drift across layers.
func (s *WorkerService) List(ctx context.Context, limit, offset int) ([]*model.Worker, error) {
	p := normalizePagination(limit, offset)

	workers, err := s.repo.List(ctx, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return workers, nil
}

// Heartbeat refreshes a worker's liveness timestamp and reactivates it if it
// had been marked inactive.
func (s *WorkerService) Heartbeat(ctx context.Context, id string) (*model.Worker, error) {
	if err := checkWorkerID(id); err != nil {
		return nil, err
	}

	worker, err := s.repo.Heartbeat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("heartbeat worker %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "worker heartbeat recorded", "id", id)
	}

	return worker, nil
}

// UpdateStatus sets a worker's status string.
func (s *WorkerService) UpdateStatus(ctx context.Context, id, status string) (*model.Worker, error) {
	if err := checkWorkerID(id); err != nil {
		return nil, err
	}

	worker, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("update worker %s status: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "worker status updated", "id", id, "status", worker.Status)
	}

	return worker, nil
}
