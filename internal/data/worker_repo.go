package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dispatchq/dispatchq/internal/data/pgxutil"
	"github.com/dispatchq/dispatchq/internal/domain/model"
)

// WorkerRepo provides database operations for workers.
type WorkerRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewWorkerRepo creates a new WorkerRepo with real time provider.
func NewWorkerRepo(db *sql.DB) *WorkerRepo {
	return &WorkerRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewWorkerRepoWithTimeProvider creates a new WorkerRepo with a custom time provider (useful for tests).
func NewWorkerRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *WorkerRepo {
	return &WorkerRepo{DB: db, timeProvider: tp}
}

// Register inserts a new worker and stamps its first heartbeat.
func (r *WorkerRepo) Register(ctx context.Context, req *model.RegisterWorkerRequest) (*model.Worker, error) {
	if req == nil {
		return nil, errors.New("register worker request is required")
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	registeredAt := r.timeProvider.Now().UTC()
	var out model.Worker
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO workers (
				name, status, last_heartbeat, created_at
			) VALUES (
				$1, $2, $3, $3
			) RETURNING id, name, status, last_heartbeat, created_at, updated_at
		`,
			strings.TrimSpace(req.Name),
			req.EffectiveStatus(),
			registeredAt,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Worker])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to register worker: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a worker by ID.
func (r *WorkerRepo) GetByID(ctx context.Context, id string) (*model.Worker, error) {
	return r.getByQuery(ctx, workerGetByIDQuery, "failed to get worker by ID", id)
}

// List retrieves workers with pagination.
func (r *WorkerRepo) List(ctx context.Context, limit, offset int) ([]*model.Worker, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	var rowsOut []model.Worker
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, workerListQuery, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Worker])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}

	res := make([]*model.Worker, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Heartbeat refreshes a worker's last_heartbeat and re-marks it active, so a
// worker the reaper flagged inactive recovers on its next beat.
func (r *WorkerRepo) Heartbeat(ctx context.Context, id string) (*model.Worker, error) {
	currentTime := r.timeProvider.Now().UTC()

	var out model.Worker
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			UPDATE workers
			SET last_heartbeat = $2,
			    status = $3,
			    updated_at = $2
			WHERE id = $1
			RETURNING id, name, status, last_heartbeat, created_at, updated_at
		`, id, currentTime, model.WorkerStatusActive)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Worker])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkerNotFound
		}
		return nil, fmt.Errorf("failed to heartbeat worker: %w", err)
	}
	return &out, nil
}

// UpdateStatus sets a worker's status field.
func (r *WorkerRepo) UpdateStatus(ctx context.Context, id, status string) (*model.Worker, error) {
	if strings.TrimSpace(status) == "" {
		return nil, errors.New("worker status is required and cannot be empty")
	}

	currentTime := r.timeProvider.Now().UTC()

	var out model.Worker
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			UPDATE workers
			SET status = $2,
			    updated_at = $3
			WHERE id = $1
			RETURNING id, name, status, last_heartbeat, created_at, updated_at
		`, id, status, currentTime)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Worker])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkerNotFound
		}
		return nil, fmt.Errorf("failed to update worker status: %w", err)
	}
	return &out, nil
}

// getByQuery is a helper function to execute a query and return a single worker.
// Uses variadic args to avoid slice allocation at call sites.
func (r *WorkerRepo) getByQuery(
	ctx context.Context,
	q string,
	errMsg string,
	args ...any,
) (*model.Worker, error) {
	var worker model.Worker
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		worker, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Worker])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkerNotFound
		}
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	return &worker, nil
}

// SQL query constants for static queries (no dynamic WHERE/ORDER BY).
const (
	workerGetByIDQuery = `
		SELECT id, name, status, last_heartbeat, created_at, updated_at
		FROM workers
		WHERE id = $1`

	workerListQuery = `
		SELECT id, name, status, last_heartbeat, created_at, updated_at
		FROM workers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
)
