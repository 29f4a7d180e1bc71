package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dispatchq/dispatchq/internal/data/pgxutil"
	"github.com/dispatchq/dispatchq/internal/domain/model"
)

// SQL used by ClaimNext to atomically claim the next ready task. A task is
// ready when it is pending, or scheduled with a scheduled time that has
// passed. FOR UPDATE SKIP LOCKED keeps concurrent claimers from blocking on
// or double-claiming the same row.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM tasks
    WHERE status = 'pending'
       OR (status = 'scheduled' AND scheduled_at <= $1)
    ORDER BY priority DESC, scheduled_at ASC NULLS FIRST, created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE tasks t
  SET
    status = 'running',
    worker_id = $2,
    started_at = $3,
    updated_at = $4
  FROM cte
  WHERE t.id = cte.id
  RETURNING t.id, t.name, t.payload, t.status, t.priority, t.scheduled_at, t.started_at, t.completed_at, t.worker_id, t.result, t.error, t.created_at, t.updated_at`

// ClaimNext atomically claims the next ready task for the given worker.
// Returns model.ErrNoTasksAvailable when no task is ready.
func (r *TaskRepo) ClaimNext(ctx context.Context, workerID string) (*model.Task, error) {
	if workerID == "" {
		return nil, errors.New("worker id is required")
	}

	var task *model.Task
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()

			rows, qerr := tx.Query(
				ctx,
				claimNextUpdateSQL,
				currentTime.UTC(),
				workerID,
				currentTime.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("claim task: %w", qerr)
			}
			defer rows.Close()

			t, cerr := collectTaskFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoTasksAvailable
			}
			if cerr != nil {
				return fmt.Errorf("claim task: %w", cerr)
			}
			task = t
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoTasksAvailable) {
			return nil, model.ErrNoTasksAvailable
		}
		return nil, err
	}
	return task, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new tasks are available.
func (r *TaskRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{taskAddedChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", taskAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
