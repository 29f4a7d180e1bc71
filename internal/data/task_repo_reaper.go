package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dispatchq/dispatchq/internal/core"
	"github.com/dispatchq/dispatchq/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for dispatchq reaper operations.
const (
	advisoryLockReaperMajor        = 1000
	advisoryLockReaperRequeue      = 1 // minor key for RequeueAbandonedTasks
	advisoryLockReaperStaleWorkers = 2 // minor key for MarkStaleWorkersInactive
	advisoryLockReaperDelete       = 3 // minor key for DeleteOldTasks
)

// RequeueAbandonedTasks returns running tasks whose worker has stopped
// heartbeating to the pending queue, clearing their claim state so another
// worker can pick them up.
// Processes up to BatchSize tasks per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of tasks requeued.
func (r *TaskRepo) RequeueAbandonedTasks(ctx context.Context, params core.RequeueAbandonedParams) (int64, error) {
	if params.WorkerTimeout <= 0 {
		return 0, errors.New("worker timeout must be greater than zero")
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperRequeue).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-params.WorkerTimeout)

			res, err := tx.ExecContext(ctx, `
				UPDATE tasks
				SET status = 'pending',
					worker_id = NULL,
					started_at = NULL,
					updated_at = $1
				WHERE id IN (
					SELECT t.id FROM tasks t
					JOIN workers w ON w.id = t.worker_id
					WHERE t.status = 'running'
					  AND w.last_heartbeat < $2
					ORDER BY t.started_at
					LIMIT $3
				)
			`, currentTime.UTC(), cutoffTime.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("requeue abandoned tasks: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// MarkStaleWorkersInactive flips active workers whose heartbeat is older than
// WorkerTimeout to inactive.
// Processes up to BatchSize workers per call.
// Returns the number of workers updated.
func (r *TaskRepo) MarkStaleWorkersInactive(ctx context.Context, params core.RequeueAbandonedParams) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperStaleWorkers).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-params.WorkerTimeout)

			res, err := tx.ExecContext(ctx, `
				UPDATE workers
				SET status = 'inactive',
					updated_at = $1
				WHERE id IN (
					SELECT id FROM workers
					WHERE status = 'active'
					  AND last_heartbeat < $2
					ORDER BY last_heartbeat
					LIMIT $3
				)
			`, currentTime.UTC(), cutoffTime.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("mark stale workers inactive: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldTasks deletes terminal tasks with the given status older than MaxAge.
// Processes up to BatchSize tasks per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of tasks deleted.
func (r *TaskRepo) DeleteOldTasks(ctx context.Context, params core.DeleteOldTasksParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("task status is not terminal: %s", params.Status)
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-params.MaxAge)

			res, err := tx.ExecContext(ctx, `
				DELETE FROM tasks
				WHERE id IN (
					SELECT id FROM tasks
					WHERE status = $1
					  AND (completed_at < $2 OR (completed_at IS NULL AND updated_at < $2))
					ORDER BY COALESCE(completed_at, updated_at)
					LIMIT $3
				)
			`, params.Status, cutoffTime.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old tasks: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// CountOldTasks reports how many terminal tasks with the given status are older
// than MaxAge, using the same cutoff rule as DeleteOldTasks. BatchSize is ignored.
func (r *TaskRepo) CountOldTasks(ctx context.Context, params core.DeleteOldTasksParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("task status is not terminal: %s", params.Status)
	}

	cutoffTime := r.timeProvider.Now().Add(-params.MaxAge)

	var count int64
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE status = $1
		  AND (completed_at < $2 OR (completed_at IS NULL AND updated_at < $2))
	`, params.Status, cutoffTime.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count old tasks: %w", err)
	}
	return count, nil
}
