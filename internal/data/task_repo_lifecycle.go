package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dispatchq/dispatchq/internal/data/pgxutil"
	"github.com/dispatchq/dispatchq/internal/domain/model"
)

// Pause withholds a task from claiming. Pending, scheduled, and running tasks
// can be paused; pausing a running task also releases its claim state so the
// task restarts cleanly on resume.
func (r *TaskRepo) Pause(ctx context.Context, id string) (*model.Task, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE tasks
		SET status = 'paused',
		    worker_id = NULL,
		    started_at = NULL,
		    updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'scheduled', 'running')
		RETURNING ` + taskColumns

	row := r.DB.QueryRowContext(ctx, query, id, currentTime)
	task, err := scanTaskFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.diagnoseGuardedUpdate(ctx, id, ErrTaskNotPausable)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pause task: %w", err)
	}
	return task, nil
}

// Resume returns a paused task to the queue. A task with a scheduled time
// still in the future goes back to scheduled; everything else becomes pending
// and claimers listening for new work are notified.
func (r *TaskRepo) Resume(ctx context.Context, id string) (*model.Task, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE tasks
		SET status = CASE
		      WHEN scheduled_at IS NOT NULL AND scheduled_at > $2::timestamptz THEN 'scheduled'
		      ELSE 'pending'
		    END,
		    updated_at = $3
		WHERE id = $1 AND status = 'paused'
		RETURNING ` + taskColumns

	var task *model.Task
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			row := tx.QueryRowContext(ctx, query, id, currentTime, currentTime)
			t, scanErr := scanTaskFromRow(row)
			if scanErr != nil {
				return scanErr
			}

			if t.Status == model.TaskStatusPending {
				if _, notifyErr := tx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, taskAddedChannel, t.ID); notifyErr != nil {
					return fmt.Errorf("send task notification: %w", notifyErr)
				}
			}

			task = t
			return nil
		},
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.diagnoseGuardedUpdate(ctx, id, ErrTaskNotPaused)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resume task: %w", err)
	}
	return task, nil
}

// Complete marks a running task as completed, recording an optional result.
// The claiming worker is kept on the row for audit.
func (r *TaskRepo) Complete(ctx context.Context, id string, result json.RawMessage) (*model.Task, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE tasks
		SET status = 'completed',
		    result = $2,
		    error = NULL,
		    completed_at = $3,
		    updated_at = $4
		WHERE id = $1 AND status = 'running'
		RETURNING ` + taskColumns

	var resultArg any
	if len(result) > 0 {
		resultArg = []byte(result)
	}

	row := r.DB.QueryRowContext(ctx, query, id, resultArg, currentTime, currentTime)
	task, err := scanTaskFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.diagnoseGuardedUpdate(ctx, id, ErrTaskNotRunning)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	return task, nil
}

// Fail marks a running task as failed with the given error message.
func (r *TaskRepo) Fail(ctx context.Context, id, errMsg string) (*model.Task, error) {
	if errMsg == "" {
		return nil, errors.New("error message is required")
	}

	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE tasks
		SET status = 'failed',
		    error = $2,
		    result = NULL,
		    completed_at = $3,
		    updated_at = $4
		WHERE id = $1 AND status = 'running'
		RETURNING ` + taskColumns

	row := r.DB.QueryRowContext(ctx, query, id, errMsg, currentTime, currentTime)
	task, err := scanTaskFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.diagnoseGuardedUpdate(ctx, id, ErrTaskNotRunning)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fail task: %w", err)
	}
	return task, nil
}

// diagnoseGuardedUpdate reports why a guarded status transition matched zero
// rows: either the task does not exist, or it is in a state the transition
// does not allow.
func (r *TaskRepo) diagnoseGuardedUpdate(ctx context.Context, id string, sentinel error) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to re-check task after guarded update: %w", err)
	}
	return sentinel
}
