package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchq/dispatchq/internal/core"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/testutil"
)

func TestTaskRepo_RequeueAbandonedTasks(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("requeues tasks held by stale workers", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()
			worker := registerTestWorker(t, db)

			// Claim a task so it is running under the worker
			task, err := repo.Create(ctx, &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)
			_, err = repo.ClaimNext(ctx, worker.ID)
			require.NoError(t, err)

			// Manually age the worker's heartbeat to make it stale
			_, err = db.ExecContext(ctx, `
				UPDATE workers
				SET last_heartbeat = $1
				WHERE id = $2
			`, time.Now().Add(-2*time.Hour), worker.ID)
			require.NoError(t, err)

			// Requeue tasks whose worker has been silent for over an hour
			count, err := repo.RequeueAbandonedTasks(ctx, core.RequeueAbandonedParams{
				WorkerTimeout: time.Hour,
				BatchSize:     1000,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			// Verify the task is claimable again with claim state cleared
			taskAfter, err := repo.GetByID(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, model.TaskStatusPending, taskAfter.Status)
			assert.Nil(t, taskAfter.WorkerID)
			assert.Nil(t, taskAfter.StartedAt)
		})
	})

	t.Run("leaves tasks of healthy workers alone", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()
			worker := registerTestWorker(t, db)

			task, err := repo.Create(ctx, &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)
			_, err = repo.ClaimNext(ctx, worker.ID)
			require.NoError(t, err)

			count, err := repo.RequeueAbandonedTasks(ctx, core.RequeueAbandonedParams{
				WorkerTimeout: time.Hour,
				BatchSize:     1000,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)

			taskAfter, err := repo.GetByID(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, model.TaskStatusRunning, taskAfter.Status)
		})
	})

	t.Run("respects batch size", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()
			worker := registerTestWorker(t, db)

			for range 3 {
				_, err := repo.Create(ctx, &model.CreateTaskRequest{Name: "send-email"})
				require.NoError(t, err)
				_, err = repo.ClaimNext(ctx, worker.ID)
				require.NoError(t, err)
			}

			_, err := db.ExecContext(ctx, `
				UPDATE workers
				SET last_heartbeat = $1
				WHERE id = $2
			`, time.Now().Add(-2*time.Hour), worker.ID)
			require.NoError(t, err)

			count, err := repo.RequeueAbandonedTasks(ctx, core.RequeueAbandonedParams{
				WorkerTimeout: time.Hour,
				BatchSize:     2,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			// Second sweep picks up the remainder
			count, err = repo.RequeueAbandonedTasks(ctx, core.RequeueAbandonedParams{
				WorkerTimeout: time.Hour,
				BatchSize:     2,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	})

	t.Run("invalid params return errors", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()

			_, err := repo.RequeueAbandonedTasks(ctx, core.RequeueAbandonedParams{
				WorkerTimeout: 0,
				BatchSize:     1000,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "worker timeout")

			_, err = repo.RequeueAbandonedTasks(ctx, core.RequeueAbandonedParams{
				WorkerTimeout: time.Hour,
				BatchSize:     0,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "batch size")
		})
	})
}

func TestTaskRepo_MarkStaleWorkersInactive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("marks stale workers inactive", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			workerRepo := NewWorkerRepo(db)
			ctx := context.Background()

			staleWorker, err := workerRepo.Register(ctx, &model.RegisterWorkerRequest{Name: "worker-stale"})
			require.NoError(t, err)
			freshWorker, err := workerRepo.Register(ctx, &model.RegisterWorkerRequest{Name: "worker-fresh"})
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE workers
				SET last_heartbeat = $1
				WHERE id = $2
			`, time.Now().Add(-2*time.Hour), staleWorker.ID)
			require.NoError(t, err)

			count, err := repo.MarkStaleWorkersInactive(ctx, core.RequeueAbandonedParams{
				WorkerTimeout: time.Hour,
				BatchSize:     1000,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			staleAfter, err := workerRepo.GetByID(ctx, staleWorker.ID)
			require.NoError(t, err)
			assert.Equal(t, model.WorkerStatusInactive, staleAfter.Status)

			freshAfter, err := workerRepo.GetByID(ctx, freshWorker.ID)
			require.NoError(t, err)
			assert.Equal(t, model.WorkerStatusActive, freshAfter.Status)
		})
	})

	t.Run("already inactive workers are not counted again", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			workerRepo := NewWorkerRepo(db)
			ctx := context.Background()

			worker, err := workerRepo.Register(ctx, &model.RegisterWorkerRequest{Name: "worker-stale"})
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE workers
				SET last_heartbeat = $1
				WHERE id = $2
			`, time.Now().Add(-2*time.Hour), worker.ID)
			require.NoError(t, err)

			params := core.RequeueAbandonedParams{WorkerTimeout: time.Hour, BatchSize: 1000}

			count, err := repo.MarkStaleWorkersInactive(ctx, params)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			count, err = repo.MarkStaleWorkersInactive(ctx, params)
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)
		})
	})
}

func TestTaskRepo_DeleteOldTasks(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("deletes old completed tasks", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()
			worker := registerTestWorker(t, db)

			task, err := repo.Create(ctx, &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)
			_, err = repo.ClaimNext(ctx, worker.ID)
			require.NoError(t, err)
			_, err = repo.Complete(ctx, task.ID, nil)
			require.NoError(t, err)

			// Make the task old (8 days ago)
			oldTime := time.Now().Add(-8 * 24 * time.Hour)
			_, err = db.ExecContext(ctx, `
				UPDATE tasks
				SET completed_at = $1, updated_at = $1
				WHERE id = $2
			`, oldTime, task.ID)
			require.NoError(t, err)

			count, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusCompleted,
				MaxAge:    7 * 24 * time.Hour,
				BatchSize: 1000,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			_, err = repo.GetByID(ctx, task.ID)
			assert.ErrorIs(t, err, ErrTaskNotFound)
		})
	})

	t.Run("deletes old failed tasks", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()
			worker := registerTestWorker(t, db)

			task, err := repo.Create(ctx, &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)
			_, err = repo.ClaimNext(ctx, worker.ID)
			require.NoError(t, err)
			_, err = repo.Fail(ctx, task.ID, "test error")
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE tasks
				SET completed_at = $1, updated_at = $1
				WHERE id = $2
			`, time.Now().Add(-8*24*time.Hour), task.ID)
			require.NoError(t, err)

			count, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusFailed,
				MaxAge:    7 * 24 * time.Hour,
				BatchSize: 1000,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			_, err = repo.GetByID(ctx, task.ID)
			assert.ErrorIs(t, err, ErrTaskNotFound)
		})
	})

	t.Run("does not delete recent tasks", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()
			worker := registerTestWorker(t, db)

			task, err := repo.Create(ctx, &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)
			_, err = repo.ClaimNext(ctx, worker.ID)
			require.NoError(t, err)
			_, err = repo.Complete(ctx, task.ID, nil)
			require.NoError(t, err)

			count, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusCompleted,
				MaxAge:    7 * 24 * time.Hour,
				BatchSize: 1000,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)

			_, err = repo.GetByID(ctx, task.ID)
			require.NoError(t, err)
		})
	})

	t.Run("does not delete tasks with different status", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()
			worker := registerTestWorker(t, db)

			task, err := repo.Create(ctx, &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)
			_, err = repo.ClaimNext(ctx, worker.ID)
			require.NoError(t, err)
			_, err = repo.Complete(ctx, task.ID, nil)
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE tasks
				SET completed_at = $1, updated_at = $1
				WHERE id = $2
			`, time.Now().Add(-8*24*time.Hour), task.ID)
			require.NoError(t, err)

			// The task is completed, not failed
			count, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusFailed,
				MaxAge:    7 * 24 * time.Hour,
				BatchSize: 1000,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)

			_, err = repo.GetByID(ctx, task.ID)
			require.NoError(t, err)
		})
	})

	t.Run("non-terminal status returns error", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()

			_, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusRunning,
				MaxAge:    7 * 24 * time.Hour,
				BatchSize: 1000,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not terminal")
		})
	})
}
