package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dispatchq/dispatchq/config"
	"github.com/dispatchq/dispatchq/internal/core"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	requeueAbandonedCalled int
	requeueAbandonedCount  int64
	requeueAbandonedError  error
	lastRequeueParams      core.RequeueAbandonedParams

	markStaleWorkersCalled int
	markStaleWorkersCount  int64
	markStaleWorkersError  error

	deleteOldTasksCalled   int
	deleteOldTasksCount    int64
	deleteOldTasksError    error
	deleteOldTasksStatuses []model.TaskStatus
}

func (m *mockReaperRepo) RequeueAbandonedTasks(
	ctx context.Context,
	params core.RequeueAbandonedParams,
) (int64, error) {
	m.requeueAbandonedCalled++
	m.lastRequeueParams = params
	if m.requeueAbandonedError != nil {
		return 0, m.requeueAbandonedError
	}
	// Return count on first call, then 0 to simulate batch exhaustion
	if m.requeueAbandonedCalled == 1 {
		return m.requeueAbandonedCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) MarkStaleWorkersInactive(
	ctx context.Context,
	params core.RequeueAbandonedParams,
) (int64, error) {
	m.markStaleWorkersCalled++
	if m.markStaleWorkersError != nil {
		return 0, m.markStaleWorkersError
	}
	return m.markStaleWorkersCount, nil
}

func (m *mockReaperRepo) DeleteOldTasks(
	ctx context.Context,
	params core.DeleteOldTasksParams,
) (int64, error) {
	m.deleteOldTasksCalled++
	m.deleteOldTasksStatuses = append(m.deleteOldTasksStatuses, params.Status)
	if m.deleteOldTasksError != nil {
		return 0, m.deleteOldTasksError
	}
	// Return count on odd calls (1st, 3rd, 5th...), then 0 on even calls to simulate batch exhaustion
	// This allows multiple cleanup operations (completed, failed) to each get their batch
	if m.deleteOldTasksCalled%2 == 1 {
		return m.deleteOldTasksCount, nil
	}
	return 0, nil
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := config.ReaperConfig{
			Interval:        5 * time.Minute,
			WorkerTimeout:   90 * time.Second,
			CompletedMaxAge: 7 * 24 * time.Hour,
			FailedMaxAge:    7 * 24 * time.Hour,
			BatchSize:       1000,
		}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		cfg := config.ReaperConfig{
			Interval:        5 * time.Minute,
			WorkerTimeout:   90 * time.Second,
			CompletedMaxAge: 7 * 24 * time.Hour,
			FailedMaxAge:    7 * 24 * time.Hour,
			BatchSize:       1000,
		}

		_, err := NewReaperService(ReaperServiceOptions{
			Repo:   nil,
			Config: cfg,
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReaperRepository is required")
	})
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("runs all cleanup operations successfully", func(t *testing.T) {
		repo := &mockReaperRepo{
			requeueAbandonedCount: 5,
			markStaleWorkersCount: 3,
			deleteOldTasksCount:   10,
		}
		cfg := config.ReaperConfig{
			Interval:        5 * time.Minute,
			WorkerTimeout:   90 * time.Second,
			CompletedMaxAge: 7 * 24 * time.Hour,
			FailedMaxAge:    7 * 24 * time.Hour,
			BatchSize:       1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx := context.Background()
		err := svc.runCleanup(ctx)

		require.NoError(t, err)
		// Requeue is called twice: once returning count, once returning 0
		assert.Equal(t, 2, repo.requeueAbandonedCalled)
		// Marking stale workers is a single idempotent flip, no batch loop
		assert.Equal(t, 1, repo.markStaleWorkersCalled)
		// DeleteOldTasks is called twice per status (completed, failed): 2 * 2 = 4
		assert.Equal(t, 4, repo.deleteOldTasksCalled)
		assert.Contains(t, repo.deleteOldTasksStatuses, model.TaskStatusCompleted)
		assert.Contains(t, repo.deleteOldTasksStatuses, model.TaskStatusFailed)
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := &mockReaperRepo{
			requeueAbandonedError: errors.New("requeue error"),
			deleteOldTasksCount:   10,
		}
		cfg := config.ReaperConfig{
			Interval:        5 * time.Minute,
			WorkerTimeout:   90 * time.Second,
			CompletedMaxAge: 7 * 24 * time.Hour,
			FailedMaxAge:    7 * 24 * time.Hour,
			BatchSize:       1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx := context.Background()
		err := svc.runCleanup(ctx)

		// Should return error but still call all cleanup methods
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requeue abandoned tasks")
		// RequeueAbandonedTasks called once (returns error immediately)
		assert.Equal(t, 1, repo.requeueAbandonedCalled)
		assert.Equal(t, 1, repo.markStaleWorkersCalled)
		// DeleteOldTasks called twice per status (completed, failed): 2 * 2 = 4
		assert.Equal(t, 4, repo.deleteOldTasksCalled)
	})

	t.Run("zero max ages disable delete steps", func(t *testing.T) {
		repo := &mockReaperRepo{
			requeueAbandonedCount: 2,
		}
		cfg := config.ReaperConfig{
			Interval:        5 * time.Minute,
			WorkerTimeout:   90 * time.Second,
			CompletedMaxAge: 0,
			FailedMaxAge:    0,
			BatchSize:       1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx := context.Background()
		err := svc.runCleanup(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, repo.requeueAbandonedCalled)
		assert.Equal(t, 1, repo.markStaleWorkersCalled)
		assert.Equal(t, 0, repo.deleteOldTasksCalled)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := config.ReaperConfig{
			Interval:        100 * time.Millisecond,
			WorkerTimeout:   90 * time.Second,
			CompletedMaxAge: 7 * 24 * time.Hour,
			FailedMaxAge:    7 * 24 * time.Hour,
			BatchSize:       1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx, cancel := context.WithCancel(context.Background())

		// Run in goroutine
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		// Wait a bit to ensure at least one cleanup runs
		time.Sleep(150 * time.Millisecond)

		// Cancel context
		cancel()

		// Wait for Run to return
		select {
		case err := <-done:
			// Should return nil on graceful shutdown
			require.NoError(t, err)
		case <-time.After(1 * time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		// Verify cleanup was called at least once (initial + maybe one tick)
		assert.GreaterOrEqual(t, repo.requeueAbandonedCalled, 1)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &mockReaperRepo{
			requeueAbandonedError: errors.New("test error"),
		}
		cfg := config.ReaperConfig{
			Interval:        50 * time.Millisecond,
			WorkerTimeout:   90 * time.Second,
			CompletedMaxAge: 7 * 24 * time.Hour,
			FailedMaxAge:    7 * 24 * time.Hour,
			BatchSize:       1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err := svc.Run(ctx)

		// Should return context deadline exceeded, not the cleanup error
		require.Error(t, err)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		// Verify cleanup was called multiple times despite errors
		assert.GreaterOrEqual(t, repo.requeueAbandonedCalled, 2)
	})
}

func TestReaperService_requeueAbandonedTasks(t *testing.T) {
	t.Run("calls repo with configured worker timeout", func(t *testing.T) {
		repo := &mockReaperRepo{
			requeueAbandonedCount: 3,
		}
		cfg := config.ReaperConfig{
			WorkerTimeout: 2 * time.Minute,
			BatchSize:     500,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx := context.Background()
		count, err := svc.requeueAbandonedTasks(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		// Called twice: once returning count, once returning 0
		assert.Equal(t, 2, repo.requeueAbandonedCalled)
		assert.Equal(t, 2*time.Minute, repo.lastRequeueParams.WorkerTimeout)
		assert.Equal(t, 500, repo.lastRequeueParams.BatchSize)
	})
}

func TestReaperService_markStaleWorkersInactive(t *testing.T) {
	t.Run("returns repo count", func(t *testing.T) {
		repo := &mockReaperRepo{
			markStaleWorkersCount: 4,
		}
		cfg := config.ReaperConfig{
			WorkerTimeout: 90 * time.Second,
			BatchSize:     1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx := context.Background()
		count, err := svc.markStaleWorkersInactive(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
		assert.Equal(t, 1, repo.markStaleWorkersCalled)
	})
}

func TestReaperService_deleteOldCompletedTasks(t *testing.T) {
	t.Run("calls repo with correct status and max age", func(t *testing.T) {
		repo := &mockReaperRepo{
			deleteOldTasksCount: 5,
		}
		cfg := config.ReaperConfig{
			CompletedMaxAge: 7 * 24 * time.Hour,
			BatchSize:       1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx := context.Background()
		count, err := svc.deleteOldCompletedTasks(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
		// Called twice: once returning count, once returning 0
		assert.Equal(t, 2, repo.deleteOldTasksCalled)
		assert.Equal(t, model.TaskStatusCompleted, repo.deleteOldTasksStatuses[0])
	})

	t.Run("disabled when max age is zero", func(t *testing.T) {
		repo := &mockReaperRepo{
			deleteOldTasksCount: 5,
		}
		cfg := config.ReaperConfig{
			CompletedMaxAge: 0,
			BatchSize:       1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx := context.Background()
		count, err := svc.deleteOldCompletedTasks(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
		assert.Equal(t, 0, repo.deleteOldTasksCalled)
	})
}

func TestReaperService_deleteOldFailedTasks(t *testing.T) {
	t.Run("calls repo with correct status and max age", func(t *testing.T) {
		repo := &mockReaperRepo{
			deleteOldTasksCount: 8,
		}
		cfg := config.ReaperConfig{
			FailedMaxAge: 7 * 24 * time.Hour,
			BatchSize:    1000,
		}

		svc, _ := MustNewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})

		ctx := context.Background()
		count, err := svc.deleteOldFailedTasks(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(8), count)
		// Called twice: once returning count, once returning 0
		assert.Equal(t, 2, repo.deleteOldTasksCalled)
		assert.Equal(t, model.TaskStatusFailed, repo.deleteOldTasksStatuses[0])
	})
}
