package data

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/testutil"
)

func TestWorkerRepo_Register_Get_List_Heartbeat(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewWorkerRepo(db)

		// register
		w, err := repo.Register(ctx, &model.RegisterWorkerRequest{Name: "worker-host-1"})
		require.NoError(t, err)
		require.NotEmpty(t, w.ID)
		assert.Equal(t, "worker-host-1", w.Name)
		assert.Equal(t, model.WorkerStatusActive, w.Status)
		assert.NotZero(t, w.LastHeartbeat)
		assert.NotZero(t, w.CreatedAt)

		// get by id
		got, err := repo.GetByID(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, w.Name, got.Name)

		// list
		_, err = repo.Register(ctx, &model.RegisterWorkerRequest{Name: "worker-host-2"})
		require.NoError(t, err)
		lst, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.Len(t, lst, 2)

		// heartbeat advances last_heartbeat
		beat, err := repo.Heartbeat(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, w.ID, beat.ID)
		assert.False(t, beat.LastHeartbeat.Before(w.LastHeartbeat))
		assert.WithinDuration(t, time.Now(), beat.LastHeartbeat, 5*time.Second)

		// update status
		updated, err := repo.UpdateStatus(ctx, w.ID, model.WorkerStatusInactive)
		require.NoError(t, err)
		assert.Equal(t, model.WorkerStatusInactive, updated.Status)
	})
}

func TestWorkerRepo_Register_ValidationErrors(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWorkerRepo(db)
		ctx := context.Background()

		// empty name
		_, err := repo.Register(ctx, &model.RegisterWorkerRequest{Name: " "})
		require.Error(t, err)

		// too long name (>255)
		_, err = repo.Register(ctx, &model.RegisterWorkerRequest{Name: strings.Repeat("w", 256)})
		require.Error(t, err)

		// explicit status is honored
		w, err := repo.Register(ctx, &model.RegisterWorkerRequest{Name: "ok", Status: model.WorkerStatusInactive})
		require.NoError(t, err)
		assert.Equal(t, model.WorkerStatusInactive, w.Status)
	})
}

func TestWorkerRepo_Heartbeat_ReactivatesInactive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWorkerRepo(db)
		ctx := context.Background()

		w, err := repo.Register(ctx, &model.RegisterWorkerRequest{Name: "worker-host-1"})
		require.NoError(t, err)

		// Simulate the reaper flagging the worker
		_, err = repo.UpdateStatus(ctx, w.ID, model.WorkerStatusInactive)
		require.NoError(t, err)

		// A heartbeat brings it back
		beat, err := repo.Heartbeat(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WorkerStatusActive, beat.Status)
	})
}

func TestWorkerRepo_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWorkerRepo(db)
		ctx := context.Background()
		missingID := "00000000-0000-0000-0000-000000000000"

		_, err := repo.GetByID(ctx, missingID)
		require.ErrorIs(t, err, ErrWorkerNotFound)

		_, err = repo.Heartbeat(ctx, missingID)
		require.ErrorIs(t, err, ErrWorkerNotFound)

		_, err = repo.UpdateStatus(ctx, missingID, model.WorkerStatusInactive)
		require.ErrorIs(t, err, ErrWorkerNotFound)
	})
}

func TestWorkerRepo_UpdateStatus_ValidationErrors(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWorkerRepo(db)
		ctx := context.Background()

		w, err := repo.Register(ctx, &model.RegisterWorkerRequest{Name: "worker-host-1"})
		require.NoError(t, err)

		_, err = repo.UpdateStatus(ctx, w.ID, " ")
		require.Error(t, err)
	})
}
