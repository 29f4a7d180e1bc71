package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/mocks"
	"github.com/dispatchq/dispatchq/internal/service"
)

type routerMocks struct {
	tasks   *mocks.MockTaskRepository
	workers *mocks.MockWorkerRepository
}

func newTestRouter(t *testing.T) (http.Handler, routerMocks, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	taskRepo := mocks.NewMockTaskRepository(ctrl)
	workerRepo := mocks.NewMockWorkerRepository(ctrl)

	router := NewRouter(RouterServices{
		Tasks: service.MustNewTaskService(service.TaskServiceOptions{
			Repo:     taskRepo,
			Notifier: &stubNotifier{ch: make(chan struct{}, 1)},
		}),
		Workers: service.MustNewWorkerService(service.WorkerServiceOptions{Repo: workerRepo}),
	})

	return router, routerMocks{tasks: taskRepo, workers: workerRepo}, ctrl
}

func TestRouter_Root(t *testing.T) {
	router, _, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","message":"Task Queue Service is running"}`, w.Body.String())
}

func TestRouter_Healthz(t *testing.T) {
	router, _, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRouter_UnknownPath_Returns404(t *testing.T) {
	router, _, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	r := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CreateTask_BothCollectionForms(t *testing.T) {
	router, m, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	task := &model.Task{ID: testTaskID, Name: "send-email", Status: model.TaskStatusPending}
	m.tasks.EXPECT().Create(gomock.Any(), gomock.Any()).Return(task, nil).Times(2)

	for _, path := range []string{"/api/tasks", "/api/tasks/"} {
		b, _ := json.Marshal(model.CreateTaskRequest{Name: "send-email"})
		r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		require.Equalf(t, http.StatusCreated, w.Code, "path %s", path)
	}
}

func TestRouter_StatsWinsOverIDWildcard(t *testing.T) {
	router, m, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	// Only the stats call may reach the repository; a wildcard dispatch to
	// GetByID would 404 on the non-uuid segment instead.
	m.tasks.EXPECT().Stats(gomock.Any()).Return(&model.TaskStats{Total: 3}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/tasks/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got model.TaskStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, 3, got.Total)
}

func TestRouter_TaskLifecycleRoutes(t *testing.T) {
	router, m, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	task := &model.Task{ID: testTaskID, Status: model.TaskStatusPaused}
	m.tasks.EXPECT().Pause(gomock.Any(), testTaskID).Return(task, nil)

	r := httptest.NewRequest(http.MethodPatch, "/api/tasks/"+testTaskID+"/pause", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	resumed := &model.Task{ID: testTaskID, Status: model.TaskStatusPending}
	m.tasks.EXPECT().Resume(gomock.Any(), testTaskID).Return(resumed, nil)

	r = httptest.NewRequest(http.MethodPatch, "/api/tasks/"+testTaskID+"/resume", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ClaimRoute(t *testing.T) {
	router, m, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	task := &model.Task{ID: testTaskID, Status: model.TaskStatusRunning}
	m.tasks.EXPECT().ClaimNext(gomock.Any(), testWorkerID).Return(task, nil)

	b, _ := json.Marshal(map[string]string{"worker_id": testWorkerID})
	r := httptest.NewRequest(http.MethodPost, "/api/tasks/claim", bytes.NewReader(b))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_WorkerRoutes(t *testing.T) {
	router, m, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	worker := &model.Worker{ID: testWorkerID, Name: "worker-a", Status: model.WorkerStatusActive}
	m.workers.EXPECT().Register(gomock.Any(), gomock.Any()).Return(worker, nil)

	b, _ := json.Marshal(model.RegisterWorkerRequest{Name: "worker-a"})
	r := httptest.NewRequest(http.MethodPost, "/api/workers/", bytes.NewReader(b))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code)

	m.workers.EXPECT().Heartbeat(gomock.Any(), testWorkerID).Return(worker, nil)

	r = httptest.NewRequest(http.MethodPost, "/api/workers/"+testWorkerID+"/heartbeat", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_PanicRecoversTo500(t *testing.T) {
	router, m, ctrl := newTestRouter(t)
	defer ctrl.Finish()

	m.tasks.EXPECT().
		Stats(gomock.Any()).
		DoAndReturn(func(context.Context) (*model.TaskStats, error) {
			panic("stats backend exploded")
		})

	r := httptest.NewRequest(http.MethodGet, "/api/tasks/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")
}
