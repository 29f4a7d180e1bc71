package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dispatchq/dispatchq/internal/data"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/mocks"
	"github.com/dispatchq/dispatchq/internal/service"
)

func newWorkerHandlersWithMock(
	t *testing.T,
) (*WorkerHandlers, *mocks.MockWorkerRepository, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockWorkerRepository(ctrl)
	svc := service.MustNewWorkerService(service.WorkerServiceOptions{Repo: mockRepo})
	return &WorkerHandlers{Svc: svc}, mockRepo, ctrl
}

func TestRegisterWorker_Success(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	expected := &model.Worker{
		ID:            testWorkerID,
		Name:          "worker-host-1",
		Status:        model.WorkerStatusActive,
		LastHeartbeat: time.Now(),
	}
	mockRepo.EXPECT().Register(gomock.Any(), gomock.Any()).Return(expected, nil)

	b, _ := json.Marshal(model.RegisterWorkerRequest{Name: "worker-host-1"})
	r := httptest.NewRequest(http.MethodPost, "/api/workers/", bytes.NewReader(b))
	w := httptest.NewRecorder()

	h.Register(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got model.Worker
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, expected.ID, got.ID)
	assert.Equal(t, model.WorkerStatusActive, got.Status)
}

func TestRegisterWorker_ValidationError(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	mockRepo.EXPECT().
		Register(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("worker name is required and cannot be empty"))

	b, _ := json.Marshal(model.RegisterWorkerRequest{Name: ""})
	r := httptest.NewRequest(http.MethodPost, "/api/workers/", bytes.NewReader(b))
	w := httptest.NewRecorder()

	h.Register(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "validation", body["error"])
}

func TestRegisterWorker_InvalidJSON(t *testing.T) {
	h, _, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	r := httptest.NewRequest(http.MethodPost, "/api/workers/", bytes.NewBufferString("{bad"))
	w := httptest.NewRecorder()

	h.Register(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListWorkers_Defaults(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	workers := []*model.Worker{
		{ID: testWorkerID, Name: "worker-a", Status: model.WorkerStatusActive},
	}
	mockRepo.EXPECT().List(gomock.Any(), 100, 0).Return(workers, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/workers/", nil)
	w := httptest.NewRecorder()

	h.List(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []*model.Worker
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "worker-a", got[0].Name)
}

func TestListWorkers_Pagination(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	mockRepo.EXPECT().List(gomock.Any(), 2, 4).Return([]*model.Worker{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/workers/?limit=2&skip=4", nil)
	w := httptest.NewRecorder()

	h.List(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetWorker_Success(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	expected := &model.Worker{ID: testWorkerID, Name: "worker-a", Status: model.WorkerStatusActive}
	mockRepo.EXPECT().GetByID(gomock.Any(), testWorkerID).Return(expected, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/workers/"+testWorkerID, nil)
	r.SetPathValue("id", testWorkerID)
	w := httptest.NewRecorder()

	h.GetByID(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.Worker
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, expected.ID, got.ID)
}

func TestGetWorker_NotFound(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	mockRepo.EXPECT().GetByID(gomock.Any(), testWorkerID).Return(nil, data.ErrWorkerNotFound)

	r := httptest.NewRequest(http.MethodGet, "/api/workers/"+testWorkerID, nil)
	r.SetPathValue("id", testWorkerID)
	w := httptest.NewRecorder()

	h.GetByID(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "worker_not_found", body["error"])
	assert.Equal(t, "Worker "+testWorkerID+" not found", body["message"])
}

func TestGetWorker_MalformedID_NotFound(t *testing.T) {
	h, _, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	// A non-uuid id can never match a row, so the repository is not consulted
	r := httptest.NewRequest(http.MethodGet, "/api/workers/not-a-uuid", nil)
	r.SetPathValue("id", "not-a-uuid")
	w := httptest.NewRecorder()

	h.GetByID(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWorkerHeartbeat_Success(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	expected := &model.Worker{
		ID:            testWorkerID,
		Status:        model.WorkerStatusActive,
		LastHeartbeat: time.Now(),
	}
	mockRepo.EXPECT().Heartbeat(gomock.Any(), testWorkerID).Return(expected, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/workers/"+testWorkerID+"/heartbeat", nil)
	r.SetPathValue("id", testWorkerID)
	w := httptest.NewRecorder()

	h.Heartbeat(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWorkerHeartbeat_NotFound(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	mockRepo.EXPECT().Heartbeat(gomock.Any(), testWorkerID).Return(nil, data.ErrWorkerNotFound)

	r := httptest.NewRequest(http.MethodPost, "/api/workers/"+testWorkerID+"/heartbeat", nil)
	r.SetPathValue("id", testWorkerID)
	w := httptest.NewRecorder()

	h.Heartbeat(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateWorkerStatus_Success(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	expected := &model.Worker{ID: testWorkerID, Status: model.WorkerStatusInactive}
	mockRepo.EXPECT().
		UpdateStatus(gomock.Any(), testWorkerID, model.WorkerStatusInactive).
		Return(expected, nil)

	b, _ := json.Marshal(map[string]string{"status": "inactive"})
	r := httptest.NewRequest(http.MethodPut, "/api/workers/"+testWorkerID+"/status", bytes.NewReader(b))
	r.SetPathValue("id", testWorkerID)
	w := httptest.NewRecorder()

	h.UpdateStatus(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.Worker
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, model.WorkerStatusInactive, got.Status)
}

func TestUpdateWorkerStatus_NotFound(t *testing.T) {
	h, mockRepo, ctrl := newWorkerHandlersWithMock(t)
	defer ctrl.Finish()

	mockRepo.EXPECT().
		UpdateStatus(gomock.Any(), testWorkerID, "inactive").
		Return(nil, data.ErrWorkerNotFound)

	b, _ := json.Marshal(map[string]string{"status": "inactive"})
	r := httptest.NewRequest(http.MethodPut, "/api/workers/"+testWorkerID+"/status", bytes.NewReader(b))
	r.SetPathValue("id", testWorkerID)
	w := httptest.NewRecorder()

	h.UpdateStatus(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
