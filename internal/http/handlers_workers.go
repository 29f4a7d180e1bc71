package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dispatchq/dispatchq/internal/data"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/service"
)

// WorkerHandlers provides HTTP handlers for worker registration and liveness.
type WorkerHandlers struct {
	Svc *service.WorkerService
}

// Register handles HTTP requests to register a new worker.
func (h *WorkerHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterWorkerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	worker, err := h.Svc.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, worker)
}

// List handles HTTP requests to list registered workers.
func (h *WorkerHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, skip := ParseLimitSkip(r, defaultListLimit, maxListLimit)

	workers, err := h.Svc.List(r.Context(), limit, skip)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, workers)
}

// GetByID handles HTTP requests to fetch a single worker.
func (h *WorkerHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := workerIDFromPath(w, r)
	if !ok {
		return
	}

	worker, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		writeWorkerError(w, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, worker)
}

// Heartbeat handles HTTP requests to refresh a worker's liveness timestamp.
func (h *WorkerHandlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := workerIDFromPath(w, r)
	if !ok {
		return
	}

	worker, err := h.Svc.Heartbeat(r.Context(), id)
	if err != nil {
		writeWorkerError(w, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, worker)
}

// UpdateStatus handles HTTP requests to set a worker's status.
func (h *WorkerHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := workerIDFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	worker, err := h.Svc.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		writeWorkerError(w, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, worker)
}

// workerIDFromPath extracts the worker id path segment, writing a 400 when missing.
func workerIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("worker id is required")},
		)
		return "", false
	}
	return id, true
}

// writeWorkerError maps worker sentinels onto the API error contract.
func writeWorkerError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, data.ErrWorkerNotFound) {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "worker_not_found",
			Err:     fmt.Errorf("Worker %s not found", id),
		})
		return
	}
	writeServiceError(w, err)
}
