// Package httpx provides HTTP handlers and utilities for the dispatchq task queue API.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dispatchq/dispatchq/internal/data"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	domaintask "github.com/dispatchq/dispatchq/internal/domain/task"
	"github.com/dispatchq/dispatchq/internal/service"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// TaskHandlers provides HTTP handlers for task-related operations.
type TaskHandlers struct {
	Svc *service.TaskService

	// Wait bounds claim long-polls. A nil policy applies the default maximum.
	Wait *domaintask.WaitPolicy
}

// Create handles HTTP requests to enqueue a new task.
func (h *TaskHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTaskRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	task, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, task)
}

// List handles HTTP requests to list tasks with optional status filtering.
func (h *TaskHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, skip := ParseLimitSkip(r, defaultListLimit, maxListLimit)
	opts := &model.TaskListOptions{Limit: limit, Offset: skip}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseTaskStatus(raw)
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_status", Err: err})
			return
		}
		opts.Status = &status
	}

	list, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, list)
}

// GetByID handles HTTP requests to fetch a single task.
func (h *TaskHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	task, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		writeTaskError(w, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, task)
}

// Update handles HTTP requests to partially update a task.
func (h *TaskHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	var req model.UpdateTaskRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	task, err := h.Svc.Update(r.Context(), id, &req)
	if err != nil {
		writeTaskError(w, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, task)
}

// Delete handles HTTP requests to delete a task. Running tasks are refused.
func (h *TaskHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.Svc.Delete(r.Context(), id); err != nil {
		writeTaskError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Pause handles HTTP requests to pause a task. Absent tasks and tasks in a
// non-pausable status both report 404, matching the original queue service.
func (h *TaskHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	task, err := h.Svc.Pause(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrTaskNotFound) || errors.Is(err, data.ErrTaskNotPausable) {
			WriteError(w, ErrorParams{
				Code:    http.StatusNotFound,
				ErrCode: "task_not_pausable",
				Err:     fmt.Errorf("Task %s cannot be paused", id),
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, task)
}

// Resume handles HTTP requests to resume a paused task. Absent tasks and tasks
// that are not paused both report 404, matching the original queue service.
func (h *TaskHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	task, err := h.Svc.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrTaskNotFound) || errors.Is(err, data.ErrTaskNotPaused) {
			WriteError(w, ErrorParams{
				Code:    http.StatusNotFound,
				ErrCode: "task_not_resumable",
				Err:     fmt.Errorf("Task %s cannot be resumed", id),
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, task)
}

// Claim handles HTTP requests to atomically claim the next ready task.
// Responds 200 with the claimed task, or 204 when nothing is ready. A `wait`
// query parameter (seconds, capped by the wait policy) long-polls on queue
// notifications before giving up.
func (h *TaskHandlers) Claim(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkerID string `json:"worker_id"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}
	decision := h.Wait.Resolve(parseIntQuery(r, "wait", 0))

	// First attempt
	if task, err := h.tryClaim(r.Context(), body.WorkerID); err != nil {
		writeServiceError(w, err)
		return
	} else if task != nil {
		WriteJSON(w, http.StatusOK, task)
		return
	}

	if !decision.ShouldWait() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.claimLongPoll(w, r, claimPollParams{
		workerID: body.WorkerID,
		wait:     decision.Duration,
	})
}

func (h *TaskHandlers) tryClaim(ctx context.Context, workerID string) (*model.Task, error) {
	task, err := h.Svc.ClaimNext(ctx, workerID)
	if err != nil && !errors.Is(err, model.ErrNoTasksAvailable) {
		return nil, err
	}
	return task, nil
}

type claimPollParams struct {
	workerID string
	wait     time.Duration
}

func (h *TaskHandlers) claimLongPoll(w http.ResponseWriter, r *http.Request, params claimPollParams) {
	ctx, cancel := context.WithTimeout(r.Context(), params.wait)
	defer cancel()

	unsub, ch := h.Svc.Subscribe()
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			w.WriteHeader(http.StatusNoContent)
			return
		case <-ch:
			if task, err := h.tryClaim(ctx, params.workerID); err != nil {
				writeServiceError(w, err)
				return
			} else if task != nil {
				WriteJSON(w, http.StatusOK, task)
				return
			}
			// No claim yet; keep waiting until ctx timeout to handle missed/duplicate signals.
		}
	}
}

// Complete handles HTTP requests to mark a claimed task as completed.
func (h *TaskHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Result json.RawMessage `json:"result"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	task, err := h.Svc.Complete(r.Context(), id, body.Result)
	if err != nil {
		writeTaskError(w, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, task)
}

// Fail handles HTTP requests to mark a claimed task as failed with an error message.
func (h *TaskHandlers) Fail(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Error string `json:"error"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	task, err := h.Svc.Fail(r.Context(), id, body.Error)
	if err != nil {
		writeTaskError(w, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, task)
}

// Stats handles HTTP requests to retrieve per-status task counts.
func (h *TaskHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// taskIDFromPath extracts the task id path segment, writing a 400 when missing.
func taskIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("task id is required")},
		)
		return "", false
	}
	return id, true
}

// writeTaskError maps task lifecycle sentinels onto the API error contract.
func writeTaskError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, data.ErrTaskNotFound):
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "task_not_found",
			Err:     fmt.Errorf("Task %s not found", id),
		})
	case errors.Is(err, data.ErrTaskRunning):
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "task_running",
			Err:     fmt.Errorf("Task %s is running and cannot be deleted", id),
		})
	case errors.Is(err, data.ErrTaskNotRunning):
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "task_not_running",
			Err:     fmt.Errorf("Task %s is not in a running state", id),
		})
	default:
		writeServiceError(w, err)
	}
}
