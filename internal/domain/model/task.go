// Package model defines the core data types and structures used throughout the dispatchq task queue.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current status of a task.
type TaskStatus string

// TaskPriority represents the urgency of a task. It is stored as an integer
// ordinal so that database ordering reflects urgency, and rendered as its
// symbolic name on every API boundary.
//
//nolint:recvcheck // UnmarshalText/UnmarshalJSON need pointer receivers, the rest value receivers
type TaskPriority int

const (
	// TaskStatusPending indicates a task is ready to be claimed.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusScheduled indicates a task becomes claimable at scheduled_at.
	TaskStatusScheduled TaskStatus = "scheduled"
	// TaskStatusRunning indicates a worker is executing the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusPaused indicates the task is withheld from claiming.
	TaskStatusPaused TaskStatus = "paused"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task finished with an error.
	TaskStatusFailed TaskStatus = "failed"
)

const (
	// TaskPriorityLow is the lowest urgency.
	TaskPriorityLow TaskPriority = 1
	// TaskPriorityMedium is the default urgency.
	TaskPriorityMedium TaskPriority = 2
	// TaskPriorityHigh is elevated urgency.
	TaskPriorityHigh TaskPriority = 3
	// TaskPriorityCritical is the highest urgency.
	TaskPriorityCritical TaskPriority = 4
)

// ErrNoTasksAvailable is returned when no ready tasks are available to claim.
var ErrNoTasksAvailable = errors.New("no tasks available")

// Valid returns true if the TaskStatus is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusScheduled, TaskStatusRunning,
		TaskStatusPaused, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ParseTaskStatus parses a status name case-insensitively.
func ParseTaskStatus(v string) (TaskStatus, error) {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid task status: %q", v)
	}
	return s, nil
}

// Valid returns true if the TaskPriority is one of the known ordinals.
func (p TaskPriority) Valid() bool {
	return p >= TaskPriorityLow && p <= TaskPriorityCritical
}

// String returns the symbolic priority name.
func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityLow:
		return "LOW"
	case TaskPriorityMedium:
		return "MEDIUM"
	case TaskPriorityHigh:
		return "HIGH"
	case TaskPriorityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("TaskPriority(%d)", int(p))
	}
}

// ParseTaskPriority parses a symbolic priority name case-insensitively.
func ParseTaskPriority(v string) (TaskPriority, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "LOW":
		return TaskPriorityLow, nil
	case "MEDIUM":
		return TaskPriorityMedium, nil
	case "HIGH":
		return TaskPriorityHigh, nil
	case "CRITICAL":
		return TaskPriorityCritical, nil
	default:
		return 0, fmt.Errorf("invalid task priority: %q", v)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for TaskPriority to allow env parsing.
func (p *TaskPriority) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskPriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON renders the priority as its symbolic name.
func (p TaskPriority) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid task priority: %d", int(p))
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the symbolic priority name.
func (p *TaskPriority) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("task priority must be a string: %w", err)
	}
	return p.UnmarshalText([]byte(name))
}

// Task represents a task in the queue with all its metadata and status information.
type Task struct {
	ID          string          `json:"id"                     db:"id"`
	Name        string          `json:"name"                   db:"name"`
	Payload     json.RawMessage `json:"payload"                db:"payload"`
	Status      TaskStatus      `json:"status"                 db:"status"`
	Priority    TaskPriority    `json:"priority"               db:"priority"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	WorkerID    *string         `json:"worker_id,omitempty"    db:"worker_id"`
	Result      json.RawMessage `json:"result,omitempty"       db:"result"`
	Error       *string         `json:"error,omitempty"        db:"error"`
	CreatedAt   time.Time       `json:"created_at"             db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"             db:"updated_at"`
}

const maxTaskNameLength = 255

// CreateTaskRequest represents a request to create a new task.
type CreateTaskRequest struct {
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    *TaskPriority   `json:"priority,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
}

// Validate validates the CreateTaskRequest fields.
func (r *CreateTaskRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("task name is required and cannot be empty")
	}
	if len(r.Name) > maxTaskNameLength {
		return fmt.Errorf("task name cannot exceed %d characters", maxTaskNameLength)
	}
	if r.Priority != nil && !r.Priority.Valid() {
		return errors.New("task priority must be one of: LOW, MEDIUM, HIGH, CRITICAL")
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return errors.New("task payload must be valid JSON")
	}
	return nil
}

// EffectivePriority returns the requested priority or the default.
func (r *CreateTaskRequest) EffectivePriority() TaskPriority {
	if r.Priority != nil {
		return *r.Priority
	}
	return TaskPriorityMedium
}

// UpdateTaskRequest represents a partial update; nil fields are left untouched.
// Status writes bypass the guarded lifecycle and exist for operator correction.
type UpdateTaskRequest struct {
	Name        *string          `json:"name,omitempty"`
	Payload     *json.RawMessage `json:"payload,omitempty"`
	Priority    *TaskPriority    `json:"priority,omitempty"`
	ScheduledAt *time.Time       `json:"scheduled_at,omitempty"`
	Status      *TaskStatus      `json:"status,omitempty"`
}

// Validate validates the UpdateTaskRequest fields.
func (r *UpdateTaskRequest) Validate() error {
	if r.Name == nil && r.Payload == nil && r.Priority == nil && r.ScheduledAt == nil && r.Status == nil {
		return errors.New("at least one field must be updated")
	}
	if r.Name != nil {
		if strings.TrimSpace(*r.Name) == "" {
			return errors.New("task name is required and cannot be empty")
		}
		if len(*r.Name) > maxTaskNameLength {
			return fmt.Errorf("task name cannot exceed %d characters", maxTaskNameLength)
		}
	}
	if r.Priority != nil && !r.Priority.Valid() {
		return errors.New("task priority must be one of: LOW, MEDIUM, HIGH, CRITICAL")
	}
	if r.Status != nil && !r.Status.Valid() {
		return fmt.Errorf("invalid task status: %q", string(*r.Status))
	}
	if r.Payload != nil && len(*r.Payload) > 0 && !json.Valid(*r.Payload) {
		return errors.New("task payload must be valid JSON")
	}
	return nil
}

// TaskList is a page of tasks plus the total count matching the filter.
type TaskList struct {
	Items []*Task `json:"items"`
	Total int     `json:"total"`
}

// TaskStats represents per-status counts for the queue.
type TaskStats struct {
	Pending   int `json:"pending"`
	Scheduled int `json:"scheduled"`
	Running   int `json:"running"`
	Paused    int `json:"paused"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
