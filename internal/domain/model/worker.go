package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Worker status values set by the runtime. The column itself is free-form so
// operators can record richer states without a migration.
const (
	WorkerStatusActive   = "active"
	WorkerStatusInactive = "inactive"
)

const maxWorkerNameLength = 255

// Worker represents a registered worker process and its liveness metadata.
type Worker struct {
	ID            string    `json:"id"             db:"id"`
	Name          string    `json:"name"           db:"name"`
	Status        string    `json:"status"         db:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat" db:"last_heartbeat"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"`
}

// RegisterWorkerRequest represents a request to register a new worker.
type RegisterWorkerRequest struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// Validate validates the RegisterWorkerRequest fields.
func (r *RegisterWorkerRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("worker name is required and cannot be empty")
	}
	if len(r.Name) > maxWorkerNameLength {
		return fmt.Errorf("worker name cannot exceed %d characters", maxWorkerNameLength)
	}
	if len(r.Status) > maxWorkerNameLength {
		return fmt.Errorf("worker status cannot exceed %d characters", maxWorkerNameLength)
	}
	return nil
}

// EffectiveStatus returns the requested status or the active default.
func (r *RegisterWorkerRequest) EffectiveStatus() string {
	if strings.TrimSpace(r.Status) == "" {
		return WorkerStatusActive
	}
	return r.Status
}
