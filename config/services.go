package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the task worker loops.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the reaper for task and worker cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeWorker,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains task worker service configuration.
type WorkerConfig struct {
	// PollIntervalSeconds is the sleep between empty claim attempts, in whole
	// seconds. Kept as a plain integer for compatibility with existing
	// deployment environments.
	PollIntervalSeconds int `env:"WORKER_POLL_INTERVAL" envDefault:"5"`

	// MaxTasks is the number of tasks a worker loop processes before it
	// retires. Zero or negative means no limit.
	MaxTasks int `env:"WORKER_MAX_TASKS" envDefault:"10"`

	// Count is the number of worker loops to run in this process.
	Count int `env:"WORKER_COUNT" envDefault:"1"`

	// HeartbeatInterval is how often each worker reports liveness.
	HeartbeatInterval time.Duration `env:"WORKER_HEARTBEAT_INTERVAL" envDefault:"30s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.PollIntervalSeconds < 1 {
		w.PollIntervalSeconds = 1
	}
	if w.Count < 1 {
		w.Count = 1
	}
	if w.HeartbeatInterval < time.Second {
		w.HeartbeatInterval = time.Second
	}
}

// PollInterval returns the poll interval as a duration.
func (w *WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// ReaperConfig contains reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// WorkerTimeout is how long a worker may go without a heartbeat before
	// its running tasks are requeued and the worker is marked inactive.
	WorkerTimeout time.Duration `env:"REAPER_WORKER_TIMEOUT" envDefault:"90s"`

	// CompletedMaxAge is the maximum age for completed tasks before deletion.
	// Zero disables completed-task deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed tasks before deletion.
	// Zero disables failed-task deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
// The WorkerTimeout floor against the heartbeat interval is applied by
// AppConfig.Sanitize, which sees both configs.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.CompletedMaxAge < 0 {
		r.CompletedMaxAge = 0
	}
	if r.FailedMaxAge < 0 {
		r.FailedMaxAge = 0
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
