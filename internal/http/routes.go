package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domaintask "github.com/dispatchq/dispatchq/internal/domain/task"
	"github.com/dispatchq/dispatchq/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Tasks        *service.TaskService
	Workers      *service.WorkerService
	MaxClaimWait time.Duration // Upper bound for claim long-polls (0 = default)
	Logger       *slog.Logger  // Logger for request logging and panic reports (optional)
}

// NewRouter creates and configures the task queue API router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	maxWait := services.MaxClaimWait
	if maxWait <= 0 {
		maxWait = domaintask.DefaultMaxClaimWait
	}

	taskHandlers := &TaskHandlers{
		Svc:  services.Tasks,
		Wait: domaintask.MustNewWaitPolicy(maxWait),
	}
	workerHandlers := &WorkerHandlers{Svc: services.Workers}

	registerTaskRoutes(mux, taskHandlers)
	registerWorkerRoutes(mux, workerHandlers)

	mux.HandleFunc("GET /{$}", rootHandler)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Recover wraps everything so a handler panic still yields a 500 response.
	return Recover(logger)(Logging(logger)(mux))
}

// Collection endpoints register bare and trailing-slash forms so POST clients
// never bounce through a 301.
func registerTaskRoutes(mux *http.ServeMux, h *TaskHandlers) {
	mux.HandleFunc("POST /api/tasks", h.Create)
	mux.HandleFunc("POST /api/tasks/{$}", h.Create)
	mux.HandleFunc("GET /api/tasks", h.List)
	mux.HandleFunc("GET /api/tasks/{$}", h.List)
	mux.HandleFunc("GET /api/tasks/stats", h.Stats)
	mux.HandleFunc("POST /api/tasks/claim", h.Claim)
	mux.HandleFunc("GET /api/tasks/{id}", h.GetByID)
	mux.HandleFunc("PUT /api/tasks/{id}", h.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.Delete)
	mux.HandleFunc("PATCH /api/tasks/{id}/pause", h.Pause)
	mux.HandleFunc("PATCH /api/tasks/{id}/resume", h.Resume)
	mux.HandleFunc("POST /api/tasks/{id}/complete", h.Complete)
	mux.HandleFunc("POST /api/tasks/{id}/fail", h.Fail)
}

func registerWorkerRoutes(mux *http.ServeMux, h *WorkerHandlers) {
	mux.HandleFunc("POST /api/workers", h.Register)
	mux.HandleFunc("POST /api/workers/{$}", h.Register)
	mux.HandleFunc("GET /api/workers", h.List)
	mux.HandleFunc("GET /api/workers/{$}", h.List)
	mux.HandleFunc("GET /api/workers/{id}", h.GetByID)
	mux.HandleFunc("POST /api/workers/{id}/heartbeat", h.Heartbeat)
	mux.HandleFunc("PUT /api/workers/{id}/status", h.UpdateStatus)
}
