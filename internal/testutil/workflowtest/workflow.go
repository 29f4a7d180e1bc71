// Package workflowtest provides workflow testing utilities and helpers for the dispatchq task queue.
package workflowtest

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dispatchq/dispatchq/internal/core"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/service"
	"github.com/dispatchq/dispatchq/internal/testutil"
)

// RepositoryProvider is a simple interface for providing repositories
// This avoids import cycles by letting callers provide their own implementations.
type RepositoryProvider interface {
	TaskRepository() core.TaskRepository
	WorkerRepository() core.WorkerRepository
}

// CacheProvider provides a cache repository given a Redis client created by the harness.
type CacheProvider interface {
	CacheRepository(client *redis.Client) core.CacheRepository
}

// WorkflowTestHarness provides utilities for end-to-end workflow testing.
//
//nolint:revive // WorkflowTestHarness is intentionally verbose for clarity in test code.
type WorkflowTestHarness struct {
	t  testutil.TestingTB
	db *sql.DB
	ts *httptest.Server

	// Repositories (using interfaces to avoid import cycles)
	TaskRepo   core.TaskRepository
	WorkerRepo core.WorkerRepository

	// Services
	TaskSvc   *service.TaskService
	WorkerSvc *service.WorkerService

	// Optional Redis components
	RedisAddr   string
	RedisClient *redis.Client
	CacheRepo   core.CacheRepository
	StatsCache  *core.StatsCacheService
}

// WorkflowTestOptions configures the workflow test harness.
//
//nolint:revive // WorkflowTestOptions is intentionally verbose for clarity in test code.
type WorkflowTestOptions struct {
	// EnableRedis enables Redis-based caching components
	EnableRedis bool
	// RedisAddr overrides the default Redis test address
	RedisAddr string
	// StatsTTL sets the stats cache TTL
	StatsTTL time.Duration
	// RepositoryProvider provides repositories (required to avoid import cycles)
	RepositoryProvider RepositoryProvider
	// CacheProvider provides cache repository (optional, only used if EnableRedis is true)
	CacheProvider CacheProvider
}

// NewWorkflowTestHarness creates a new workflow test harness with all components wired up.
func NewWorkflowTestHarness(t testutil.TestingTB, db *sql.DB, opts WorkflowTestOptions) *WorkflowTestHarness {
	t.Helper()

	// Set defaults
	if opts.StatsTTL == 0 {
		opts.StatsTTL = core.DefaultStatsCacheConfig().TTL
	}
	if opts.RepositoryProvider == nil {
		t.Fatalf("RepositoryProvider is required to avoid import cycles")
	}

	h := &WorkflowTestHarness{
		t:  t,
		db: db,
	}

	// Wire repositories using provider
	h.TaskRepo = opts.RepositoryProvider.TaskRepository()
	h.WorkerRepo = opts.RepositoryProvider.WorkerRepository()

	// Setup Redis components first so the task service can pick up the stats cache
	if opts.EnableRedis {
		h.setupRedis(opts.RedisAddr, opts.StatsTTL, opts.CacheProvider)
	}

	// Wire services
	h.TaskSvc = service.MustNewTaskService(service.TaskServiceOptions{
		Repo:       h.TaskRepo,
		StatsCache: h.StatsCache,
	})
	h.WorkerSvc = service.MustNewWorkerService(service.WorkerServiceOptions{
		Repo: h.WorkerRepo,
	})

	// Create HTTP test server
	h.setupHTTPServer()

	return h
}

// setupRedis initializes Redis components for caching.
func (h *WorkflowTestHarness) setupRedis(addr string, statsTTL time.Duration, cacheProvider CacheProvider) {
	h.t.Helper()

	if cacheProvider == nil {
		h.t.Fatalf("CacheProvider is required when EnableRedis is true")
	}

	if addr == "" {
		client := testutil.SetupTestRedis(h.t)
		h.initRedisClient(client, addr, statsTTL, cacheProvider)
		return
	}

	// Use specific address for custom setups
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		h.t.Logf("redis not available at %s: %v", addr, err)
		if closeErr := client.Close(); closeErr != nil {
			h.t.Logf("warning: failed to close redis client: %v", closeErr)
		}
		h.t.Skip("redis test instance unavailable; run docker-compose profile 'test'")
		return
	}

	h.initRedisClient(client, addr, statsTTL, cacheProvider)
}

func (h *WorkflowTestHarness) initRedisClient(
	client *redis.Client,
	addr string,
	statsTTL time.Duration,
	cacheProvider CacheProvider,
) {
	h.RedisAddr = addr
	h.RedisClient = client
	h.CacheRepo = cacheProvider.CacheRepository(client)
	h.StatsCache = core.NewStatsCacheService(core.StatsCacheServiceOptions{
		Cache:  h.CacheRepo,
		Config: core.StatsCacheConfig{TTL: statsTTL},
	})
}

// setupHTTPServer creates and starts the HTTP test server.
func (h *WorkflowTestHarness) setupHTTPServer() {
	h.t.Helper()

	// Create a basic HTTP router for testing
	// We avoid importing the http package to prevent import cycles
	mux := h.createTestRouter()
	h.ts = httptest.NewServer(mux)
}

// createTestRouter creates a basic HTTP router for testing without importing the http package.
func (h *WorkflowTestHarness) createTestRouter() *http.ServeMux {
	mux := http.NewServeMux()

	// Task endpoints - basic implementation for testing
	mux.HandleFunc("POST /api/tasks", h.handleCreateTask)
	mux.HandleFunc("GET /api/tasks/stats", h.handleTaskStats)
	mux.HandleFunc("POST /api/tasks/claim", h.handleClaimNext)
	mux.HandleFunc("POST /api/tasks/{id}/complete", h.handleCompleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/fail", h.handleFailTask)
	mux.HandleFunc("PATCH /api/tasks/{id}/pause", h.handlePauseTask)
	mux.HandleFunc("PATCH /api/tasks/{id}/resume", h.handleResumeTask)

	// Worker endpoints
	mux.HandleFunc("POST /api/workers", h.handleRegisterWorker)
	mux.HandleFunc("POST /api/workers/{id}/heartbeat", h.handleWorkerHeartbeat)

	return mux
}

// HTTP handler implementations for testing.
func (h *WorkflowTestHarness) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req *model.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	task, err := h.TaskSvc.Create(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if encodeErr := json.NewEncoder(w).Encode(task); encodeErr != nil {
		h.t.Fatalf("encode task response: %v", encodeErr)
	}
}

//nolint:gocognit,nestif // test handler keeps polling logic inline for readability in test harness
func (h *WorkflowTestHarness) handleClaimNext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerID string `json:"worker_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	wait := parseWaitSeconds(r)

	ctx := r.Context()
	deadline := time.Now().Add(time.Duration(wait) * time.Second)
	poll := 100 * time.Millisecond
	maxPoll := 1 * time.Second
	for {
		task, err := h.TaskSvc.ClaimNext(ctx, req.WorkerID)
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
			if encodeErr := json.NewEncoder(w).Encode(task); encodeErr != nil {
				h.t.Fatalf("encode claimed task response: %v", encodeErr)
			}
			return
		}
		if errors.Is(err, model.ErrNoTasksAvailable) {
			if wait > 0 && time.Now().Before(deadline) {
				// Exponential backoff with jitter up to 20%
				jitter := time.Duration(0)
				if limit := int64(poll / 5); limit > 0 {
					n, randErr := rand.Int(rand.Reader, big.NewInt(limit))
					if randErr != nil {
						h.t.Fatalf("generate jitter: %v", randErr)
					}
					jitter = time.Duration(n.Int64())
				}
				sleep := poll + jitter
				// Cap sleep to remaining time
				if rem := time.Until(deadline); sleep > rem {
					sleep = rem
				}
				select {
				case <-time.After(sleep):
					// increase poll for next iteration
					if poll < maxPoll {
						poll *= 2
						if poll > maxPoll {
							poll = maxPoll
						}
					}
					continue
				case <-ctx.Done():
					// Client cancelled request
					w.WriteHeader(499)
					if _, writeErr := w.Write([]byte("client closed request")); writeErr != nil {
						h.t.Logf("failed to write client closed response: %v", writeErr)
					}
					return
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

func parseWaitSeconds(r *http.Request) int {
	wait := 0
	if waitStr := r.URL.Query().Get("wait"); waitStr != "" {
		if v, err := strconv.Atoi(waitStr); err == nil {
			wait = v
		}
	}
	return wait
}

func (h *WorkflowTestHarness) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	var req struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	task, err := h.TaskSvc.Complete(r.Context(), taskID, req.Result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(task); encodeErr != nil {
		h.t.Fatalf("encode completed task response: %v", encodeErr)
	}
}

func (h *WorkflowTestHarness) handleFailTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	var req struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	task, err := h.TaskSvc.Fail(r.Context(), taskID, req.Error)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(task); encodeErr != nil {
		h.t.Fatalf("encode failed task response: %v", encodeErr)
	}
}

func (h *WorkflowTestHarness) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	task, err := h.TaskSvc.Pause(r.Context(), taskID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(task); encodeErr != nil {
		h.t.Fatalf("encode paused task response: %v", encodeErr)
	}
}

func (h *WorkflowTestHarness) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	task, err := h.TaskSvc.Resume(r.Context(), taskID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(task); encodeErr != nil {
		h.t.Fatalf("encode resumed task response: %v", encodeErr)
	}
}

func (h *WorkflowTestHarness) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.TaskSvc.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(stats); encodeErr != nil {
		h.t.Fatalf("encode stats response: %v", encodeErr)
	}
}

func (h *WorkflowTestHarness) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req *model.RegisterWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	worker, err := h.WorkerSvc.Register(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if encodeErr := json.NewEncoder(w).Encode(worker); encodeErr != nil {
		h.t.Fatalf("encode worker response: %v", encodeErr)
	}
}

func (h *WorkflowTestHarness) handleWorkerHeartbeat(w http.ResponseWriter, r *http.Request) {
	workerID := r.PathValue("id")
	worker, err := h.WorkerSvc.Heartbeat(r.Context(), workerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(worker); encodeErr != nil {
		h.t.Fatalf("encode heartbeat response: %v", encodeErr)
	}
}

// Close cleans up all resources.
func (h *WorkflowTestHarness) Close() {
	h.t.Helper()

	if h.ts != nil {
		h.ts.Close()
	}
	if h.TaskSvc != nil {
		h.TaskSvc.StopAllListeners()
	}
	if h.RedisClient != nil {
		if err := h.RedisClient.Close(); err != nil {
			h.t.Logf("warning: failed to close redis client: %v", err)
		}
	}
}

// BaseURL returns the base URL of the test HTTP server.
func (h *WorkflowTestHarness) BaseURL() string {
	return h.ts.URL
}

// HTTPClient provides utilities for making HTTP requests to the test server.
type HTTPClient struct {
	t       testutil.TestingTB
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new HTTP client for testing.
func (h *WorkflowTestHarness) NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		t:       h.t,
		baseURL: h.BaseURL(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// DoJSON creates a request with context and performs it using the harness client.
func (c *HTTPClient) DoJSON(method, path string, payload any) *http.Response {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

// CreateTask creates a task via HTTP API and returns the created task.
func (c *HTTPClient) CreateTask(req *model.CreateTaskRequest) model.Task {
	c.t.Helper()

	resp := c.DoJSON(http.MethodPost, "/api/tasks", req)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create task status: %d", resp.StatusCode)
	}

	var task model.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		c.t.Fatalf("decode create task: %v", err)
	}
	return task
}

// ClaimNextTask claims the next ready task for the given worker.
// Returns nil when no task is ready within the wait window.
func (c *HTTPClient) ClaimNextTask(workerID string, waitSec int) *model.Task {
	c.t.Helper()

	path := fmt.Sprintf("/api/tasks/claim?wait=%d", waitSec)
	payload := map[string]string{"worker_id": workerID}
	resp := c.DoJSON(http.MethodPost, path, payload)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("claim status: %d", resp.StatusCode)
	}

	var task model.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		c.t.Fatalf("decode claimed task: %v", err)
	}
	return &task
}

// CompleteTask marks a task as completed via HTTP API.
func (c *HTTPClient) CompleteTask(taskID string, result json.RawMessage) {
	c.t.Helper()

	path := fmt.Sprintf("/api/tasks/%s/complete", taskID)
	payload := map[string]json.RawMessage{"result": result}
	resp := c.DoJSON(http.MethodPost, path, payload)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("complete task status: %d", resp.StatusCode)
	}
}

// FailTask marks a task as failed via HTTP API.
func (c *HTTPClient) FailTask(taskID, errorMsg string) {
	c.t.Helper()

	path := fmt.Sprintf("/api/tasks/%s/fail", taskID)
	payload := struct {
		Error string `json:"error"`
	}{
		Error: errorMsg,
	}
	resp := c.DoJSON(http.MethodPost, path, payload)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			c.t.Fatalf("fail task status: %d, failed to read response: %v", resp.StatusCode, err)
		}
		c.t.Fatalf("fail task status: %d, response: %s", resp.StatusCode, string(body))
	}
}

// PauseTask pauses a queued or running task via HTTP API.
func (c *HTTPClient) PauseTask(taskID string) model.Task {
	c.t.Helper()

	path := fmt.Sprintf("/api/tasks/%s/pause", taskID)
	resp := c.DoJSON(http.MethodPatch, path, nil)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("pause task status: %d", resp.StatusCode)
	}

	var task model.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		c.t.Fatalf("decode paused task: %v", err)
	}
	return task
}

// ResumeTask resumes a paused task via HTTP API.
func (c *HTTPClient) ResumeTask(taskID string) model.Task {
	c.t.Helper()

	path := fmt.Sprintf("/api/tasks/%s/resume", taskID)
	resp := c.DoJSON(http.MethodPatch, path, nil)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("resume task status: %d", resp.StatusCode)
	}

	var task model.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		c.t.Fatalf("decode resumed task: %v", err)
	}
	return task
}

// RegisterWorker registers a worker via HTTP API and returns the created worker.
func (c *HTTPClient) RegisterWorker(req *model.RegisterWorkerRequest) model.Worker {
	c.t.Helper()

	resp := c.DoJSON(http.MethodPost, "/api/workers", req)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register worker status: %d", resp.StatusCode)
	}

	var worker model.Worker
	if err := json.NewDecoder(resp.Body).Decode(&worker); err != nil {
		c.t.Fatalf("decode register worker: %v", err)
	}
	return worker
}

// HeartbeatWorker sends a heartbeat for a worker via HTTP API.
func (c *HTTPClient) HeartbeatWorker(workerID string) {
	c.t.Helper()

	path := fmt.Sprintf("/api/workers/%s/heartbeat", workerID)
	resp := c.DoJSON(http.MethodPost, path, nil)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("heartbeat worker status: %d", resp.StatusCode)
	}
}

// TaskStats fetches queue statistics via HTTP API.
func (c *HTTPClient) TaskStats() model.TaskStats {
	c.t.Helper()

	resp := c.DoJSON(http.MethodGet, "/api/tasks/stats", nil)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.t.Logf("warning: failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("task stats status: %d", resp.StatusCode)
	}

	var stats model.TaskStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		c.t.Fatalf("decode task stats: %v", err)
	}
	return stats
}

// WorkflowHelpers provides high-level workflow testing utilities.
type WorkflowHelpers struct {
	harness *WorkflowTestHarness
	client  *HTTPClient
}

// NewWorkflowHelpers creates workflow helpers for the given harness.
func (h *WorkflowTestHarness) NewWorkflowHelpers() *WorkflowHelpers {
	return &WorkflowHelpers{
		harness: h,
		client:  h.NewHTTPClient(),
	}
}

// RegisterTestWorker registers a worker through the repository.
func (w *WorkflowHelpers) RegisterTestWorker(name string) *model.Worker {
	w.harness.t.Helper()

	ctx := context.Background()
	worker, err := w.harness.WorkerRepo.Register(ctx, &model.RegisterWorkerRequest{
		Name: name,
	})
	if err != nil {
		w.harness.t.Fatalf("register worker: %v", err)
	}
	return worker
}

// RegisterTestWorkerWithTimestamp registers a worker with a unique timestamp-based name.
func (w *WorkflowHelpers) RegisterTestWorkerWithTimestamp() *model.Worker {
	w.harness.t.Helper()

	name := fmt.Sprintf("test-worker-%d", time.Now().UnixNano())
	return w.RegisterTestWorker(name)
}

// RunCompleteWorkflow runs a complete workflow: register worker, create task, claim, complete.
func (w *WorkflowHelpers) RunCompleteWorkflow(payload json.RawMessage) (*model.Worker, *model.Task) {
	w.harness.t.Helper()

	// 1. Register a worker to claim for
	worker := w.RegisterTestWorkerWithTimestamp()

	// 2. Enqueue a task
	task := w.client.CreateTask(&model.CreateTaskRequest{
		Name:    fmt.Sprintf("test-task-%d", time.Now().UnixNano()),
		Payload: payload,
	})

	// 3. Claim the task
	claimed := w.client.ClaimNextTask(worker.ID, 1)
	if claimed == nil {
		w.harness.t.Fatalf("expected a claimable task, got none")
	}
	if claimed.ID != task.ID {
		w.harness.t.Fatalf("expected claimed task ID %s, got %s", task.ID, claimed.ID)
	}

	// 4. Complete the task with a result
	w.client.CompleteTask(claimed.ID, json.RawMessage(`{"ok":true}`))

	return worker, claimed
}

// VerifyTaskCompleted verifies that a task is marked as completed.
func (w *WorkflowHelpers) VerifyTaskCompleted(taskID string) {
	w.harness.t.Helper()

	task, err := w.harness.TaskRepo.GetByID(context.Background(), taskID)
	if err != nil {
		w.harness.t.Fatalf("get task %s: %v", taskID, err)
	}
	if task.Status != model.TaskStatusCompleted {
		w.harness.t.Fatalf("task %s not completed; status=%s", taskID, task.Status)
	}
	if task.CompletedAt == nil {
		w.harness.t.Fatalf("task %s completed without completed_at", taskID)
	}
}

// VerifyTaskAssignedTo verifies that a task is assigned to the given worker.
func (w *WorkflowHelpers) VerifyTaskAssignedTo(taskID, workerID string) {
	w.harness.t.Helper()

	task, err := w.harness.TaskRepo.GetByID(context.Background(), taskID)
	if err != nil {
		w.harness.t.Fatalf("get task %s: %v", taskID, err)
	}
	if task.WorkerID == nil || *task.WorkerID != workerID {
		w.harness.t.Fatalf("task %s not assigned to worker %s; got %v", taskID, workerID, task.WorkerID)
	}
}

// SimpleTaskRequest builds a create request with a small JSON payload.
// If name is empty, a unique timestamp-based name is generated.
func SimpleTaskRequest(name string, priority model.TaskPriority) *model.CreateTaskRequest {
	if name == "" {
		name = fmt.Sprintf("task-%d", time.Now().UnixNano())
	}

	return &model.CreateTaskRequest{
		Name:     name,
		Payload:  json.RawMessage(`{"action":"run"}`),
		Priority: &priority,
	}
}

// skipIfRedisUnavailable skips the test if Redis is required but unavailable.
func skipIfRedisUnavailable(t testutil.TestingTB, opts WorkflowTestOptions) {
	t.Helper()

	if !opts.EnableRedis {
		return
	}

	if opts.RedisAddr == "" {
		// Use centralized Redis address detection
		if _, ok := testutil.GetTestRedisAddr(t); !ok {
			t.Skip("redis test instance unavailable; run docker-compose profile 'test'")
		}
		return
	}

	// Test specific address by trying to connect
	client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
	defer func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis client: %v", err)
		}
	}()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("redis test instance unavailable; run docker-compose profile 'test'")
	}
}

// WithWorkflowHarness is a helper that sets up and tears down a workflow test harness.
func WithWorkflowHarness(t testutil.TestingTB, opts WorkflowTestOptions, fn func(*WorkflowTestHarness)) {
	t.Helper()

	testutil.SkipIfNoTestDB(t)
	skipIfRedisUnavailable(t, opts)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		harness := NewWorkflowTestHarness(t, db, opts)
		defer harness.Close()
		fn(harness)
	})
}

// DefaultWorkflowOptions returns default options for workflow testing.
// Note: You must provide RepositoryProvider to avoid import cycles.
// Example:
//
//	opts := DefaultWorkflowOptions()
//	opts.RepositoryProvider = myRepositoryProvider
func DefaultWorkflowOptions() WorkflowTestOptions {
	return WorkflowTestOptions{
		EnableRedis: false,
		StatsTTL:    5 * time.Second,
		// RepositoryProvider must be set by caller
		// CacheProvider is optional (only needed if EnableRedis is true)
	}
}

// RedisWorkflowOptions returns options for workflow testing with Redis enabled.
// Note: You must provide both RepositoryProvider and CacheProvider to avoid import cycles.
// Example:
//
//	opts := RedisWorkflowOptions()
//	opts.RepositoryProvider = myRepositoryProvider
//	opts.CacheProvider = myCacheProvider
func RedisWorkflowOptions() WorkflowTestOptions {
	return WorkflowTestOptions{
		EnableRedis: true,
		StatsTTL:    5 * time.Second,
		// RepositoryProvider must be set by caller
		// CacheProvider must be set by caller when EnableRedis is true
	}
}
