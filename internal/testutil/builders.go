// Package testutil provides testing utilities and helpers for the dispatchq task queue.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/dispatchq/dispatchq/internal/domain/model"
)

// TaskRequestBuilder provides a fluent interface for building CreateTaskRequest objects for testing.
type TaskRequestBuilder struct {
	req *model.CreateTaskRequest
}

// NewTaskRequest creates a new TaskRequestBuilder with sensible defaults.
func NewTaskRequest() *TaskRequestBuilder {
	return &TaskRequestBuilder{
		req: &model.CreateTaskRequest{
			Name:    "send-email",
			Payload: json.RawMessage(`{"to": "user@example.com"}`),
		},
	}
}

// WithName sets the task name.
func (b *TaskRequestBuilder) WithName(name string) *TaskRequestBuilder {
	b.req.Name = name
	return b
}

// WithPriority sets the task priority.
func (b *TaskRequestBuilder) WithPriority(priority model.TaskPriority) *TaskRequestBuilder {
	b.req.Priority = &priority
	return b
}

// WithPayload sets the task payload.
func (b *TaskRequestBuilder) WithPayload(payload json.RawMessage) *TaskRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithPayloadString sets the task payload from a string.
func (b *TaskRequestBuilder) WithPayloadString(payload string) *TaskRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *TaskRequestBuilder) WithScheduledAt(scheduledAt time.Time) *TaskRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// Build returns the constructed CreateTaskRequest.
func (b *TaskRequestBuilder) Build() *model.CreateTaskRequest {
	return b.req
}

// TestScenarioBuilder provides a fluent interface for building test scenarios.
type TestScenarioBuilder struct {
	tasks []TaskScenario
}

// TaskScenario represents a task and the actions to perform on it.
type TaskScenario struct {
	Request *model.CreateTaskRequest
	Actions []TaskAction
}

// TaskAction represents an action to perform on a task.
type TaskAction struct {
	Type   string // "claim", "complete", "fail", "pause"
	Params map[string]interface{}
}

// NewTestScenario creates a new TestScenarioBuilder.
func NewTestScenario() *TestScenarioBuilder {
	return &TestScenarioBuilder{
		tasks: make([]TaskScenario, 0),
	}
}

// AddTask adds a task scenario to the test.
func (b *TestScenarioBuilder) AddTask(request *model.CreateTaskRequest, actions ...TaskAction) *TestScenarioBuilder {
	b.tasks = append(b.tasks, TaskScenario{
		Request: request,
		Actions: actions,
	})
	return b
}

// AddPendingTask adds a task that stays pending.
func (b *TestScenarioBuilder) AddPendingTask(priority model.TaskPriority) *TestScenarioBuilder {
	req := NewTaskRequest().
		WithPriority(priority).
		WithPayloadString(`{"state": "pending"}`).
		Build()
	return b.AddTask(req)
}

// AddRunningTask adds a task that gets claimed and stays running.
func (b *TestScenarioBuilder) AddRunningTask(priority model.TaskPriority) *TestScenarioBuilder {
	req := NewTaskRequest().
		WithPriority(priority).
		WithPayloadString(`{"state": "running"}`).
		Build()
	return b.AddTask(req, ClaimAction())
}

// AddCompletedTask adds a task that gets claimed and completed.
func (b *TestScenarioBuilder) AddCompletedTask(priority model.TaskPriority) *TestScenarioBuilder {
	req := NewTaskRequest().
		WithPriority(priority).
		WithPayloadString(`{"state": "completed"}`).
		Build()
	return b.AddTask(req, ClaimAction(), CompleteAction())
}

// AddFailedTask adds a task that gets claimed and failed.
func (b *TestScenarioBuilder) AddFailedTask(priority model.TaskPriority) *TestScenarioBuilder {
	req := NewTaskRequest().
		WithPriority(priority).
		WithPayloadString(`{"state": "failed"}`).
		Build()
	return b.AddTask(req, ClaimAction(), FailAction("test failure"))
}

// Build returns the constructed task scenarios.
func (b *TestScenarioBuilder) Build() []TaskScenario {
	return b.tasks
}

// Action builders for common task actions

// ClaimAction creates a claim action.
func ClaimAction() TaskAction {
	return TaskAction{Type: "claim"}
}

// CompleteAction creates a complete action.
func CompleteAction() TaskAction {
	return TaskAction{Type: "complete"}
}

// FailAction creates a fail action with an error message.
func FailAction(errorMsg string) TaskAction {
	return TaskAction{
		Type:   "fail",
		Params: map[string]interface{}{"error": errorMsg},
	}
}

// PauseAction creates a pause action.
func PauseAction() TaskAction {
	return TaskAction{Type: "pause"}
}

// Common test task request presets

// EmailTaskRequest creates an email delivery task request with default values.
func EmailTaskRequest() *model.CreateTaskRequest {
	return NewTaskRequest().
		WithName("send-email").
		WithPayloadString(`{"to": "user@example.com", "template": "welcome"}`).
		Build()
}

// ReportTaskRequest creates a report generation task request with default values.
func ReportTaskRequest() *model.CreateTaskRequest {
	return NewTaskRequest().
		WithName("generate-report").
		WithPayloadString(`{"period": "monthly"}`).
		Build()
}

// HighPriorityTaskRequest creates a high priority task request.
func HighPriorityTaskRequest() *model.CreateTaskRequest {
	return NewTaskRequest().
		WithPriority(model.TaskPriorityHigh).
		WithPayloadString(`{"urgent": true}`).
		Build()
}

// LowPriorityTaskRequest creates a low priority task request.
func LowPriorityTaskRequest() *model.CreateTaskRequest {
	return NewTaskRequest().
		WithPriority(model.TaskPriorityLow).
		WithPayloadString(`{"background": true}`).
		Build()
}

// ScheduledTaskRequest creates a task request scheduled for the future.
func ScheduledTaskRequest(scheduledAt time.Time) *model.CreateTaskRequest {
	return NewTaskRequest().
		WithScheduledAt(scheduledAt).
		WithPayloadString(`{"scheduled": true}`).
		Build()
}
