package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_Valid(t *testing.T) {
	assert.True(t, TaskStatusPending.Valid())
	assert.True(t, TaskStatusScheduled.Valid())
	assert.True(t, TaskStatusRunning.Valid())
	assert.True(t, TaskStatusPaused.Valid())
	assert.True(t, TaskStatusCompleted.Valid())
	assert.True(t, TaskStatusFailed.Valid())
	assert.False(t, TaskStatus("unknown").Valid())
	assert.False(t, TaskStatus("").Valid())
}

func TestTaskStatus_Terminal(t *testing.T) {
	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
	assert.False(t, TaskStatusPending.Terminal())
	assert.False(t, TaskStatusRunning.Terminal())
	assert.False(t, TaskStatusPaused.Terminal())
}

func TestParseTaskStatus_CaseInsensitive(t *testing.T) {
	s, err := ParseTaskStatus("PENDING")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, s)

	s, err = ParseTaskStatus("  Running ")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusRunning, s)

	_, err = ParseTaskStatus("sleeping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid task status")
}

func TestTaskPriority_OrdinalOrder(t *testing.T) {
	// Urgency must be comparable numerically so that priority DESC in SQL
	// orders CRITICAL ahead of HIGH ahead of MEDIUM ahead of LOW.
	assert.Greater(t, int(TaskPriorityCritical), int(TaskPriorityHigh))
	assert.Greater(t, int(TaskPriorityHigh), int(TaskPriorityMedium))
	assert.Greater(t, int(TaskPriorityMedium), int(TaskPriorityLow))
}

func TestParseTaskPriority(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        TaskPriority
		expectError bool
	}{
		{name: "low", input: "LOW", want: TaskPriorityLow},
		{name: "medium lowercase", input: "medium", want: TaskPriorityMedium},
		{name: "high mixed case", input: "High", want: TaskPriorityHigh},
		{name: "critical with spaces", input: " CRITICAL ", want: TaskPriorityCritical},
		{name: "unknown name", input: "URGENT", expectError: true},
		{name: "empty", input: "", expectError: true},
		{name: "ordinal string rejected", input: "3", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTaskPriority(tt.input)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid task priority")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskPriority_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(TaskPriorityHigh)
	require.NoError(t, err)
	assert.JSONEq(t, `"HIGH"`, string(data))

	var p TaskPriority
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &p))
	assert.Equal(t, TaskPriorityCritical, p)

	// Numeric ordinals are an internal representation and not accepted on the wire.
	assert.Error(t, json.Unmarshal([]byte(`2`), &p))

	_, err = json.Marshal(TaskPriority(42))
	assert.Error(t, err)
}

func TestTask_JSONUsesSymbolicPriorityAndLowercaseStatus(t *testing.T) {
	task := &Task{
		ID:        "550e8400-e29b-41d4-a716-446655440000",
		Name:      "resize-images",
		Payload:   json.RawMessage(`{"bucket":"uploads"}`),
		Status:    TaskStatusPending,
		Priority:  TaskPriorityCritical,
		CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"priority":"CRITICAL"`)
	assert.Contains(t, string(data), `"status":"pending"`)
	assert.NotContains(t, string(data), `"worker_id"`)
	assert.NotContains(t, string(data), `"error"`)
}

func TestCreateTaskRequest_Validate(t *testing.T) {
	critical := TaskPriorityCritical
	invalid := TaskPriority(99)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name        string
		req         CreateTaskRequest
		expectError bool
		errorMsg    string
	}{
		{
			name: "minimal valid request",
			req:  CreateTaskRequest{Name: "send-email"},
		},
		{
			name: "full valid request",
			req: CreateTaskRequest{
				Name:        "send-email",
				Payload:     json.RawMessage(`{"to":"ops@example.com"}`),
				Priority:    &critical,
				ScheduledAt: &future,
			},
		},
		{
			name:        "missing name",
			req:         CreateTaskRequest{},
			expectError: true,
			errorMsg:    "task name is required",
		},
		{
			name:        "whitespace name",
			req:         CreateTaskRequest{Name: "   "},
			expectError: true,
			errorMsg:    "task name is required",
		},
		{
			name:        "name too long",
			req:         CreateTaskRequest{Name: string(make([]byte, 256))},
			expectError: true,
			errorMsg:    "cannot exceed 255 characters",
		},
		{
			name:        "invalid priority ordinal",
			req:         CreateTaskRequest{Name: "x", Priority: &invalid},
			expectError: true,
			errorMsg:    "must be one of: LOW, MEDIUM, HIGH, CRITICAL",
		},
		{
			name:        "malformed payload",
			req:         CreateTaskRequest{Name: "x", Payload: json.RawMessage(`{"broken":`)},
			expectError: true,
			errorMsg:    "payload must be valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateTaskRequest_EffectivePriority(t *testing.T) {
	req := &CreateTaskRequest{Name: "x"}
	assert.Equal(t, TaskPriorityMedium, req.EffectivePriority())

	low := TaskPriorityLow
	req.Priority = &low
	assert.Equal(t, TaskPriorityLow, req.EffectivePriority())
}

func TestUpdateTaskRequest_Validate(t *testing.T) {
	name := "renamed"
	empty := "  "
	priority := TaskPriorityHigh
	badPriority := TaskPriority(0)
	status := TaskStatusPaused
	badStatus := TaskStatus("limbo")
	payload := json.RawMessage(`{"k":"v"}`)

	tests := []struct {
		name        string
		req         UpdateTaskRequest
		expectError bool
		errorMsg    string
	}{
		{
			name:        "empty patch rejected",
			req:         UpdateTaskRequest{},
			expectError: true,
			errorMsg:    "at least one field must be updated",
		},
		{name: "name only", req: UpdateTaskRequest{Name: &name}},
		{name: "priority only", req: UpdateTaskRequest{Priority: &priority}},
		{name: "status only", req: UpdateTaskRequest{Status: &status}},
		{name: "payload only", req: UpdateTaskRequest{Payload: &payload}},
		{
			name:        "blank name rejected",
			req:         UpdateTaskRequest{Name: &empty},
			expectError: true,
			errorMsg:    "task name is required",
		},
		{
			name:        "invalid priority rejected",
			req:         UpdateTaskRequest{Priority: &badPriority},
			expectError: true,
			errorMsg:    "must be one of",
		},
		{
			name:        "invalid status rejected",
			req:         UpdateTaskRequest{Status: &badStatus},
			expectError: true,
			errorMsg:    "invalid task status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
