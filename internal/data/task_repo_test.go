package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchq/dispatchq/internal/data/pgxutil"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/testutil"
)

func TestTaskRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	tests := []struct {
		name    string
		req     *model.CreateTaskRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid task creation",
			req: &model.CreateTaskRequest{
				Name:    "send-email",
				Payload: json.RawMessage(`{"to": "user@example.com"}`),
			},
			wantErr: false,
		},
		{
			name: "task with explicit priority",
			req: &model.CreateTaskRequest{
				Name:     "generate-report",
				Payload:  json.RawMessage(`{"period": "monthly"}`),
				Priority: priorityPtr(model.TaskPriorityCritical),
			},
			wantErr: false,
		},
		{
			name: "task with scheduled time",
			req: &model.CreateTaskRequest{
				Name:        "sync-inventory",
				Payload:     json.RawMessage(`{"warehouse": "east"}`),
				ScheduledAt: timePtr(time.Now().Add(time.Hour)),
			},
			wantErr: false,
		},
		{
			name: "task without payload",
			req: &model.CreateTaskRequest{
				Name: "noop",
			},
			wantErr: false,
		},
		{
			name: "empty name",
			req: &model.CreateTaskRequest{
				Name:    "   ",
				Payload: json.RawMessage(`{"test": true}`),
			},
			wantErr: true,
			errMsg:  "task name is required",
		},
		{
			name: "name too long",
			req: &model.CreateTaskRequest{
				Name: strings.Repeat("a", 256),
			},
			wantErr: true,
			errMsg:  "cannot exceed 255",
		},
		{
			name: "invalid payload",
			req: &model.CreateTaskRequest{
				Name:    "send-email",
				Payload: json.RawMessage(`{not-json`),
			},
			wantErr: true,
			errMsg:  "payload must be valid JSON",
		},
		{
			name: "invalid priority",
			req: &model.CreateTaskRequest{
				Name:     "send-email",
				Priority: priorityPtr(model.TaskPriority(9)),
			},
			wantErr: true,
			errMsg:  "priority must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.WithAutoDB(t, func(db *sql.DB) {
				repo := NewTaskRepo(db, RepoConfig{})

				task, err := repo.Create(context.Background(), tt.req)

				if tt.wantErr {
					require.Error(t, err)
					assert.Contains(t, err.Error(), tt.errMsg)
					assert.Nil(t, task)
					return
				}

				require.NoError(t, err)
				require.NotNil(t, task)

				// Verify task fields
				assert.NotEmpty(t, task.ID)
				assert.Equal(t, tt.req.Name, task.Name)
				assert.Equal(t, tt.req.EffectivePriority(), task.Priority)
				assert.Nil(t, task.WorkerID)
				assert.Nil(t, task.Result)
				assert.Nil(t, task.Error)
				assert.NotZero(t, task.CreatedAt)
				assert.NotZero(t, task.UpdatedAt)

				if len(tt.req.Payload) > 0 {
					assert.JSONEq(t, string(tt.req.Payload), string(task.Payload))
				} else {
					assert.JSONEq(t, `{}`, string(task.Payload))
				}

				// A scheduled time puts the task in scheduled status; otherwise pending
				if tt.req.ScheduledAt != nil {
					assert.Equal(t, model.TaskStatusScheduled, task.Status)
					require.NotNil(t, task.ScheduledAt)
					assert.WithinDuration(t, *tt.req.ScheduledAt, *task.ScheduledAt, time.Second)
				} else {
					assert.Equal(t, model.TaskStatusPending, task.Status)
					assert.Nil(t, task.ScheduledAt)
				}
			})
		})
	}
}

func TestTaskRepo_ClaimNext(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	tests := []struct {
		name       string
		setupTasks []*model.CreateTaskRequest
		wantTask   bool
		wantErr    bool
	}{
		{
			name: "claim available task",
			setupTasks: []*model.CreateTaskRequest{
				{
					Name:    "send-email",
					Payload: json.RawMessage(`{"to": "user@example.com"}`),
				},
			},
			wantTask: true,
			wantErr:  false,
		},
		{
			name:       "no tasks available",
			setupTasks: []*model.CreateTaskRequest{},
			wantTask:   false,
			wantErr:    true,
		},
		{
			name: "claims highest priority task",
			setupTasks: []*model.CreateTaskRequest{
				{
					Name:     "low-priority",
					Priority: priorityPtr(model.TaskPriorityLow),
				},
				{
					Name:     "critical-priority",
					Priority: priorityPtr(model.TaskPriorityCritical),
				},
			},
			wantTask: true,
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.WithAutoDB(t, func(db *sql.DB) {
				repo := NewTaskRepo(db, RepoConfig{})
				worker := registerTestWorker(t, db)

				var createdTasks []*model.Task
				for _, req := range tt.setupTasks {
					task, err := repo.Create(context.Background(), req)
					require.NoError(t, err)
					createdTasks = append(createdTasks, task)
				}

				task, err := repo.ClaimNext(context.Background(), worker.ID)

				if tt.wantErr {
					require.Error(t, err)
					require.ErrorIs(t, err, model.ErrNoTasksAvailable)
					return
				}

				require.NoError(t, err)
				require.NotNil(t, task)

				// Verify task was claimed
				assert.Equal(t, model.TaskStatusRunning, task.Status)
				require.NotNil(t, task.WorkerID)
				assert.Equal(t, worker.ID, *task.WorkerID)
				assert.NotNil(t, task.StartedAt)

				// If multiple tasks, verify highest priority was selected
				if len(createdTasks) > 1 {
					maxPriority := model.TaskPriorityLow
					for _, created := range createdTasks {
						if created.Priority > maxPriority {
							maxPriority = created.Priority
						}
					}
					assert.Equal(t, maxPriority, task.Priority)
				}
			})
		})
	}

	t.Run("empty worker id", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			task, err := repo.ClaimNext(context.Background(), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "worker id is required")
			assert.Nil(t, task)
		})
	})

	t.Run("unregistered worker id", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			_, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)

			task, err := repo.ClaimNext(context.Background(), "11111111-1111-1111-1111-111111111111")
			require.Error(t, err)
			assert.Nil(t, task)

			// The claim must not have consumed the task
			list, err := repo.List(context.Background(), nil)
			require.NoError(t, err)
			require.Len(t, list.Items, 1)
			assert.Equal(t, model.TaskStatusPending, list.Items[0].Status)
		})
	})
}

func TestTaskRepo_ClaimNext_ScheduledTasks(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("future scheduled task is not claimable", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			worker := registerTestWorker(t, db)

			_, err := repo.Create(context.Background(), &model.CreateTaskRequest{
				Name:        "sync-inventory",
				ScheduledAt: timePtr(time.Now().Add(time.Hour)),
			})
			require.NoError(t, err)

			_, err = repo.ClaimNext(context.Background(), worker.ID)
			require.ErrorIs(t, err, model.ErrNoTasksAvailable)
		})
	})

	t.Run("past scheduled task is claimable", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			worker := registerTestWorker(t, db)

			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{
				Name:        "sync-inventory",
				ScheduledAt: timePtr(time.Now().Add(-time.Hour)),
			})
			require.NoError(t, err)
			assert.Equal(t, model.TaskStatusScheduled, created.Status)

			claimed, err := repo.ClaimNext(context.Background(), worker.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, claimed.ID)
			assert.Equal(t, model.TaskStatusRunning, claimed.Status)
		})
	})

	t.Run("due scheduled task loses to pending task of equal priority", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			worker := registerTestWorker(t, db)

			_, err := repo.Create(context.Background(), &model.CreateTaskRequest{
				Name:        "scheduled-task",
				ScheduledAt: timePtr(time.Now().Add(-time.Minute)),
			})
			require.NoError(t, err)

			pending, err := repo.Create(context.Background(), &model.CreateTaskRequest{
				Name: "pending-task",
			})
			require.NoError(t, err)

			claimed, err := repo.ClaimNext(context.Background(), worker.ID)
			require.NoError(t, err)
			assert.Equal(t, pending.ID, claimed.ID)
		})
	})

	t.Run("scheduled task is claimable at exactly its due time", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			tp := NewFixedTimeProvider(testutil.TestTime())
			repo := NewTaskRepo(db, RepoConfig{TimeProvider: tp})
			worker := registerTestWorker(t, db)

			due := testutil.TestTime().Add(10 * time.Minute)
			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{
				Name:        "sync-inventory",
				ScheduledAt: &due,
			})
			require.NoError(t, err)

			// One tick before the due time: still invisible
			tp.SetTime(due.Add(-time.Microsecond))
			_, err = repo.ClaimNext(context.Background(), worker.ID)
			require.ErrorIs(t, err, model.ErrNoTasksAvailable)

			// The due instant itself is inclusive
			tp.SetTime(due)
			claimed, err := repo.ClaimNext(context.Background(), worker.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, claimed.ID)
		})
	})

	t.Run("equal priority pending tasks claim in creation order", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			tp := NewFixedTimeProvider(testutil.TestTime())
			repo := NewTaskRepo(db, RepoConfig{TimeProvider: tp})
			worker := registerTestWorker(t, db)

			first, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "first-in"})
			require.NoError(t, err)

			tp.AddTime(time.Second)
			second, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "second-in"})
			require.NoError(t, err)

			claimed1, err := repo.ClaimNext(context.Background(), worker.ID)
			require.NoError(t, err)
			assert.Equal(t, first.ID, claimed1.ID)

			claimed2, err := repo.ClaimNext(context.Background(), worker.ID)
			require.NoError(t, err)
			assert.Equal(t, second.ID, claimed2.ID)
		})
	})
}

func TestTaskRepo_ClaimNext_SkipsPausedTasks(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTaskRepo(db, RepoConfig{})
		worker := registerTestWorker(t, db)

		task, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
		require.NoError(t, err)

		_, err = repo.Pause(context.Background(), task.ID)
		require.NoError(t, err)

		_, err = repo.ClaimNext(context.Background(), worker.ID)
		require.ErrorIs(t, err, model.ErrNoTasksAvailable)
	})
}

func TestTaskRepo_GetByID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("existing task", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{
				Name:    "send-email",
				Payload: json.RawMessage(`{"to": "user@example.com"}`),
			})
			require.NoError(t, err)

			task, err := repo.GetByID(context.Background(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, task.ID)
			assert.Equal(t, created.Name, task.Name)
			assert.JSONEq(t, string(created.Payload), string(task.Payload))
		})
	})

	t.Run("missing task", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			task, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
			require.ErrorIs(t, err, ErrTaskNotFound)
			assert.Nil(t, task)
		})
	})
}

func TestTaskRepo_List(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("returns newest first with total", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			for _, name := range []string{"first", "second", "third"} {
				_, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: name})
				require.NoError(t, err)
			}

			list, err := repo.List(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, 3, list.Total)
			require.Len(t, list.Items, 3)
			assert.Equal(t, "third", list.Items[0].Name)
		})
	})

	t.Run("filters by status", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			worker := registerTestWorker(t, db)

			for _, name := range []string{"first", "second"} {
				_, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: name})
				require.NoError(t, err)
			}
			claimed, err := repo.ClaimNext(context.Background(), worker.ID)
			require.NoError(t, err)

			list, err := repo.List(context.Background(), &model.TaskListOptions{
				Status: taskStatusPtr(model.TaskStatusRunning),
			})
			require.NoError(t, err)
			assert.Equal(t, 1, list.Total)
			require.Len(t, list.Items, 1)
			assert.Equal(t, claimed.ID, list.Items[0].ID)

			list, err = repo.List(context.Background(), &model.TaskListOptions{
				Status: taskStatusPtr(model.TaskStatusPending),
			})
			require.NoError(t, err)
			assert.Equal(t, 1, list.Total)
		})
	})

	t.Run("paginates", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			for i := 0; i < 5; i++ {
				_, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
				require.NoError(t, err)
			}

			list, err := repo.List(context.Background(), &model.TaskListOptions{Limit: 2, Offset: 0})
			require.NoError(t, err)
			assert.Equal(t, 5, list.Total)
			assert.Len(t, list.Items, 2)

			list, err = repo.List(context.Background(), &model.TaskListOptions{Limit: 2, Offset: 4})
			require.NoError(t, err)
			assert.Equal(t, 5, list.Total)
			assert.Len(t, list.Items, 1)
		})
	})
}

func TestTaskRepo_Count(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTaskRepo(db, RepoConfig{})

		for range 3 {
			_, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)
		}
		_, err := repo.Create(context.Background(), &model.CreateTaskRequest{
			Name:        "sync-inventory",
			ScheduledAt: timePtr(time.Now().Add(time.Hour)),
		})
		require.NoError(t, err)

		total, err := repo.Count(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)

		pending := model.TaskStatusPending
		n, err := repo.Count(context.Background(), &pending)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		failed := model.TaskStatusFailed
		n, err = repo.Count(context.Background(), &failed)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestTaskRepo_Update(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("updates provided fields only", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{
				Name:    "send-email",
				Payload: json.RawMessage(`{"to": "user@example.com"}`),
			})
			require.NoError(t, err)

			updated, err := repo.Update(context.Background(), created.ID, &model.UpdateTaskRequest{
				Name:     stringPtr("send-email-v2"),
				Priority: priorityPtr(model.TaskPriorityHigh),
			})
			require.NoError(t, err)
			assert.Equal(t, "send-email-v2", updated.Name)
			assert.Equal(t, model.TaskPriorityHigh, updated.Priority)
			assert.JSONEq(t, string(created.Payload), string(updated.Payload))
			assert.Equal(t, model.TaskStatusPending, updated.Status)
		})
	})

	t.Run("operator status override", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)

			updated, err := repo.Update(context.Background(), created.ID, &model.UpdateTaskRequest{
				Status: taskStatusPtr(model.TaskStatusFailed),
			})
			require.NoError(t, err)
			assert.Equal(t, model.TaskStatusFailed, updated.Status)
		})
	})

	t.Run("empty update is rejected", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)

			_, err = repo.Update(context.Background(), created.ID, &model.UpdateTaskRequest{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "at least one field")
		})
	})

	t.Run("missing task", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			_, err := repo.Update(context.Background(), "00000000-0000-0000-0000-000000000000", &model.UpdateTaskRequest{
				Name: stringPtr("renamed"),
			})
			require.ErrorIs(t, err, ErrTaskNotFound)
		})
	})
}

func TestTaskRepo_Delete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("deletes pending task", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)

			err = repo.Delete(context.Background(), created.ID)
			require.NoError(t, err)

			_, err = repo.GetByID(context.Background(), created.ID)
			require.ErrorIs(t, err, ErrTaskNotFound)
		})
	})

	t.Run("refuses running task", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			worker := registerTestWorker(t, db)

			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)

			claimed, err := repo.ClaimNext(context.Background(), worker.ID)
			require.NoError(t, err)
			require.Equal(t, created.ID, claimed.ID)

			err = repo.Delete(context.Background(), created.ID)
			require.ErrorIs(t, err, ErrTaskRunning)

			// Task remains
			task, err := repo.GetByID(context.Background(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, model.TaskStatusRunning, task.Status)
		})
	})

	t.Run("deletes completed task", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			worker := registerTestWorker(t, db)

			created, err := repo.Create(context.Background(), &model.CreateTaskRequest{Name: "send-email"})
			require.NoError(t, err)

			_, err = repo.ClaimNext(context.Background(), worker.ID)
			require.NoError(t, err)
			_, err = repo.Complete(context.Background(), created.ID, nil)
			require.NoError(t, err)

			err = repo.Delete(context.Background(), created.ID)
			require.NoError(t, err)
		})
	})

	t.Run("missing task", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			err := repo.Delete(context.Background(), "00000000-0000-0000-0000-000000000000")
			require.ErrorIs(t, err, ErrTaskNotFound)
		})
	})
}

func TestPgxConversionFunctions(t *testing.T) {
	t.Run("toPgxTxOptions", func(t *testing.T) {
		tests := []struct {
			name     string
			input    *sql.TxOptions
			expected pgx.TxOptions
		}{
			{
				name:  "nil options",
				input: nil,
				expected: pgx.TxOptions{
					IsoLevel:   pgx.TxIsoLevel(""),
					AccessMode: pgx.TxAccessMode(""),
				},
			},
			{
				name: "read committed, read-write",
				input: &sql.TxOptions{
					Isolation: sql.LevelReadCommitted,
					ReadOnly:  false,
				},
				expected: pgx.TxOptions{
					IsoLevel:   pgx.ReadCommitted,
					AccessMode: pgx.ReadWrite,
				},
			},
			{
				name: "serializable, read-only",
				input: &sql.TxOptions{
					Isolation: sql.LevelSerializable,
					ReadOnly:  true,
				},
				expected: pgx.TxOptions{
					IsoLevel:   pgx.Serializable,
					AccessMode: pgx.ReadOnly,
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result := pgxutil.ToPgxTxOptions(tt.input)
				assert.Equal(t, tt.expected.IsoLevel, result.IsoLevel)
				assert.Equal(t, tt.expected.AccessMode, result.AccessMode)
			})
		}
	})

	t.Run("toPgxIsoLevel", func(t *testing.T) {
		tests := []struct {
			input    sql.IsolationLevel
			expected pgx.TxIsoLevel
		}{
			{sql.LevelDefault, pgx.TxIsoLevel("")},
			{sql.LevelSerializable, pgx.Serializable},
			{sql.LevelLinearizable, pgx.Serializable},
			{sql.LevelRepeatableRead, pgx.RepeatableRead},
			{sql.LevelSnapshot, pgx.RepeatableRead},
			{sql.LevelReadCommitted, pgx.ReadCommitted},
			{sql.LevelWriteCommitted, pgx.ReadCommitted},
			{sql.LevelReadUncommitted, pgx.ReadUncommitted},
		}

		for _, tt := range tests {
			t.Run(string(tt.expected), func(t *testing.T) {
				result := pgxutil.ToPgxIsoLevel(tt.input)
				assert.Equal(t, tt.expected, result)
			})
		}
	})

	t.Run("toPgxAccessMode", func(t *testing.T) {
		assert.Equal(t, pgx.ReadWrite, pgxutil.ToPgxAccessMode(false))
		assert.Equal(t, pgx.ReadOnly, pgxutil.ToPgxAccessMode(true))
	})
}

func TestCloneHelpers(t *testing.T) {
	t.Run("cloneJSON defaults empty to object", func(t *testing.T) {
		assert.Equal(t, json.RawMessage(`{}`), cloneJSON(nil))
		assert.Equal(t, json.RawMessage(`{}`), cloneJSON([]byte{}))
	})

	t.Run("cloneJSON copies input", func(t *testing.T) {
		src := []byte(`{"a": 1}`)
		out := cloneJSON(src)
		src[2] = 'x'
		assert.Equal(t, json.RawMessage(`{"a": 1}`), out)
	})

	t.Run("cloneNullableJSON preserves null", func(t *testing.T) {
		assert.Nil(t, cloneNullableJSON(nil))
		assert.Nil(t, cloneNullableJSON([]byte{}))
		assert.Equal(t, json.RawMessage(`{"ok": true}`), cloneNullableJSON([]byte(`{"ok": true}`)))
	})

	t.Run("cloneNullableString", func(t *testing.T) {
		assert.Nil(t, cloneNullableString(sql.NullString{}))
		got := cloneNullableString(sql.NullString{String: "worker-1", Valid: true})
		require.NotNil(t, got)
		assert.Equal(t, "worker-1", *got)
	})

	t.Run("cloneNullableTime normalizes to UTC", func(t *testing.T) {
		assert.Nil(t, cloneNullableTime(sql.NullTime{}))
		loc := time.FixedZone("CST", -6*3600)
		in := time.Date(2024, 1, 1, 6, 0, 0, 0, loc)
		got := cloneNullableTime(sql.NullTime{Time: in, Valid: true})
		require.NotNil(t, got)
		assert.Equal(t, time.UTC, got.Location())
		assert.True(t, got.Equal(in))
	})
}

// Helper functions.
func stringPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func priorityPtr(p model.TaskPriority) *model.TaskPriority {
	return &p
}

func taskStatusPtr(s model.TaskStatus) *model.TaskStatus {
	return &s
}

// registerTestWorker registers a worker so claims have a valid owner.
func registerTestWorker(t *testing.T, db *sql.DB) *model.Worker {
	t.Helper()

	worker, err := NewWorkerRepo(db).Register(context.Background(), &model.RegisterWorkerRequest{
		Name: "worker-test-1",
	})
	require.NoError(t, err)
	return worker
}
