package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dispatchq/dispatchq/internal/data/pgxutil"
	"github.com/dispatchq/dispatchq/internal/domain/model"
)

// taskAddedChannel is the NOTIFY channel fired when a claimable task is inserted.
const taskAddedChannel = "task_added"

// insertTaskParams groups parameters for inserting a task within a transaction.
type insertTaskParams struct {
	Req     *model.CreateTaskRequest
	Payload []byte
	Status  model.TaskStatus
}

// Create creates a new task in the database with the given parameters.
func (r *TaskRepo) Create(
	ctx context.Context,
	req *model.CreateTaskRequest,
) (*model.Task, error) {
	if req == nil {
		return nil, errors.New("create task request is required")
	}

	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	payload, status, err := r.prepareTaskData(req)
	if err != nil {
		return nil, err
	}

	p := &insertTaskParams{
		Req:     req,
		Payload: payload,
		Status:  status,
	}

	var task *model.Task
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			task, insertErr = r.insertTaskInTx(ctx, tx, p)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}

	return task, nil
}

// prepareTaskData prepares the payload and initial status for task creation.
// A task with a scheduled time starts out scheduled; the claim query makes it
// claimable once that time has passed, so times in the past need no special
// handling here.
func (r *TaskRepo) prepareTaskData(req *model.CreateTaskRequest) ([]byte, model.TaskStatus, error) {
	if req == nil {
		return nil, "", errors.New("create task request is required")
	}

	payload := []byte(`{}`)
	if len(req.Payload) > 0 {
		if !json.Valid(req.Payload) {
			return nil, "", errors.New("task payload must be valid JSON")
		}
		payload = req.Payload
	}

	status := model.TaskStatusPending
	if req.ScheduledAt != nil {
		status = model.TaskStatusScheduled
	}

	return payload, status, nil
}

// insertTaskInTx inserts a task within a pgx.Tx and returns the created task.
func (r *TaskRepo) insertTaskInTx(ctx context.Context, tx pgx.Tx, params *insertTaskParams) (*model.Task, error) {
	if params == nil || params.Req == nil {
		return nil, errors.New("insert task params are required")
	}

	query, args := r.buildInsertQuery(params)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	task, collectErr := collectTaskFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect task: %w", collectErr)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, taskAddedChannel, task.ID); execErr != nil {
		return nil, fmt.Errorf("send task notification: %w", execErr)
	}

	return task, nil
}

// buildInsertQuery builds an INSERT statement for a task based on the provided parameters.
func (r *TaskRepo) buildInsertQuery(p *insertTaskParams) (string, []any) {
	if p == nil || p.Req == nil {
		return "", nil
	}

	query := `
      INSERT INTO tasks(name, payload, status, priority, scheduled_at)
      VALUES ($1,$2,$3,$4,$5)
      RETURNING ` + taskColumns

	var scheduledAt *time.Time
	if p.Req.ScheduledAt != nil {
		t := p.Req.ScheduledAt.UTC()
		scheduledAt = &t
	}

	args := []any{
		p.Req.Name,
		p.Payload,
		p.Status,
		int(p.Req.EffectivePriority()),
		scheduledAt,
	}
	return query, args
}

// GetByID retrieves a task by its ID.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	var task *model.Task
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		task, err = collectTaskFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// List returns a page of tasks ordered by created_at DESC along with the total
// count matching the filter.
func (r *TaskRepo) List(ctx context.Context, opts *model.TaskListOptions) (*model.TaskList, error) {
	limit := 100 // Default limit
	offset := 0
	var status *model.TaskStatus
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		offset = max(opts.Offset, 0)
		status = opts.Status
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}

	where := ""
	args := []any{}
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, string(*status))
	}

	listQuery := `
		SELECT ` + taskColumns + `
		FROM tasks
		` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)

	result := &model.TaskList{Items: []*model.Task{}}
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		total, err := countTasks(ctx, conn, status)
		if err != nil {
			return err
		}
		result.Total = int(total)

		rows, err := conn.Query(ctx, listQuery, append(args, limit, offset)...)
		if err != nil {
			return fmt.Errorf("query tasks: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Task])
		if err != nil {
			return fmt.Errorf("collect tasks: %w", err)
		}

		result.Items = vals
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// Count returns the number of tasks, optionally filtered by status.
func (r *TaskRepo) Count(ctx context.Context, status *model.TaskStatus) (int64, error) {
	var total int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		n, cerr := countTasks(ctx, conn, status)
		if cerr != nil {
			return cerr
		}
		total = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// countTasks runs the filtered count on an already checked-out connection so
// List can share it with its page query.
func countTasks(ctx context.Context, conn *pgx.Conn, status *model.TaskStatus) (int64, error) {
	query := `SELECT count(*) FROM tasks`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}

	var total int64
	if err := conn.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return total, nil
}

// Update applies a partial update to a task and returns the updated row.
// Status writes here bypass the guarded lifecycle transitions and exist for
// operator correction.
func (r *TaskRepo) Update(
	ctx context.Context,
	id string,
	req *model.UpdateTaskRequest,
) (*model.Task, error) {
	if req == nil {
		return nil, errors.New("update task request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	setClause, args := r.buildUpdateClause(req)
	args = append(args, id)
	query := "UPDATE tasks SET " + setClause +
		" WHERE id = $" + strconv.Itoa(len(args)) +
		" RETURNING " + taskColumns

	var task *model.Task
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		task, err = collectTaskFromRows(rows)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// buildUpdateClause builds the SQL SET clause and args for updating a task based on the request.
func (r *TaskRepo) buildUpdateClause(req *model.UpdateTaskRequest) (string, []any) {
	setParts := make([]string, 0, 6)
	args := make([]any, 0, 6)
	nextIdx := func() int { return len(args) + 1 }

	if req.Name != nil {
		setParts = append(setParts, fmt.Sprintf("name = $%d", nextIdx()))
		args = append(args, *req.Name)
	}
	if req.Payload != nil {
		payload := []byte(`{}`)
		if len(*req.Payload) > 0 {
			payload = []byte(*req.Payload)
		}
		setParts = append(setParts, fmt.Sprintf("payload = $%d", nextIdx()))
		args = append(args, payload)
	}
	if req.Priority != nil {
		setParts = append(setParts, fmt.Sprintf("priority = $%d", nextIdx()))
		args = append(args, int(*req.Priority))
	}
	if req.ScheduledAt != nil {
		setParts = append(setParts, fmt.Sprintf("scheduled_at = $%d", nextIdx()))
		args = append(args, req.ScheduledAt.UTC())
	}
	if req.Status != nil {
		setParts = append(setParts, fmt.Sprintf("status = $%d", nextIdx()))
		args = append(args, string(*req.Status))
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", nextIdx()))
	args = append(args, r.timeProvider.Now().UTC())

	return strings.Join(setParts, ", "), args
}

// Delete deletes a task by ID with state machine safety checks. Running tasks
// must be completed, failed, or paused before they can be removed.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE id = $1
		  AND status <> 'running'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	task, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to re-check task after delete attempt: %w", err)
	}

	if task.Status == model.TaskStatusRunning {
		return ErrTaskRunning
	}

	return errors.New("unexpected state: task is in deletable state but delete failed")
}

// Stats returns per-status counts for the queue.
func (r *TaskRepo) Stats(ctx context.Context) (*model.TaskStats, error) {
	var s model.TaskStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'scheduled') AS scheduled,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'paused')    AS paused,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed,
    count(*)                                     AS total
  FROM tasks
  `).Scan(
		&s.Pending,
		&s.Scheduled,
		&s.Running,
		&s.Paused,
		&s.Completed,
		&s.Failed,
		&s.Total,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get task stats: %w", err)
	}
	return &s, nil
}

// collectTaskFromRows collects a single task from pgx rows using pgx v5 helpers.
func collectTaskFromRows(rows pgx.Rows) (*model.Task, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	task, err := scanTaskFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return task, nil
}

type taskRowScanner interface {
	Scan(dest ...any) error
}

type taskRowData struct {
	payload, result                     []byte
	workerID, lastError                 sql.NullString
	scheduledAt, startedAt, completedAt sql.NullTime
}

func (d *taskRowData) scanInto(scanner taskRowScanner, task *model.Task) error {
	return scanner.Scan(
		&task.ID,
		&task.Name,
		&d.payload,
		&task.Status,
		&task.Priority,
		&d.scheduledAt,
		&d.startedAt,
		&d.completedAt,
		&d.workerID,
		&d.result,
		&d.lastError,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
}

func (d *taskRowData) apply(task *model.Task) {
	task.Payload = cloneJSON(d.payload)
	task.Result = cloneNullableJSON(d.result)
	task.WorkerID = cloneNullableString(d.workerID)
	task.Error = cloneNullableString(d.lastError)
	task.ScheduledAt = cloneNullableTime(d.scheduledAt)
	task.StartedAt = cloneNullableTime(d.startedAt)
	task.CompletedAt = cloneNullableTime(d.completedAt)
}

func scanTaskFromRow(scanner taskRowScanner) (*model.Task, error) {
	task := &model.Task{}
	var data taskRowData
	if err := data.scanInto(scanner, task); err != nil {
		return nil, err
	}

	data.apply(task)
	return task, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

// cloneNullableJSON preserves NULL for columns where absence is meaningful,
// such as a result that has not been reported yet.
func cloneNullableJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
