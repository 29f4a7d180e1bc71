package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/redis/go-redis/v9"

	"github.com/dispatchq/dispatchq/internal/core"
	"github.com/dispatchq/dispatchq/internal/data"
	"github.com/dispatchq/dispatchq/internal/domain/model"
	"github.com/dispatchq/dispatchq/internal/service"
)

const (
	defaultTaskCommandTimeout = 30 * time.Second
	defaultListTasksLimit     = 50
	maxListTasksLimit         = 1000
)

type taskCommandDeps struct {
	db          *sql.DB
	redisClient redis.UniversalClient
	TaskRepo    *data.TaskRepo
}

func openTaskCommandDeps(cmdCtx *commandContext, wantRedis bool) (taskCommandDeps, error) {
	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    true,
		WantRedis: wantRedis,
	})
	if err != nil {
		return taskCommandDeps{}, err
	}

	return taskCommandDeps{
		db:          db,
		redisClient: redisClient,
		TaskRepo:    data.NewTaskRepo(db, data.RepoConfig{}),
	}, nil
}

func (d taskCommandDeps) Close() error {
	return closeInfra(d.db, d.redisClient)
}

// taskService wires a TaskService the same way the API server does, so CLI
// mutations share the stats cache invalidation path with HTTP traffic.
func (d taskCommandDeps) taskService(cmdCtx *commandContext) (*service.TaskService, error) {
	var statsCache *core.StatsCacheService
	if d.redisClient != nil {
		cacheCfg := core.DefaultStatsCacheConfig()
		if ttl := cmdCtx.Config.Cache.StatsTTL; ttl > 0 {
			cacheCfg.TTL = ttl
		}
		statsCache = core.NewStatsCacheService(core.StatsCacheServiceOptions{
			Cache:  data.NewRedisCacheRepo(d.redisClient),
			Config: cacheCfg,
		})
	}

	svc, err := service.NewTaskService(service.TaskServiceOptions{
		Repo:       d.TaskRepo,
		Logger:     cmdCtx.Logger,
		StatsCache: statsCache,
	})
	if err != nil {
		return nil, fmt.Errorf("create task service: %w", err)
	}
	return svc, nil
}

type submitTaskOptions struct {
	Name        string
	Payload     string
	Priority    string
	ScheduledAt string
	Timeout     time.Duration
}

func runSubmitTask(cmdCtx *commandContext, args []string) (err error) {
	opts, err := parseSubmitTaskFlags(args)
	if err != nil {
		return err
	}

	req, err := buildCreateTaskRequest(&opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	deps, err := openTaskCommandDeps(cmdCtx, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close submit-task dependencies: %w", cerr))
		}
	}()

	svc, err := deps.taskService(cmdCtx)
	if err != nil {
		return err
	}

	task, err := svc.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	return printSubmittedTask(task)
}

func parseSubmitTaskFlags(args []string) (submitTaskOptions, error) {
	fs := flag.NewFlagSet("submit-task", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := submitTaskOptions{
		Timeout: defaultTaskCommandTimeout,
	}

	fs.StringVar(&opts.Name, "name", "", "Task name (required)")
	fs.StringVar(&opts.Payload, "payload", "", "Optional JSON payload stored on the task")
	fs.StringVar(
		&opts.Priority,
		"priority",
		"",
		"Task priority (LOW|MEDIUM|HIGH|CRITICAL, defaults to MEDIUM)",
	)
	fs.StringVar(
		&opts.ScheduledAt,
		"scheduled-at",
		"",
		"Optional RFC3339 time at which the task becomes claimable",
	)
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Timeout for database operations")

	if err := fs.Parse(args); err != nil {
		return submitTaskOptions{}, err
	}

	normalizeSubmitTaskOptions(&opts)
	if err := validateSubmitTaskOptions(&opts); err != nil {
		return submitTaskOptions{}, err
	}

	return opts, nil
}

func normalizeSubmitTaskOptions(opts *submitTaskOptions) {
	opts.Name = strings.TrimSpace(opts.Name)
	opts.Payload = strings.TrimSpace(opts.Payload)
	opts.Priority = strings.TrimSpace(opts.Priority)
	opts.ScheduledAt = strings.TrimSpace(opts.ScheduledAt)
}

func validateSubmitTaskOptions(opts *submitTaskOptions) error {
	if opts.Name == "" {
		return errors.New("--name is required")
	}
	if opts.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func buildCreateTaskRequest(opts *submitTaskOptions) (*model.CreateTaskRequest, error) {
	req := &model.CreateTaskRequest{Name: opts.Name}

	if opts.Payload != "" {
		payload, err := resolveJSONPayload(opts.Payload, nil)
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		req.Payload = payload
	}

	if opts.Priority != "" {
		priority, err := model.ParseTaskPriority(opts.Priority)
		if err != nil {
			return nil, err
		}
		req.Priority = &priority
	}

	if opts.ScheduledAt != "" {
		at, err := time.Parse(time.RFC3339, opts.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("parse --scheduled-at: %w", err)
		}
		req.ScheduledAt = &at
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func resolveJSONPayload(input string, fallback json.RawMessage) (json.RawMessage, error) {
	if input == "" {
		return fallback, nil
	}
	raw := []byte(input)
	if !json.Valid(raw) {
		return nil, errors.New("must be valid JSON")
	}
	// Make a copy to avoid retaining the backing array of flag args.
	out := make([]byte, len(raw))
	copy(out, raw)
	return json.RawMessage(out), nil
}

func printSubmittedTask(task *model.Task) error {
	if err := writef(os.Stdout, "Created task %s (%s)\n", task.ID, task.Name); err != nil {
		return fmt.Errorf("print task summary: %w", err)
	}
	if err := writef(os.Stdout, "  Status: %s | Priority: %s\n", task.Status, task.Priority); err != nil {
		return fmt.Errorf("print task summary: %w", err)
	}
	if task.ScheduledAt != nil {
		if err := writef(os.Stdout, "  Scheduled for: %s\n", formatTimestamp(*task.ScheduledAt)); err != nil {
			return fmt.Errorf("print task summary: %w", err)
		}
	}
	if len(task.Payload) > 0 {
		if err := writef(os.Stdout, "Payload:\n%s\n", indentJSON(task.Payload)); err != nil {
			return fmt.Errorf("print task summary: %w", err)
		}
	}
	return nil
}

type listTasksOptions struct {
	Status  string
	Limit   int
	Offset  int
	Query   string
	Timeout time.Duration

	status *model.TaskStatus
}

func runListTasks(cmdCtx *commandContext, args []string) (err error) {
	opts, err := parseListTasksFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	deps, err := openTaskCommandDeps(cmdCtx, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close list-tasks dependencies: %w", cerr))
		}
	}()

	svc, err := deps.taskService(cmdCtx)
	if err != nil {
		return err
	}

	list, err := svc.List(ctx, &model.TaskListOptions{
		Status: opts.status,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if opts.Query != "" {
		return printQueryResult(opts.Query, list)
	}
	return printTaskRows(list, &opts)
}

func parseListTasksFlags(args []string) (listTasksOptions, error) {
	fs := flag.NewFlagSet("list-tasks", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listTasksOptions{
		Limit:   defaultListTasksLimit,
		Timeout: defaultTaskCommandTimeout,
	}

	fs.StringVar(
		&opts.Status,
		"status",
		"",
		"Filter by status (pending|scheduled|running|paused|completed|failed)",
	)
	fs.IntVar(&opts.Limit, "limit", opts.Limit, "Maximum rows to return")
	fs.IntVar(&opts.Offset, "offset", 0, "Rows to skip before the first result")
	fs.StringVar(
		&opts.Query,
		"query",
		"",
		"Optional JMESPath expression applied to the JSON result instead of the table view",
	)
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Timeout for database operations")

	if err := fs.Parse(args); err != nil {
		return listTasksOptions{}, err
	}

	normalizeListTasksOptions(&opts)
	if err := validateListTasksOptions(&opts); err != nil {
		return listTasksOptions{}, err
	}

	return opts, nil
}

func normalizeListTasksOptions(opts *listTasksOptions) {
	opts.Status = strings.ToLower(strings.TrimSpace(opts.Status))
	opts.Query = strings.TrimSpace(opts.Query)
}

func validateListTasksOptions(opts *listTasksOptions) error {
	if opts.Status != "" {
		status, err := model.ParseTaskStatus(opts.Status)
		if err != nil {
			return err
		}
		opts.status = &status
	}
	if opts.Limit < 1 || opts.Limit > maxListTasksLimit {
		return fmt.Errorf("--limit must be between 1 and %d", maxListTasksLimit)
	}
	if opts.Offset < 0 {
		return errors.New("--offset must not be negative")
	}
	if opts.Query != "" {
		if _, err := jmespath.Compile(opts.Query); err != nil {
			return fmt.Errorf("invalid --query expression: %w", err)
		}
	}
	if opts.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func printTaskRows(list *model.TaskList, opts *listTasksOptions) error {
	if opts == nil {
		return errors.New("list options are required")
	}
	if err := writef(os.Stdout, "\nTasks"); err != nil {
		return fmt.Errorf("write tasks header: %w", err)
	}
	if opts.Status != "" {
		if err := writef(os.Stdout, " with status %q", opts.Status); err != nil {
			return fmt.Errorf("write tasks status filter: %w", err)
		}
	}
	if err := writef(os.Stdout, " (limit %d, offset %d)\n", opts.Limit, opts.Offset); err != nil {
		return fmt.Errorf("write tasks header info: %w", err)
	}

	if len(list.Items) == 0 {
		if err := writeln(os.Stdout, "  (no rows found)"); err != nil {
			return fmt.Errorf("write tasks empty message: %w", err)
		}
		return nil
	}

	if err := renderTaskTable(list.Items); err != nil {
		return err
	}

	if err := writef(os.Stdout, "Total matching rows: %d\n", list.Total); err != nil {
		return fmt.Errorf("write tasks total: %w", err)
	}
	if len(list.Items) == opts.Limit && opts.Offset+opts.Limit < list.Total {
		if err := writeln(os.Stdout, "More rows available; adjust --offset or --limit to view additional data."); err != nil {
			return fmt.Errorf("write tasks more-rows message: %w", err)
		}
	}
	return nil
}

func renderTaskTable(tasks []*model.Task) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tNAME\tSTATUS\tPRIORITY\tWORKER\tSCHEDULED (UTC)\tCREATED (UTC)"); err != nil {
		return fmt.Errorf("write tasks header row: %w", err)
	}

	for _, task := range tasks {
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			task.ID,
			task.Name,
			task.Status,
			task.Priority,
			formatWorkerRef(task.WorkerID),
			formatNullableTime(task.ScheduledAt),
			formatTimestamp(task.CreatedAt),
		); err != nil {
			return fmt.Errorf("write task row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush tasks table: %w", err)
	}
	return nil
}

type taskStatsOptions struct {
	Query   string
	Timeout time.Duration
}

func runTaskStats(cmdCtx *commandContext, args []string) (err error) {
	opts, err := parseTaskStatsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	deps, err := openTaskCommandDeps(cmdCtx, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close task-stats dependencies: %w", cerr))
		}
	}()

	svc, err := deps.taskService(cmdCtx)
	if err != nil {
		return err
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get task stats: %w", err)
	}

	if opts.Query != "" {
		return printQueryResult(opts.Query, stats)
	}
	return printTaskStats(stats)
}

func parseTaskStatsFlags(args []string) (taskStatsOptions, error) {
	fs := flag.NewFlagSet("task-stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := taskStatsOptions{
		Timeout: defaultTaskCommandTimeout,
	}

	fs.StringVar(
		&opts.Query,
		"query",
		"",
		"Optional JMESPath expression applied to the JSON result instead of the table view",
	)
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Timeout for database operations")

	if err := fs.Parse(args); err != nil {
		return taskStatsOptions{}, err
	}

	opts.Query = strings.TrimSpace(opts.Query)
	if opts.Query != "" {
		if _, err := jmespath.Compile(opts.Query); err != nil {
			return taskStatsOptions{}, fmt.Errorf("invalid --query expression: %w", err)
		}
	}
	if opts.Timeout <= 0 {
		return taskStatsOptions{}, errors.New("timeout must be positive")
	}

	return opts, nil
}

func printTaskStats(stats *model.TaskStats) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "STATUS\tCOUNT"); err != nil {
		return fmt.Errorf("write stats header row: %w", err)
	}

	rows := []struct {
		label string
		count int
	}{
		{string(model.TaskStatusPending), stats.Pending},
		{string(model.TaskStatusScheduled), stats.Scheduled},
		{string(model.TaskStatusRunning), stats.Running},
		{string(model.TaskStatusPaused), stats.Paused},
		{string(model.TaskStatusCompleted), stats.Completed},
		{string(model.TaskStatusFailed), stats.Failed},
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%d\n", row.label, row.count); err != nil {
			return fmt.Errorf("write stats row: %w", err)
		}
	}
	if err := writef(tw, "total\t%d\n", stats.Total); err != nil {
		return fmt.Errorf("write stats total row: %w", err)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush stats table: %w", err)
	}
	return nil
}

type requeueAbandonedOptions struct {
	WorkerTimeout time.Duration
	BatchSize     int
	Timeout       time.Duration
}

func runRequeueAbandoned(cmdCtx *commandContext, args []string) (err error) {
	opts, err := parseRequeueAbandonedFlags(args)
	if err != nil {
		return err
	}
	if opts.WorkerTimeout == 0 {
		opts.WorkerTimeout = cmdCtx.Config.Reaper.WorkerTimeout
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = cmdCtx.Config.Reaper.BatchSize
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	deps, err := openTaskCommandDeps(cmdCtx, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close requeue-abandoned dependencies: %w", cerr))
		}
	}()

	cmdCtx.Logger.Info(
		"requeueing abandoned tasks",
		"worker_timeout", opts.WorkerTimeout,
		"batch_size", opts.BatchSize,
	)

	params := core.RequeueAbandonedParams{
		WorkerTimeout: opts.WorkerTimeout,
		BatchSize:     opts.BatchSize,
	}

	var requeued int64
	for {
		count, requeueErr := deps.TaskRepo.RequeueAbandonedTasks(ctx, params)
		if requeueErr != nil {
			return fmt.Errorf("requeue abandoned tasks: %w", requeueErr)
		}
		requeued += count
		if count == 0 {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	// The reaper flips dead workers inactive in the same sweep; mirror that so
	// a manual run leaves the roster consistent too.
	inactive, err := deps.TaskRepo.MarkStaleWorkersInactive(ctx, params)
	if err != nil {
		return fmt.Errorf("mark stale workers inactive: %w", err)
	}

	return printRequeueSummary(requeued, inactive)
}

func parseRequeueAbandonedFlags(args []string) (requeueAbandonedOptions, error) {
	fs := flag.NewFlagSet("requeue-abandoned", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := requeueAbandonedOptions{
		Timeout: defaultTaskCommandTimeout,
	}

	fs.DurationVar(
		&opts.WorkerTimeout,
		"worker-timeout",
		0,
		"Heartbeat age after which a worker counts as dead (defaults to REAPER_WORKER_TIMEOUT)",
	)
	fs.IntVar(
		&opts.BatchSize,
		"batch-size",
		0,
		"Maximum tasks to requeue per batch (defaults to REAPER_BATCH_SIZE)",
	)
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Timeout for database operations")

	if err := fs.Parse(args); err != nil {
		return requeueAbandonedOptions{}, err
	}

	if opts.WorkerTimeout < 0 {
		return requeueAbandonedOptions{}, errors.New("--worker-timeout must not be negative")
	}
	if opts.BatchSize < 0 {
		return requeueAbandonedOptions{}, errors.New("--batch-size must not be negative")
	}
	if opts.Timeout <= 0 {
		return requeueAbandonedOptions{}, errors.New("timeout must be positive")
	}

	return opts, nil
}

func printRequeueSummary(requeued, inactive int64) error {
	if err := writef(os.Stdout, "Requeued %d abandoned task(s).\n", requeued); err != nil {
		return fmt.Errorf("print requeue summary: %w", err)
	}
	if err := writef(os.Stdout, "Marked %d stale worker(s) inactive.\n", inactive); err != nil {
		return fmt.Errorf("print requeue summary: %w", err)
	}
	return nil
}

type purgeTasksOptions struct {
	Status    string
	OlderThan time.Duration
	BatchSize int
	DryRun    bool
	Yes       bool
	Timeout   time.Duration

	statuses []model.TaskStatus
}

type purgeConfirmOptions struct {
	opts   purgeTasksOptions
	target string
}

func (p purgeConfirmOptions) IsDryRun() bool { return p.opts.DryRun }
func (p purgeConfirmOptions) IsYes() bool    { return p.opts.Yes }
func (p purgeConfirmOptions) GetWarning() string {
	return "WARNING: this will permanently delete terminal task rows."
}
func (p purgeConfirmOptions) GetTarget() string { return p.target }

func runPurgeTasks(cmdCtx *commandContext, args []string) (err error) {
	opts, err := parsePurgeTasksFlags(args)
	if err != nil {
		return err
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = cmdCtx.Config.Reaper.BatchSize
	}

	actionType := fmt.Sprintf(
		"delete %s tasks older than %s",
		purgeStatusLabel(opts.statuses),
		opts.OlderThan,
	)
	if confirmErr := confirmAction(purgeConfirmOptions{
		opts:   opts,
		target: databaseTargetLabel(&cmdCtx.Config),
	}, actionType); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	deps, err := openTaskCommandDeps(cmdCtx, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close purge-tasks dependencies: %w", cerr))
		}
	}()

	for _, status := range opts.statuses {
		if opts.DryRun {
			count, countErr := deps.TaskRepo.CountOldTasks(ctx, core.DeleteOldTasksParams{
				Status: status,
				MaxAge: opts.OlderThan,
			})
			if countErr != nil {
				return fmt.Errorf("count old %s tasks: %w", status, countErr)
			}
			if printErr := writef(
				os.Stdout,
				"Would delete %d %s task(s) older than %s.\n",
				count,
				status,
				opts.OlderThan,
			); printErr != nil {
				return fmt.Errorf("print purge dry-run summary: %w", printErr)
			}
			continue
		}

		total, purgeErr := purgeTasksWithStatus(ctx, deps.TaskRepo, status, &opts)
		if purgeErr != nil {
			return purgeErr
		}
		if printErr := writef(
			os.Stdout,
			"Deleted %d %s task(s) older than %s.\n",
			total,
			status,
			opts.OlderThan,
		); printErr != nil {
			return fmt.Errorf("print purge summary: %w", printErr)
		}
	}

	return nil
}

// purgeTasksWithStatus deletes in batches until no rows remain, the same way
// the reaper drains old terminal tasks.
func purgeTasksWithStatus(
	ctx context.Context,
	repo *data.TaskRepo,
	status model.TaskStatus,
	opts *purgeTasksOptions,
) (int64, error) {
	var total int64
	for {
		count, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
			Status:    status,
			MaxAge:    opts.OlderThan,
			BatchSize: opts.BatchSize,
		})
		if err != nil {
			return total, fmt.Errorf("delete old %s tasks: %w", status, err)
		}
		total += count
		if count == 0 {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return total, ctxErr
		}
	}
	return total, nil
}

func parsePurgeTasksFlags(args []string) (purgeTasksOptions, error) {
	fs := flag.NewFlagSet("purge-tasks", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := purgeTasksOptions{
		Status:  "all",
		Timeout: defaultTaskCommandTimeout,
	}

	fs.StringVar(&opts.Status, "status", opts.Status, "Terminal status to purge (completed|failed|all)")
	fs.DurationVar(
		&opts.OlderThan,
		"older-than",
		0,
		"Delete tasks that finished longer ago than this (required)",
	)
	fs.IntVar(
		&opts.BatchSize,
		"batch-size",
		0,
		"Maximum rows to delete per batch (defaults to REAPER_BATCH_SIZE)",
	)
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Report what would be deleted without deleting")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Timeout for database operations")

	if err := fs.Parse(args); err != nil {
		return purgeTasksOptions{}, err
	}

	normalizePurgeTasksOptions(&opts)
	if err := validatePurgeTasksOptions(&opts); err != nil {
		return purgeTasksOptions{}, err
	}

	return opts, nil
}

func normalizePurgeTasksOptions(opts *purgeTasksOptions) {
	opts.Status = strings.ToLower(strings.TrimSpace(opts.Status))
}

func validatePurgeTasksOptions(opts *purgeTasksOptions) error {
	switch opts.Status {
	case "completed":
		opts.statuses = []model.TaskStatus{model.TaskStatusCompleted}
	case "failed":
		opts.statuses = []model.TaskStatus{model.TaskStatusFailed}
	case "all":
		opts.statuses = []model.TaskStatus{model.TaskStatusCompleted, model.TaskStatusFailed}
	default:
		return fmt.Errorf("invalid --status %q (valid options: completed, failed, all)", opts.Status)
	}
	if opts.OlderThan <= 0 {
		return errors.New("--older-than must be positive")
	}
	if opts.BatchSize < 0 {
		return errors.New("--batch-size must not be negative")
	}
	if opts.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func purgeStatusLabel(statuses []model.TaskStatus) string {
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}
	return strings.Join(names, " and ")
}

// printQueryResult evaluates the JMESPath expression over the JSON form of v,
// so query expressions see the same field names the HTTP API exposes.
func printQueryResult(query string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal query input: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode query input: %w", err)
	}

	result, err := jmespath.Search(query, doc)
	if err != nil {
		return fmt.Errorf("evaluate query %q: %w", query, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode query result: %w", err)
	}
	return writeln(os.Stdout, string(out))
}

func indentJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatNullableTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTimestamp(*t)
}

func formatWorkerRef(workerID *string) string {
	if workerID == nil || *workerID == "" {
		return "-"
	}
	return *workerID
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
