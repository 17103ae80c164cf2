package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/atomhq/hive/pkg/dispatch"
	"github.com/atomhq/hive/pkg/events"
	"github.com/atomhq/hive/pkg/log"
	"github.com/atomhq/hive/pkg/prompt"
	"github.com/atomhq/hive/pkg/storage"
	"github.com/atomhq/hive/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStaleCallback is returned when an advance or fail callback arrives
// for a task whose current stage no longer has a running run, e.g. a
// duplicate callback from a worker that a retry already superseded.
// Stale callbacks are rejected so they cannot corrupt a later run's
// bookkeeping.
var ErrStaleCallback = errors.New("callback does not match a running run for the task's current stage")

// ErrValidation wraps rejected input: missing required fields, malformed
// request bodies, identifiers that do not parse.
var ErrValidation = errors.New("validation failed")

// DefaultMaxRetries bounds automatic in-pipeline retries per task
const DefaultMaxRetries = 2

// Orchestrator owns the task/run lifecycle: starting steps, recording
// worker callbacks, applying retry policy, and cascading archive and
// feedback operations. All state goes through the transactional store;
// the orchestrator itself holds none.
type Orchestrator struct {
	store      storage.Store
	dispatcher dispatch.Dispatcher
	builder    *prompt.Builder
	broker     *events.Broker
	logger     zerolog.Logger
}

// Config holds the collaborators an Orchestrator is built from
type Config struct {
	Store      storage.Store
	Dispatcher dispatch.Dispatcher
	Builder    *prompt.Builder
	Broker     *events.Broker
}

// New creates an Orchestrator
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		builder:    cfg.Builder,
		broker:     cfg.Broker,
		logger:     log.WithComponent("orchestrator"),
	}
}

// publish sends an event if a broker is attached
func (o *Orchestrator) publish(event *events.Event) {
	if o.broker != nil {
		o.broker.Publish(event)
	}
}

// stepLog appends a narration line for a run. Write failures are
// deliberately ignored: step logs are fire-and-forget diagnostics.
func (o *Orchestrator) stepLog(runID uint64, level types.LogLevel, message string) {
	entry := &types.StepLog{
		RunID:     runID,
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}
	if err := o.store.AppendStepLog(entry); err != nil {
		o.logger.Debug().Err(err).Uint64("run_id", runID).Msg("step log write failed")
	}
}

// Project CRUD

// CreateProject creates a new project
func (o *Orchestrator) CreateProject(name, description, repoPath string) (*types.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrValidation)
	}

	now := time.Now()
	project := &types.Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		RepoPath:    repoPath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := o.store.CreateProject(project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	o.publish(&events.Event{Type: events.EventProjectCreated, Message: name})
	o.logger.Info().Str("project_id", project.ID).Str("name", name).Msg("project created")
	return project, nil
}

// GetProject retrieves a project by ID
func (o *Orchestrator) GetProject(id string) (*types.Project, error) {
	return o.store.GetProject(id)
}

// ListProjects returns all projects
func (o *Orchestrator) ListProjects() ([]*types.Project, error) {
	return o.store.ListProjects()
}

// UpdateProject applies metadata edits to a project
func (o *Orchestrator) UpdateProject(project *types.Project) error {
	project.UpdatedAt = time.Now()
	return o.store.UpdateProject(project)
}

// DeleteProject removes a project. Refused while tasks reference it.
func (o *Orchestrator) DeleteProject(id string) error {
	if err := o.store.DeleteProject(id); err != nil {
		return err
	}
	o.publish(&events.Event{Type: events.EventProjectDeleted, Message: id})
	return nil
}

// Task CRUD

// CreateTaskRequest carries the operator-settable fields of a new task
type CreateTaskRequest struct {
	ProjectID  string         `json:"project_id"`
	Title      string         `json:"title"`
	Spec       string         `json:"spec,omitempty"`
	Priority   types.Priority `json:"priority,omitempty"`
	AutoRun    bool           `json:"auto_run,omitempty"`
	MaxRetries *int           `json:"max_retries,omitempty"`
	ParentID   string         `json:"parent_id,omitempty"`
}

// CreateTask creates a new task at plan/plan, not greenlit
func (o *Orchestrator) CreateTask(req CreateTaskRequest) (*types.Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: task title is required", ErrValidation)
	}
	if req.ProjectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", ErrValidation)
	}

	priority := req.Priority
	switch priority {
	case types.PriorityLow, types.PriorityNormal, types.PriorityHigh:
	default:
		priority = types.PriorityNormal
	}

	maxRetries := DefaultMaxRetries
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		maxRetries = *req.MaxRetries
	}

	now := time.Now()
	task := &types.Task{
		ID:         uuid.New().String(),
		ProjectID:  req.ProjectID,
		Title:      req.Title,
		Spec:       req.Spec,
		Status:     types.TaskStatusPlan,
		Stage:      types.StagePlan,
		Priority:   priority,
		AutoRun:    req.AutoRun,
		MaxRetries: maxRetries,
		ParentID:   req.ParentID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := o.store.CreateTask(task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	o.publish(&events.Event{Type: events.EventTaskCreated, TaskID: task.ID, Message: task.Title})
	o.logger.Info().Str("task_id", task.ID).Str("title", task.Title).Msg("task created")
	return task, nil
}

// GetTask retrieves a task by ID
func (o *Orchestrator) GetTask(id string) (*types.Task, error) {
	return o.store.GetTask(id)
}

// TaskDetail is a task with its subtasks and run history
type TaskDetail struct {
	Task        *types.Task          `json:"task"`
	ProjectName string               `json:"project_name"`
	Subtasks    []*types.Task        `json:"subtasks,omitempty"`
	Runs        []*types.PipelineRun `json:"runs,omitempty"`
}

// GetTaskDetail retrieves a task together with its subtasks and runs
func (o *Orchestrator) GetTaskDetail(id string) (*TaskDetail, error) {
	task, err := o.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	subtasks, err := o.store.ListTasksByParent(id)
	if err != nil {
		return nil, err
	}

	runs, err := o.store.ListRunsByTask(id)
	if err != nil {
		return nil, err
	}

	detail := &TaskDetail{Task: task, Subtasks: subtasks, Runs: runs}
	if project, err := o.store.GetProject(task.ProjectID); err == nil {
		detail.ProjectName = project.Name
	}
	return detail, nil
}

// TaskFilter narrows a task listing. Zero values match everything;
// archived tasks are excluded unless IncludeArchived is set.
type TaskFilter struct {
	ProjectID       string
	Status          types.TaskStatus
	IncludeArchived bool
}

// ListTasks returns tasks matching the filter
func (o *Orchestrator) ListTasks(filter TaskFilter) ([]*types.Task, error) {
	tasks, err := o.store.ListTasks()
	if err != nil {
		return nil, err
	}

	filtered := make([]*types.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == types.TaskStatusArchived && !filter.IncludeArchived && filter.Status != types.TaskStatusArchived {
			continue
		}
		if filter.ProjectID != "" && task.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		filtered = append(filtered, task)
	}
	return filtered, nil
}

// TaskUpdate carries the allow-listed fields an operator may edit.
// Nil pointers leave the field untouched. Status, stage, greenlit, and
// the lineage references are owned by the state machine and cannot be
// edited directly.
type TaskUpdate struct {
	Title      *string         `json:"title,omitempty"`
	Spec       *string         `json:"spec,omitempty"`
	Priority   *types.Priority `json:"priority,omitempty"`
	AutoRun    *bool           `json:"auto_run,omitempty"`
	MaxRetries *int            `json:"max_retries,omitempty"`
}

// UpdateTask applies an allow-listed edit to a task
func (o *Orchestrator) UpdateTask(id string, update TaskUpdate) (*types.Task, error) {
	task, err := o.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Spec != nil {
		task.Spec = *update.Spec
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.AutoRun != nil {
		task.AutoRun = *update.AutoRun
	}
	if update.MaxRetries != nil && *update.MaxRetries >= 0 {
		task.MaxRetries = *update.MaxRetries
	}
	task.UpdatedAt = time.Now()

	if err := o.store.UpdateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task, its runs, and their step logs
func (o *Orchestrator) DeleteTask(id string) error {
	return o.store.DeleteTask(id)
}

// ListRunsByTask returns a task's run history in order
func (o *Orchestrator) ListRunsByTask(taskID string) ([]*types.PipelineRun, error) {
	return o.store.ListRunsByTask(taskID)
}

// ListStepLogs returns a run's narration lines in insertion order
func (o *Orchestrator) ListStepLogs(runID uint64) ([]*types.StepLog, error) {
	if _, err := o.store.GetRun(runID); err != nil {
		return nil, err
	}
	return o.store.ListStepLogs(runID)
}
