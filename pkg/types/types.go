package types

import (
	"time"
)

// Project is a unit of deployable work context. Tasks always belong to
// exactly one project, and a project cannot be deleted while tasks
// still reference it.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RepoPath    string    `json:"repo_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stage is one named step in the fixed pipeline sequence
type Stage string

const (
	StagePlan      Stage = "plan"
	StageImplement Stage = "implement"
	StageVerify    Stage = "verify"
	StageTest      Stage = "test"
	StageDeploy    Stage = "deploy"
	StageDone      Stage = "done"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPlan     TaskStatus = "plan"
	TaskStatusGreenlit TaskStatus = "greenlit"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusDone     TaskStatus = "done"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusPaused   TaskStatus = "paused"
	TaskStatusArchived TaskStatus = "archived"
)

// Priority is informational only; it has no scheduling effect
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Task is the unit the pipeline advances. While a run is outstanding,
// Stage always names the stage of the task's most recent run.
type Task struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Title     string     `json:"title"`
	Spec      string     `json:"spec,omitempty"`
	Status    TaskStatus `json:"status"`
	Stage     Stage      `json:"stage"`
	Priority  Priority   `json:"priority"`
	Greenlit  bool       `json:"greenlit"`
	AutoRun   bool       `json:"auto_run"`

	// Bounded automatic retry on stage failure
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// ParentID groups subtasks under a parent for display and archive
	// cascade; the pipeline itself never advances through it.
	ParentID string `json:"parent_id,omitempty"`

	// LinkedFromID records iteration lineage for feedback tasks.
	// Back-reference only, never ownership.
	LinkedFromID string `json:"linked_from_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStatus represents the state of a single pipeline run
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
)

// PipelineRun is one execution attempt of one stage for one task.
// It is created in the running state when a step starts and mutated
// exactly once to a terminal status when the worker calls back, or
// never, if the worker never reports.
type PipelineRun struct {
	ID     uint64    `json:"id"`
	TaskID string    `json:"task_id"`
	Stage  Stage     `json:"stage"`
	Status RunStatus `json:"status"`

	// AgentSessionKey is the opaque handle returned by the agent
	// runtime at dispatch. Empty if dispatch failed.
	AgentSessionKey string `json:"agent_session_key,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// LogLevel is the severity of a step log line
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelWarn    LogLevel = "warn"
	LogLevelError   LogLevel = "error"
)

// StepLog is one append-only line of human-readable narration tied to
// a pipeline run. Purely diagnostic; never consulted by the state
// machine.
type StepLog struct {
	ID        uint64    `json:"id"`
	RunID     uint64    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// TaskSummary is a task decorated with display context for the
// dashboard projection
type TaskSummary struct {
	Task        *Task        `json:"task"`
	ProjectName string       `json:"project_name"`
	LatestRun   *PipelineRun `json:"latest_run,omitempty"`
}

// StageColumn groups the non-archived tasks sitting at one board stage
type StageColumn struct {
	Stage Stage          `json:"stage"`
	Tasks []*TaskSummary `json:"tasks"`
}

// DashboardCounts holds the overall task tallies shown in the header
type DashboardCounts struct {
	Active   int `json:"active"`
	Running  int `json:"running"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
	Archived int `json:"archived"`
}

// Dashboard is the read-only aggregation served to the UI. Derived
// state only; never authoritative.
type Dashboard struct {
	Projects []*Project      `json:"projects"`
	Columns  []*StageColumn  `json:"columns"`
	Archived []*TaskSummary  `json:"archived"`
	Counts   DashboardCounts `json:"counts"`
}
