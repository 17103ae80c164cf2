package storage

import (
	"errors"

	"github.com/atomhq/hive/pkg/types"
)

// Sentinel errors surfaced to callers. Lookup misses are client
// errors; ErrRunStillActive guards the one-active-run-per-task
// invariant.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project name already exists")
	ErrProjectHasTasks = errors.New("project still has tasks")
	ErrTaskNotFound    = errors.New("task not found")
	ErrRunNotFound     = errors.New("run not found")
	ErrRunStillActive  = errors.New("task already has a running pipeline run")
)

// Store defines the interface for orchestrator state storage
// This is implemented by BoltDB-backed storage
type Store interface {
	// Projects
	CreateProject(project *types.Project) error
	GetProject(id string) (*types.Project, error)
	GetProjectByName(name string) (*types.Project, error)
	ListProjects() ([]*types.Project, error)
	UpdateProject(project *types.Project) error
	DeleteProject(id string) error

	// Tasks
	CreateTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	ListTasksByProject(projectID string) ([]*types.Task, error)
	ListTasksByParent(parentID string) ([]*types.Task, error)
	UpdateTask(task *types.Task) error
	DeleteTask(id string) error

	// Pipeline runs
	GetRun(id uint64) (*types.PipelineRun, error)
	ListRunsByTask(taskID string) ([]*types.PipelineRun, error)
	LatestRun(taskID string) (*types.PipelineRun, error)
	LatestRunForStage(taskID string, stage types.Stage) (*types.PipelineRun, error)
	UpdateRun(run *types.PipelineRun) error

	// Composite transitions. Each applies the task mutation and the run
	// mutation in a single transaction so a reader never observes a
	// task whose stage has advanced without a matching run.
	StartRun(task *types.Task, run *types.PipelineRun) error
	CompleteRun(run *types.PipelineRun, task *types.Task) error
	ArchiveTaskCascade(taskID string) ([]*types.Task, error)
	CreateFeedbackTask(feedback *types.Task, original *types.Task) error

	// Step logs
	AppendStepLog(entry *types.StepLog) error
	ListStepLogs(runID uint64) ([]*types.StepLog, error)

	Close() error
}
