package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/atomhq/hive/pkg/events"
	"github.com/atomhq/hive/pkg/metrics"
	"github.com/atomhq/hive/pkg/pipeline"
	"github.com/atomhq/hive/pkg/types"
	"github.com/google/uuid"
)

// Greenlight toggles a task's greenlight flag. Flipping it on with
// auto_run set starts the pipeline at the first runnable stage;
// without auto_run the task waits in the greenlit state for a manual
// start. Flipping it off while waiting reverts the task to plan.
func (o *Orchestrator) Greenlight(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	task.Greenlit = !task.Greenlit
	task.UpdatedAt = time.Now()

	if task.Greenlit {
		o.publish(&events.Event{Type: events.EventTaskGreenlit, TaskID: task.ID})
		if task.AutoRun {
			// startStep persists the flipped flag along with the new
			// run in one transaction
			return o.startStep(ctx, task, pipeline.First(), "", "")
		}
		task.Status = types.TaskStatusGreenlit
	} else if task.Status == types.TaskStatusGreenlit {
		task.Status = types.TaskStatusPlan
	}

	if err := o.store.UpdateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// startStep inserts a new running run for the stage, moves the task to
// running at that stage, and dispatches an agent with the built
// instruction. On dispatch failure the error propagates and the run
// stays running with no session handle, an operational stuck state an
// operator has to resolve. Surfaced rather than hidden.
func (o *Orchestrator) startStep(ctx context.Context, task *types.Task, stage types.Stage, previousOutput, errorContext string) (*types.Task, error) {
	project, err := o.store.GetProject(task.ProjectID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	run := &types.PipelineRun{
		TaskID:    task.ID,
		Stage:     stage,
		Status:    types.RunStatusRunning,
		StartedAt: now,
	}

	task.Status = types.TaskStatusRunning
	task.Stage = stage
	task.UpdatedAt = now
	if task.StartedAt == nil {
		task.StartedAt = &now
	}

	if err := o.store.StartRun(task, run); err != nil {
		return nil, fmt.Errorf("failed to start %s step: %w", stage, err)
	}

	o.stepLog(run.ID, types.LogLevelInfo, fmt.Sprintf("step started: %s", stage))
	o.publish(&events.Event{Type: events.EventRunStarted, TaskID: task.ID, RunID: run.ID, Stage: stage})
	o.logger.Info().Str("task_id", task.ID).Uint64("run_id", run.ID).Str("stage", string(stage)).Msg("step started")

	instruction := o.builder.Build(task, project, stage, previousOutput, errorContext)

	sessionKey, err := o.dispatcher.Start(ctx, instruction)
	if err != nil {
		metrics.DispatchFailures.Inc()
		o.stepLog(run.ID, types.LogLevelError, fmt.Sprintf("agent dispatch failed: %v", err))
		o.logger.Error().Err(err).Str("task_id", task.ID).Uint64("run_id", run.ID).Msg("agent dispatch failed")
		return nil, fmt.Errorf("failed to dispatch agent for %s step: %w", stage, err)
	}

	run.AgentSessionKey = sessionKey
	if err := o.store.UpdateRun(run); err != nil {
		return nil, err
	}
	o.stepLog(run.ID, types.LogLevelSuccess, fmt.Sprintf("agent dispatched: %s", sessionKey))

	return task, nil
}

// currentRun locates the run a callback refers to: the most recent run
// for the task's current stage. A missing run is ErrRunNotFound; a run
// that already reached a terminal status means the callback is stale.
func (o *Orchestrator) currentRun(task *types.Task) (*types.PipelineRun, error) {
	run, err := o.store.LatestRunForStage(task.ID, task.Stage)
	if err != nil {
		metrics.CallbacksRejected.WithLabelValues("run_not_found").Inc()
		return nil, err
	}
	if run.Status != types.RunStatusRunning {
		metrics.CallbacksRejected.WithLabelValues("stale").Inc()
		return nil, fmt.Errorf("%w: task %s stage %s", ErrStaleCallback, task.ID, task.Stage)
	}
	return run, nil
}

// finishRun stamps a run's terminal state and observes its duration
func finishRun(run *types.PipelineRun, status types.RunStatus, now time.Time) {
	run.Status = status
	run.CompletedAt = &now
	run.DurationMS = now.Sub(run.StartedAt).Milliseconds()
	metrics.RunsCompleted.WithLabelValues(string(run.Stage), string(status)).Inc()
	metrics.StageDuration.WithLabelValues(string(run.Stage)).Observe(now.Sub(run.StartedAt).Seconds())
}

// Advance records a success callback from the worker running the
// task's current stage. The passed run is closed and either the next
// stage is started or, past deploy, the task completes.
func (o *Orchestrator) Advance(ctx context.Context, taskID, output string) (*types.Task, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	run, err := o.currentRun(task)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	finishRun(run, types.RunStatusPassed, now)
	run.Output = output
	task.UpdatedAt = now

	next := pipeline.Next(task.Stage)
	if next == "" || next == types.StageDone {
		task.Status = types.TaskStatusDone
		task.Stage = types.StageDone
		task.CompletedAt = &now
		if err := o.store.CompleteRun(run, task); err != nil {
			return nil, err
		}
		o.stepLog(run.ID, types.LogLevelSuccess, "step passed, pipeline complete")
		o.publish(&events.Event{Type: events.EventRunPassed, TaskID: task.ID, RunID: run.ID, Stage: run.Stage})
		o.publish(&events.Event{Type: events.EventTaskDone, TaskID: task.ID})
		o.logger.Info().Str("task_id", task.ID).Msg("pipeline complete")
		return task, nil
	}

	if err := o.store.CompleteRun(run, task); err != nil {
		return nil, err
	}
	o.stepLog(run.ID, types.LogLevelSuccess, fmt.Sprintf("step passed, advancing to %s", next))
	o.publish(&events.Event{Type: events.EventRunPassed, TaskID: task.ID, RunID: run.ID, Stage: run.Stage})

	return o.startStep(ctx, task, next, run.Output, "")
}

// Fail records a failure callback from the worker running the task's
// current stage. Within the retry budget the same stage is started
// again with the error embedded in the new instruction; past it the
// task fails terminally.
func (o *Orchestrator) Fail(ctx context.Context, taskID, errMsg string) (*types.Task, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	run, err := o.currentRun(task)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	finishRun(run, types.RunStatusFailed, now)
	run.Error = errMsg
	task.UpdatedAt = now

	o.stepLog(run.ID, types.LogLevelError, fmt.Sprintf("step failed: %s", errMsg))
	o.publish(&events.Event{Type: events.EventRunFailed, TaskID: task.ID, RunID: run.ID, Stage: run.Stage, Message: errMsg})

	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		task.Status = types.TaskStatusRunning
		if err := o.store.CompleteRun(run, task); err != nil {
			return nil, err
		}
		o.stepLog(run.ID, types.LogLevelWarn, fmt.Sprintf("retrying %s (attempt %d of %d)", task.Stage, task.RetryCount, task.MaxRetries))
		o.logger.Warn().Str("task_id", task.ID).Str("stage", string(task.Stage)).Int("retry", task.RetryCount).Msg("retrying failed step")
		metrics.RetriesTotal.Inc()
		o.publish(&events.Event{Type: events.EventRunRetried, TaskID: task.ID, Stage: task.Stage})
		return o.startStep(ctx, task, task.Stage, "", errMsg)
	}

	task.Status = types.TaskStatusFailed
	if err := o.store.CompleteRun(run, task); err != nil {
		return nil, err
	}
	o.publish(&events.Event{Type: events.EventTaskFailed, TaskID: task.ID, Message: errMsg})
	o.logger.Error().Str("task_id", task.ID).Str("stage", string(task.Stage)).Msg("retries exhausted, task failed")
	return task, nil
}

// Pause flags a task paused. Bookkeeping only: an already-dispatched
// worker keeps running and its eventual callback is still accepted.
func (o *Orchestrator) Pause(taskID string) (*types.Task, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	task.Status = types.TaskStatusPaused
	task.UpdatedAt = time.Now()
	if err := o.store.UpdateTask(task); err != nil {
		return nil, err
	}
	o.publish(&events.Event{Type: events.EventTaskPaused, TaskID: task.ID})
	return task, nil
}

// Retry is the operator-invoked reset, softer than the automatic
// in-pipeline retry: the task goes back to greenlit with the retry
// counter bumped, and no step starts until a subsequent operator or
// greenlight action does so.
func (o *Orchestrator) Retry(taskID string) (*types.Task, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	task.Status = types.TaskStatusGreenlit
	task.Greenlit = true
	task.RetryCount++
	task.UpdatedAt = time.Now()
	if err := o.store.UpdateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Archive archives a task and cascades to its direct subtasks.
// Pipeline runs are left untouched for audit.
func (o *Orchestrator) Archive(taskID string) ([]*types.Task, error) {
	archived, err := o.store.ArchiveTaskCascade(taskID)
	if err != nil {
		return nil, err
	}
	for _, task := range archived {
		o.publish(&events.Event{Type: events.EventTaskArchived, TaskID: task.ID})
	}
	o.logger.Info().Str("task_id", taskID).Int("archived", len(archived)).Msg("task archived")
	return archived, nil
}

// Feedback atomically creates a fresh iteration task carrying the
// feedback text and archives the original. This is the only way a done
// task re-enters the pipeline: as a new linked task, never by
// resetting the original.
func (o *Orchestrator) Feedback(taskID, feedbackText string) (*types.Task, error) {
	original, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	iteration := &types.Task{
		ID:           uuid.New().String(),
		ProjectID:    original.ProjectID,
		Title:        original.Title,
		Spec:         feedbackText,
		Status:       types.TaskStatusPlan,
		Stage:        types.StagePlan,
		Priority:     original.Priority,
		MaxRetries:   original.MaxRetries,
		LinkedFromID: original.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	original.Status = types.TaskStatusArchived
	original.UpdatedAt = now

	if err := o.store.CreateFeedbackTask(iteration, original); err != nil {
		return nil, err
	}

	o.publish(&events.Event{Type: events.EventTaskFeedback, TaskID: iteration.ID, Message: original.ID})
	o.publish(&events.Event{Type: events.EventTaskArchived, TaskID: original.ID})
	o.logger.Info().Str("task_id", original.ID).Str("iteration_id", iteration.ID).Msg("feedback task created")
	return iteration, nil
}
