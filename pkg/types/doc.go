/*
Package types defines the core data structures used throughout Hive.

This package contains the fundamental types that represent Hive's domain
model: projects, tasks, pipeline runs, and step logs. These types are
used by all other packages for state management, API communication, and
orchestration logic.

# Core Types

Pipeline entities:
  - Project: Unit of deployable work context (name, repo path)
  - Task: The unit the pipeline advances, with status and stage
  - PipelineRun: One execution attempt of one stage for one task
  - StepLog: Append-only diagnostic narration for a run

Enumerations:
  - Stage: plan, implement, verify, test, deploy, done
  - TaskStatus: plan, greenlit, running, done, failed, paused, archived
  - RunStatus: running, passed, failed
  - Priority: low, normal, high (informational only)
  - LogLevel: info, success, warn, error

Read model:
  - Dashboard, StageColumn, TaskSummary, DashboardCounts: the derived
    board projection served to the UI

# Ownership

Project owns Tasks (1:N); Task owns PipelineRuns (1:N, time-ordered);
PipelineRun owns StepLogs (1:N, append-only). Task.ParentID and
Task.LinkedFromID are non-owning back-references used only for display
grouping and iteration lineage.

All types serialize to JSON with snake_case field names, both for the
HTTP API and for storage.
*/
package types
