/*
Package storage provides BoltDB-backed state persistence for Hive's
orchestrator data.

The storage package implements the Store interface using BoltDB as the
underlying database, providing ACID transactions for projects, tasks,
pipeline runs, and step logs. All data is serialized as JSON and stored
in separate buckets.

# Buckets

	projects   keyed by project ID (UUID)
	tasks      keyed by task ID (UUID)
	runs       keyed by zero-padded bucket sequence number
	step_logs  keyed by zero-padded bucket sequence number

Run and step-log keys are fixed-width sequence numbers, so a bbolt
cursor walks them in insertion order. "The task's latest run" is simply
the highest-keyed run with a matching task ID; the orchestrator's
current-run lookup depends on that ordering.

# Composite transitions

Beyond plain CRUD, the Store exposes composite operations that apply a
task mutation and a run mutation inside one bbolt transaction:

  - StartRun: check-and-insert. Refuses with ErrRunStillActive if the
    task already has a running run, otherwise inserts the new run and
    writes the task's new stage/status together. This transaction is
    what enforces the at-most-one-running-run-per-task invariant when
    worker callbacks race operator actions.
  - CompleteRun: terminal run state plus the task transition it implies.
  - ArchiveTaskCascade: archives a task and its direct children.
  - CreateFeedbackTask: inserts the iteration task and archives the
    original.

A reader therefore never observes a task whose stage has advanced with
no matching run, or a new run for a task that still has one outstanding.
*/
package storage
