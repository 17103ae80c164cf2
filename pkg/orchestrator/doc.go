/*
Package orchestrator implements Hive's core state machine: driving a
task through the fixed pipeline of stages, each stage executed by an
external agent worker that reports back through callbacks.

# Task lifecycle

	plan → greenlit → running → (done | failed | paused)

archived is reachable from any state; a feedback task re-enters at
plan as a fresh linked iteration.

Progress is entirely request-driven. There is no background loop: a
step starts in response to an operator action (greenlight with
auto_run) or a worker callback (Advance starting the next stage, Fail
starting a retry). Between starting a step and receiving its callback
the task is suspended indefinitely from this system's point of view:
no polling, no timeout, no liveness check on the worker.

# Callbacks

Advance and Fail are the only resumption entry points. Both locate the
current run (the most recent run for the task's current stage) and
reject anything that does not match a running run: a miss is
storage.ErrRunNotFound, a terminal run means ErrStaleCallback (e.g. a
duplicate callback from a worker a retry already superseded). That
lookup is only correct because StartRun's transactional
check-and-insert guarantees at most one running run per task.

# Retry policy

An automatic retry re-runs the same stage with the failure embedded in
the new instruction, at most MaxRetries times (default 2); the next
failure is terminal. The operator-invoked Retry is a softer reset: back
to greenlit, counter bumped, no step started.

# Known stuck state

When dispatch fails the error propagates but the inserted run stays
running with no session handle. Nothing re-attempts dispatch; the task
shows running indefinitely until an operator intervenes. This mirrors
the fire-and-forget dispatch design and is surfaced through step logs
and the hive_dispatch_failures_total metric rather than hidden.
*/
package orchestrator
