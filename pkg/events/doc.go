/*
Package events provides an in-process publish/subscribe broker for
orchestrator lifecycle events.

The orchestrator publishes an Event for every task and run transition
(task.created, run.started, run.passed, run.failed, task.done, ...).
Subscribers receive events on buffered channels; a slow subscriber is
skipped rather than blocking the broker. The API server bridges the
broker onto a server-sent-events stream for the dashboard.

Events are diagnostics and UI fodder, never authoritative state; the
state machine is driven entirely through the store.
*/
package events
