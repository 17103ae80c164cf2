// Package api exposes the orchestrator over HTTP.
//
// All pipeline state lives behind /api/hive: project and task CRUD,
// the board dashboard, lifecycle actions (greenlight, pause, retry,
// archive, feedback), and the worker callback endpoints advance and
// fail. Callbacks are plain JSON POSTs so a worker can report back
// with nothing but curl. /api/hive/events streams broker events as
// server-sent events; /healthz and /metrics stay outside the auth
// boundary for probes and scrapers.
//
// Requests pass through a single middleware chain: per-client-IP rate
// limiting, optional bearer-token auth, and Prometheus request
// accounting.
package api
