/*
Package metrics provides Prometheus instrumentation for Hive.

Metrics fall into three groups:

  - State gauges (hive_tasks_total, hive_projects_total,
    hive_running_runs) refreshed from the store every 15 seconds by the
    Collector.
  - Pipeline counters and histograms (hive_runs_completed_total,
    hive_stage_duration_seconds, hive_dispatch_failures_total,
    hive_callbacks_rejected_total, hive_retries_total) incremented
    inline by the orchestrator as transitions happen.
  - API counters and histograms (hive_api_requests_total,
    hive_api_request_duration_seconds) recorded by the HTTP middleware.

All metrics register themselves at package init; Handler exposes the
standard promhttp scrape endpoint. The Timer helper pairs a start time
with an Observer for the common measure-then-observe pattern:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.APIRequestDuration.WithLabelValues(method))
*/
package metrics
