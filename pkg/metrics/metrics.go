package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hive_tasks_total",
			Help: "Total number of tasks by status",
		},
		[]string{"status"},
	)

	ProjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hive_projects_total",
			Help: "Total number of projects",
		},
	)

	RunningRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hive_running_runs",
			Help: "Number of pipeline runs currently in the running state",
		},
	)

	RunsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_runs_completed_total",
			Help: "Total number of completed pipeline runs by stage and status",
		},
		[]string{"stage", "status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hive_stage_duration_seconds",
			Help:    "Wall-clock duration of completed stage runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"stage"},
	)

	DispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_dispatch_failures_total",
			Help: "Total number of failed agent dispatch attempts",
		},
	)

	CallbacksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_callbacks_rejected_total",
			Help: "Total number of rejected worker callbacks by reason",
		},
		[]string{"reason"},
	)

	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_retries_total",
			Help: "Total number of automatic in-pipeline retries",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hive_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(ProjectsTotal)
	prometheus.MustRegister(RunningRuns)
	prometheus.MustRegister(RunsCompleted)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(DispatchFailures)
	prometheus.MustRegister(CallbacksRejected)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
