package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики планировщика.
var (
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempo_poll_cycles_total",
		Help: "Total number of due-job poll cycles",
	})

	JobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempo_jobs_claimed_total",
		Help: "Total number of due jobs claimed by the poller",
	})

	RunsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempo_runs_created_total",
		Help: "Total number of job runs created",
	}, []string{"source"})
)

// Метрики выполнения.
var (
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempo_runs_finished_total",
		Help: "Total number of finished run attempts",
	}, []string{"status"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tempo_run_duration_seconds",
		Help:    "Run attempt duration by payload type",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"type"})

	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempo_retries_scheduled_total",
		Help: "Total number of delayed retries scheduled",
	})
)

// APIRequests — счётчик HTTP-запросов к API.
var APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tempo_api_http_requests_total",
	Help: "Total HTTP requests to the Tempo API",
}, []string{"method", "code"})

// Значения label source для RunsCreated.
const (
	SourceSchedule = "schedule"
	SourceManual   = "manual"
)
