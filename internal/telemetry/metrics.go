package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики pipeline. Регистрируются в default registry;
// экспортируются через promhttp на /metrics каждого сервиса.
var (
	// JobsCreated — число созданных jobs.
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipline_jobs_created_total",
		Help: "Total number of jobs created.",
	})

	// JobsFinished — число завершённых jobs по терминальному состоянию.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipline_jobs_finished_total",
		Help: "Total number of jobs that reached a terminal state.",
	}, []string{"state"})

	// StateTransitions — число переходов FSM по целевому состоянию.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipline_state_transitions_total",
		Help: "Total number of job state transitions.",
	}, []string{"to"})

	// PipelineRetries — число retry-проходов (переходов QA → PLAN).
	PipelineRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipline_pipeline_retries_total",
		Help: "Total number of QA-triggered pipeline retries.",
	})

	// UnitsExecuted — число выполненных units по типу и результату.
	UnitsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipline_units_executed_total",
		Help: "Total number of units executed by workers.",
	}, []string{"kind", "status"})

	// UnitDuration — длительность выполнения unit по типу.
	UnitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipline_unit_duration_seconds",
		Help:    "Unit execution duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// StaleWrites — число конфликтов версий при записи в State Store.
	StaleWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipline_store_stale_writes_total",
		Help: "Total number of optimistic lock conflicts on job writes.",
	})

	// WSSubscribers — текущее число WebSocket подписчиков.
	WSSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipline_ws_subscribers",
		Help: "Current number of WebSocket subscribers.",
	})

	// SweptJobs — число записей, удалённых sweeper'ом.
	SweptJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipline_swept_jobs_total",
		Help: "Total number of expired job records removed by the sweeper.",
	})
)
