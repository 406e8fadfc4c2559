package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsRateLimitPerMin bounds /metrics scrapes per source IP, guarding the
// admin surface against an accidental scrape storm.
const metricsRateLimitPerMin = 120

var (
	// WorkersAlive is a gauge of currently alive (non-stopped) workers.
	WorkersAlive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workers_alive",
		Help: "Number of workers currently alive (non-stopped state)",
	})
	// WorkerStateTransitions counts state machine transitions by alias and new state.
	WorkerStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_state_transitions_total",
		Help: "Total number of worker state transitions",
	}, []string{"alias", "state"})
	// UploadsTotal counts statement uploads by alias and outcome.
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statement_uploads_total",
		Help: "Total number of statement upload attempts",
	}, []string{"alias", "outcome"})
	// RetryAttemptsTotal counts retry-wrapper attempts by operation and outcome.
	RetryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_retry_attempts_total",
		Help: "Total number of adapter operation retry attempts",
	}, []string{"operation", "outcome"})
	// TabResetsTotal counts tab-reset protocol invocations by alias.
	TabResetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tab_resets_total",
		Help: "Total number of tab-reset protocol invocations",
	}, []string{"alias"})
	// AlertsEmittedTotal counts balance alerts emitted by urgency.
	AlertsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_alerts_emitted_total",
		Help: "Total number of balance threshold alerts emitted",
	}, []string{"urgency"})
	// MessengerSendsTotal counts Messenger send outcomes.
	MessengerSendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_sends_total",
		Help: "Total number of Messenger send attempts",
	}, []string{"kind", "outcome"})
	// MessengerDropsTotal counts messages dropped after sustained Messenger failures.
	MessengerDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_drops_total",
		Help: "Total number of messages dropped after sustained send failures",
	})
	// CircuitBreakerStatus records circuit breaker state by target (0=closed,1=open,2=half-open).
	CircuitBreakerStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_status",
		Help: "Circuit breaker state by target (0=closed,1=open,2=half-open)",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(
		WorkersAlive,
		WorkerStateTransitions,
		UploadsTotal,
		RetryAttemptsTotal,
		TabResetsTotal,
		AlertsEmittedTotal,
		MessengerSendsTotal,
		MessengerDropsTotal,
		CircuitBreakerStatus,
	)
}

// RecordStateTransition increments the transitions counter for alias/state.
func RecordStateTransition(alias, state string) {
	WorkerStateTransitions.WithLabelValues(alias, state).Inc()
}

// RecordUpload records one upload attempt outcome ("ok" or "failed").
func RecordUpload(alias, outcome string) {
	UploadsTotal.WithLabelValues(alias, outcome).Inc()
}

// RecordRetryAttempt records one retry-wrapper attempt outcome.
func RecordRetryAttempt(operation, outcome string) {
	RetryAttemptsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordTabReset records one tab-reset protocol invocation.
func RecordTabReset(alias string) {
	TabResetsTotal.WithLabelValues(alias).Inc()
}

// RecordAlert records one emitted balance alert.
func RecordAlert(urgency string) {
	AlertsEmittedTotal.WithLabelValues(urgency).Inc()
}

// RecordMessengerSend records one Messenger send attempt outcome.
func RecordMessengerSend(kind, outcome string) {
	MessengerSendsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordMessengerDrop records one message dropped after sustained failures.
func RecordMessengerDrop() {
	MessengerDropsTotal.Inc()
}

// NewMetricsRouter builds a chi router exposing /healthz and /metrics,
// suitable for mounting as the supervisor's internal admin HTTP surface.
func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Use(httprate.LimitByIP(metricsRateLimitPerMin, time.Minute))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
