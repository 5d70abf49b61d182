package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "castd_sessions_active",
		Help: "Number of sessions currently tracked by the daemon",
	})

	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "castd_sessions_created_total",
		Help: "Total sessions created",
	})

	workerSpawns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castd_worker_spawns_total",
			Help: "Total encoder worker spawn attempts by status",
		},
		[]string{"status"},
	)

	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castd_encoder_state_transitions_total",
			Help: "Total encoder state transitions by resulting state",
		},
		[]string{"state"},
	)

	controlErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castd_control_errors_total",
			Help: "Total failed worker control calls by operation",
		},
		[]string{"operation"},
	)

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "castd_session_duration_seconds",
		Help:    "Lifetime of removed sessions from creation to removal",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)

// RecordSessionCreated counts a session entering the manager's table.
func RecordSessionCreated() {
	sessionsCreated.Inc()
	activeSessions.Inc()
}

// RecordSessionRemoved counts a session leaving the manager's table.
// lifetimeSeconds is the span from creation to removal.
func RecordSessionRemoved(lifetimeSeconds float64) {
	activeSessions.Dec()
	sessionDuration.Observe(lifetimeSeconds)
}

// RecordSpawn counts one worker spawn attempt.
// status should be "ok" or "error".
func RecordSpawn(status string) {
	workerSpawns.WithLabelValues(status).Inc()
}

// RecordStateTransition counts one accepted encoder state transition.
func RecordStateTransition(state string) {
	stateTransitions.WithLabelValues(state).Inc()
}

// RecordControlError counts one failed control call.
// operation should be one of: configure, start, pause, resume, stop
func RecordControlError(operation string) {
	controlErrors.WithLabelValues(operation).Inc()
}

// Handler exposes the default Prometheus registry, where all castd
// collectors are registered.
func Handler() http.Handler {
	return promhttp.Handler()
}
