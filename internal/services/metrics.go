// Prometheus instrumentation for domain operations. Cardinality is kept
// bounded: apply attempts are labeled only by outcome, reload commands only
// by subsystem and result.

package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// applyAttempts counts apply invocations by recorded outcome. Attempts
	// rejected at lock acquisition are counted under "failure", matching the
	// audit row they produce.
	applyAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbx_apply_attempts_total",
			Help: "Total number of apply attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// applyDuration records end-to-end apply latency, lock to audit.
	applyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pbx_apply_duration_seconds",
			Help:    "Duration of apply attempts in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// allocRetries counts extension allocation inserts lost to a concurrent
	// allocator (each increments once per conflicted attempt).
	allocRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pbx_extension_alloc_conflicts_total",
			Help: "Total number of extension allocation attempts that lost a number race.",
		},
	)

	// reloadCommands counts daemon reload directives by subsystem and result.
	reloadCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbx_reload_commands_total",
			Help: "Total number of daemon reload commands by subsystem and result.",
		},
		[]string{"subsystem", "result"},
	)
)

func init() {
	prometheus.MustRegister(applyAttempts, applyDuration, allocRetries, reloadCommands)
}
