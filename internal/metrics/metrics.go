// Package metrics declares the process-wide Prometheus collectors for
// the server and agent: queue depth, reconciliation timing, agent load,
// event fan-out and log campaign volume. Grounded on the teacher's
// pkg/metrics/metrics.go collector declarations, renamed to this
// system's domain.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkloadQueueDepth is the number of commands currently buffered in
	// a workload's command channel, labeled by workload instance.
	WorkloadQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ankaios_workload_queue_depth",
			Help: "Number of buffered commands per workload queue",
		},
		[]string{"instance"},
	)

	// WorkloadsByPhase is the number of workloads currently in each
	// ExecutionState phase, per agent.
	WorkloadsByPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ankaios_workloads_by_phase",
			Help: "Number of workloads by execution state phase",
		},
		[]string{"agent", "phase"},
	)

	// ReconciliationDuration measures time spent in one
	// HandleUpdateWorkload call.
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ankaios_reconciliation_duration_seconds",
			Help:    "Time spent reconciling an agent's workload assignment",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AgentLoadCPUPercent mirrors the most recent AgentLoadStatus per
	// agent.
	AgentLoadCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ankaios_agent_cpu_percent",
			Help: "Last reported agent CPU usage percentage",
		},
		[]string{"agent"},
	)

	// AgentLoadFreeMemoryBytes mirrors the most recent AgentLoadStatus
	// per agent.
	AgentLoadFreeMemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ankaios_agent_free_memory_bytes",
			Help: "Last reported agent free memory in bytes",
		},
		[]string{"agent"},
	)

	// EventSubscribersTotal is the number of active complete-state event
	// subscriptions.
	EventSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ankaios_event_subscribers_total",
			Help: "Number of active complete state event subscriptions",
		},
	)

	// LogCampaignsTotal is the number of outstanding logs requests.
	LogCampaignsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ankaios_log_campaigns_total",
			Help: "Number of outstanding log streaming requests",
		},
	)

	// StateUpdatesTotal counts accepted/rejected UpdateState requests.
	StateUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ankaios_state_updates_total",
			Help: "Number of UpdateState requests by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkloadQueueDepth,
		WorkloadsByPhase,
		ReconciliationDuration,
		AgentLoadCPUPercent,
		AgentLoadFreeMemoryBytes,
		EventSubscribersTotal,
		LogCampaignsTotal,
		StateUpdatesTotal,
	)
}

// Handler returns the HTTP handler serving the registered collectors in
// the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
