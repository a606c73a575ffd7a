package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_messages_received_total",
		Help: "Raw frames received from the prediction server.",
	})

	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_parse_errors_total",
		Help: "Frames that could not be fully parsed.",
	})

	UpdatesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_updates_applied_total",
		Help: "Canonical updates applied to session state, by stage.",
	}, []string{"stage"})

	UpdatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_updates_dropped_total",
		Help: "Updates dropped because no session could be resolved.",
	})

	ProgressRegressions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_progress_regressions_total",
		Help: "Progress values ignored as duplicate or out-of-order.",
	})

	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_reconnect_attempts_total",
		Help: "Scheduled reconnect attempts.",
	})

	ConnectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_connect_failures_total",
		Help: "Failed connection attempts.",
	})

	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_connected",
		Help: "1 while the connection phase is connected.",
	})

	HealthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_health_score",
		Help: "Connection health score in [0,100].",
	})

	ArchivedUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_archived_updates_total",
		Help: "Session updates written to the archive database.",
	})
)
