package browser

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browserd",
		Name:      "sessions_active",
		Help:      "Number of live browser sessions in the registry.",
	})
	metricLaunchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "browserd",
		Name:      "launch_failures_total",
		Help:      "Session creations that exhausted every launch strategy.",
	})
	metricSessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "browserd",
		Name:      "sessions_reaped_total",
		Help:      "Sessions closed by the idle sweep.",
	})
	metricOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browserd",
		Name:      "operations_total",
		Help:      "Browser operations by kind.",
	}, []string{"op"})
	metricOperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browserd",
		Name:      "operation_errors_total",
		Help:      "Failed browser operations by kind.",
	}, []string{"op"})
)
