package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SandboxCreatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nimbus_sandbox_creates_total",
			Help: "Total sandbox creations",
		},
		[]string{"provider", "status"},
	)

	FailoversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nimbus_failovers_total",
			Help: "Create failovers to a fallback provider",
		},
		[]string{"from", "to", "status"},
	)

	ActiveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nimbus_sessions_active",
			Help: "Live sessions tracked by the manager",
		},
		[]string{"provider"},
	)

	SessionsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nimbus_sessions_reaped_total",
			Help: "Sessions removed by idle reaping",
		},
	)

	ExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nimbus_exec_duration_seconds",
			Help:    "Time to execute a command in a sandbox",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0},
		},
		[]string{"provider"},
	)

	SandboxCreateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nimbus_sandbox_create_duration_seconds",
			Help:    "Time to create a sandbox",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"provider"},
	)

	ProviderHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nimbus_provider_healthy",
			Help: "1 if the provider's last health check passed",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		SandboxCreatesTotal,
		FailoversTotal,
		ActiveSessions,
		SessionsReapedTotal,
		ExecDuration,
		SandboxCreateDuration,
		ProviderHealthy,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
