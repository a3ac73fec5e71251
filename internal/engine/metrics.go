package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Solves        *prometheus.CounterVec
	SolveDuration *prometheus.HistogramVec
	Refreshes     *prometheus.CounterVec
	Strikes       prometheus.Counter
	Devices       prometheus.Gauge

	RefreshBacklog prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Solves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defusal",
			Name:      "solves_total",
			Help:      "Solve requests by module type and outcome.",
		}, []string{"type", "outcome"}),
		SolveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "defusal",
			Name:      "solve_duration_seconds",
			Help:      "Time spent in the solver, excluding storage.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"type"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defusal",
			Name:      "refreshes_total",
			Help:      "Sibling-driven solution refreshes by module type and outcome.",
		}, []string{"type", "outcome"}),
		Strikes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "defusal",
			Name:      "strikes_total",
			Help:      "Strikes recorded across all devices.",
		}),
		Devices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "defusal",
			Name:      "devices",
			Help:      "Devices currently registered.",
		}),
		RefreshBacklog: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "defusal",
			Name:      "refresh_backlog",
			Help:      "Devices with committed changes waiting for a dependent refresh.",
		}),
	}
}

// Outcome label values.
const (
	outcomeSolved    = "solved"
	outcomeProgress  = "progress"
	outcomeUnchanged = "unchanged"
)

func outcomeLabel(kind string) string {
	return "failed_" + kind
}
