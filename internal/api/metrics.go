package api

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AaronLay10/DefusalEngine/internal/events"
	"github.com/AaronLay10/DefusalEngine/internal/version"
)

// httpMetrics are the server's own collectors. Engine metrics are registered
// separately by the engine package on the same registry.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer, bus *events.Bus, readiness *Readiness, started time.Time) *httpMetrics {
	f := promauto.With(reg)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	f.NewGauge(prometheus.GaugeOpts{
		Namespace:   "defusal",
		Name:        "build_info",
		Help:        "Always 1; labels carry the build version and host.",
		ConstLabels: prometheus.Labels{"version": version.Version, "instance": hostname},
	}).Set(1)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "defusal",
		Name:      "uptime_seconds",
		Help:      "Number of seconds since the server started.",
	}, func() float64 { return time.Since(started).Seconds() })

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "defusal",
		Name:      "events_total",
		Help:      "Total number of events emitted since startup.",
	}, func() float64 { return float64(bus.TotalCount()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "defusal",
		Name:      "ws_clients",
		Help:      "Number of active event stream subscribers.",
	}, func() float64 { return float64(bus.SubscriberCount()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "defusal",
		Name:      "mqtt_connected",
		Help:      "Whether the MQTT broker is connected (1) or not (0).",
	}, func() float64 { return boolGauge(readiness.MQTTConnected()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "defusal",
		Name:      "postgres_connected",
		Help:      "Whether PostgreSQL is connected (1) or not (0).",
	}, func() float64 { return boolGauge(readiness.PostgresConnected()) })

	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defusal",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "defusal",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
