package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// SourceDurationSeconds is the time spent per diagnostic source, labeled
	// by source and outcome.
	SourceDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecosystem",
		Subsystem: "diagnostic",
		Name:      "source_duration_seconds",
		Help:      "Time to compute one diagnostic source (vector layer, raster, gbif, biomass, canopy).",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60, 120},
	}, []string{"source", "result"})

	SourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecosystem",
		Subsystem: "diagnostic",
		Name:      "source_total",
		Help:      "Total number of diagnostic source evaluations, labeled by source and result.",
	}, []string{"source", "result"})

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecosystem",
		Subsystem: "diagnostic",
		Name:      "runs_total",
		Help:      "Total number of diagnostic runs, labeled by complete or partial.",
	}, []string{"result"})

	ChatStreamsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecosystem",
		Subsystem: "chat",
		Name:      "streams_total",
		Help:      "Total number of chat completions, labeled by how the stream ended.",
	}, []string{"result"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecosystem",
		Subsystem: "http",
		Name:      "active_sessions",
		Help:      "Number of sessions currently held in memory.",
	})
)

// Register registers the dashboard metrics with the default Prometheus
// registry. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SourceDurationSeconds,
			SourceTotal,
			RunsTotal,
			ChatStreamsTotal,
			ActiveSessions,
		)
	})
}

// ObserveSource records one source evaluation started at start.
func ObserveSource(source, result string, start time.Time) {
	SourceDurationSeconds.WithLabelValues(source, result).Observe(time.Since(start).Seconds())
	SourceTotal.WithLabelValues(source, result).Inc()
}

func Handler() http.Handler { return promhttp.Handler() }
