package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Scan outcome labels for the scans counter.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Instruments measures the exporter's own scans.
type Instruments struct {
	duration *prometheus.HistogramVec
	scans    *prometheus.CounterVec
}

// NewInstruments creates the scan instrumentation and registers it on reg.
func NewInstruments(reg prometheus.Registerer) *Instruments {
	i := &Instruments{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fileexporter_scan_duration_seconds",
				Help:    "Time taken to complete one category scan of one tenant.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
			},
			[]string{"category"},
		),
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileexporter_scans_total",
				Help: "Total number of category scans by outcome.",
			},
			[]string{"category", "status"},
		),
	}
	reg.MustRegister(i.duration, i.scans)
	return i
}

// Observe records one finished scan. Skipped scans are counted but not timed.
func (i *Instruments) Observe(category, status string, elapsed time.Duration) {
	if i == nil {
		return
	}
	i.scans.WithLabelValues(category, status).Inc()
	if status != StatusSkipped {
		i.duration.WithLabelValues(category).Observe(elapsed.Seconds())
	}
}
