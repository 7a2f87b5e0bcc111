package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilupskalvis/avc/internal/models"
)

// Metrics holds the save flow's Prometheus metrics.
type Metrics struct {
	Uploads        *prometheus.CounterVec
	UploadDuration prometheus.Histogram
	IndexFailures  prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avc_uploads_total",
			Help: "Content uploads by outcome",
		}, []string{"status"}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "avc_upload_duration_seconds",
			Help:    "Time to extract and store one save",
			Buckets: prometheus.DefBuckets,
		}),
		IndexFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avc_index_failures_total",
			Help: "Items that could not be written to the search backend",
		}),
	}
	reg.MustRegister(m.Uploads, m.UploadDuration, m.IndexFailures)
	return m
}

func (m *Metrics) observeUpload(status models.UploadStatus, start time.Time) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(string(status)).Inc()
	m.UploadDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) indexFailed() {
	if m == nil {
		return
	}
	m.IndexFailures.Inc()
}
