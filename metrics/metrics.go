// Package metrics provides Prometheus metrics for asset resolution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Resolution metrics
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetloader_resolutions_total",
			Help: "Total asset resolutions by origin and outcome",
		},
		[]string{"origin", "outcome"},
	)

	// Download metrics
	downloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetloader_download_bytes_total",
			Help: "Total bytes read from origins",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetloader_downloads_total",
			Help: "Total downloads by status",
		},
		[]string{"status"},
	)

	// Lock metrics
	lockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assetloader_lock_wait_seconds",
			Help:    "Time spent waiting for a contended key lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Manifest metrics
	manifestEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetloader_manifest_entries",
			Help: "Number of entries in the current manifest of an origin",
		},
		[]string{"origin"},
	)

	// Cache metrics
	cacheWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetloader_cache_writes_total",
			Help: "Total cache writes by status",
		},
		[]string{"status"},
	)
)

// Resolution outcomes.
const (
	OutcomeCache    = "cache"
	OutcomeNetwork  = "network"
	OutcomeStale    = "stale"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordResolution records the outcome of one resolution.
func RecordResolution(origin, outcome string) {
	resolutionsTotal.WithLabelValues(origin, outcome).Inc()
}

// RecordLockWait records how long an acquire waited in the queue.
func RecordLockWait(duration time.Duration) {
	lockWaitDuration.Observe(duration.Seconds())
}

// SetManifestEntries sets the entry count of an origin's manifest.
func SetManifestEntries(origin string, count int) {
	manifestEntries.WithLabelValues(origin).Set(float64(count))
}

// RecordCacheWrite records a finished or abandoned cache write.
func RecordCacheWrite(success bool) {
	cacheWritesTotal.WithLabelValues(status(success)).Inc()
}

// RecordDownload records a download that transferred bytes.
func RecordDownload(bytes int64, success bool) {
	downloadBytes.Add(float64(bytes))
	downloadsTotal.WithLabelValues(status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
