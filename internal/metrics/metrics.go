// Package metrics exposes Prometheus instrumentation for the dispatcher,
// worker, and scheduler: queue depth, gate occupancy, and download outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide collector registry. Constructed once at
// startup and passed to Handler; the package-level metric vars below are
// registered into it via promauto so call sites never handle registration
// errors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// QueueDepth tracks the dispatcher's DispatchQueue length.
	QueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "channel_rss_queue_depth",
		Help: "Number of scheduled jobs currently waiting in the dispatch queue.",
	})

	// GateInUse tracks the concurrency gate's permits in use.
	GateInUse = factory.NewGauge(prometheus.GaugeOpts{
		Name: "channel_rss_gate_in_use",
		Help: "Number of concurrency gate permits currently held by workers.",
	})

	// GateCapacity is the configured download_limit, exposed so in-use can
	// be read as a saturation ratio.
	GateCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Name: "channel_rss_gate_capacity",
		Help: "Configured concurrency gate capacity (download_limit).",
	})

	// DownloadsUpdated counts successful installs, per channel.
	DownloadsUpdated = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_rss_downloads_updated_total",
		Help: "Number of attempts that replaced the installed channel document.",
	}, []string{"channel"})

	// DownloadsShortCircuited counts attempts skipped because the upstream
	// body was unchanged, per channel.
	DownloadsShortCircuited = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_rss_downloads_unchanged_total",
		Help: "Number of attempts where the upstream body was byte-identical to the cached one.",
	}, []string{"channel"})

	// DownloadsFailed counts attempts that ended in an error, per channel.
	DownloadsFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_rss_downloads_failed_total",
		Help: "Number of attempts that ended in an exception.",
	}, []string{"channel"})

	// DownloadDuration observes how long each attempt took end to end, per
	// channel.
	DownloadDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "channel_rss_download_duration_seconds",
		Help:    "Wall-clock duration of one download attempt, gate wait included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
)

// Handler returns the HTTP handler to expose on --metrics-addr.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
