package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviestream",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moviestream",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveHandles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviestream",
		Name:      "swarm_active_handles",
		Help:      "Number of torrents currently admitted to the swarm session.",
	})

	ReapedHandlesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moviestream",
		Name:      "swarm_reaped_handles_total",
		Help:      "Total torrents removed by the seeding reaper.",
	})

	ActivePipelines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviestream",
		Name:      "pipeline_active_workers",
		Help:      "Number of currently running download+segment workers.",
	})

	SegmentsExtractedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moviestream",
		Name:      "segments_extracted_total",
		Help:      "Total segments successfully extracted.",
	})

	SegmentExtractFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moviestream",
		Name:      "segment_extract_failures_total",
		Help:      "Total failed segment extraction attempts.",
	})

	SegmentExtractDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "moviestream",
		Name:      "segment_extract_duration_seconds",
		Help:      "Duration of single segment extractions in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	StreamBytesServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moviestream",
		Name:      "stream_bytes_served_total",
		Help:      "Total segment bytes written to streaming clients.",
	})

	AssetsEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moviestream",
		Name:      "assets_evicted_total",
		Help:      "Total assets whose files were removed by eviction.",
	})

	DownloadRootBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviestream",
		Name:      "download_root_bytes",
		Help:      "Total size of the download root in bytes.",
	})

	// In-progress torrent files are sparse, so allocated blocks can run well
	// below the logical size reported by download_root_bytes.
	DownloadRootAllocatedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviestream",
		Name:      "download_root_allocated_bytes",
		Help:      "Disk blocks actually allocated under the download root in bytes.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveHandles,
		ReapedHandlesTotal,
		ActivePipelines,
		SegmentsExtractedTotal,
		SegmentExtractFailuresTotal,
		SegmentExtractDuration,
		StreamBytesServedTotal,
		AssetsEvictedTotal,
		DownloadRootBytes,
		DownloadRootAllocatedBytes,
	)
}
