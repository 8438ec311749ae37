package providers

import (
	"time"
	"usd/internal/structures"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObservePersistenceDuration(file string, duration time.Duration)
	IncCollectionsTotal(result string)
	AddRecordsCollected(count int)
	IncUploadsTotal(result string)
	AddSamplesUploaded(count int)
	ObserveUploadDuration(duration time.Duration)
	IncJobRuns(job string, outcome string)
	SetPendingSamples(count int)
}

type MetricsProvider struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	persistenceDuration *prometheus.HistogramVec
	collectionsTotal    *prometheus.CounterVec
	recordsCollected    prometheus.Counter
	uploadsTotal        *prometheus.CounterVec
	samplesUploaded     prometheus.Counter
	uploadDuration      prometheus.Histogram
	jobRuns             *prometheus.CounterVec
	pendingSamples      prometheus.Gauge
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) ObservePersistenceDuration(file string, duration time.Duration) {
	m.persistenceDuration.WithLabelValues(file).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCollectionsTotal(result string) {
	m.collectionsTotal.WithLabelValues(result).Inc()
}

func (m *MetricsProvider) AddRecordsCollected(count int) {
	m.recordsCollected.Add(float64(count))
}

func (m *MetricsProvider) IncUploadsTotal(result string) {
	m.uploadsTotal.WithLabelValues(result).Inc()
}

func (m *MetricsProvider) AddSamplesUploaded(count int) {
	m.samplesUploaded.Add(float64(count))
}

func (m *MetricsProvider) ObserveUploadDuration(duration time.Duration) {
	m.uploadDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncJobRuns(job string, outcome string) {
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

func (m *MetricsProvider) SetPendingSamples(count int) {
	m.pendingSamples.Set(float64(count))
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	return &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "usd_requests_total",
			Help: "Total number of control API requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usd_request_duration_seconds",
			Help:    "Control API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usd_cache_hits_total",
			Help: "Total number of cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usd_cache_misses_total",
			Help: "Total number of cache misses",
		}),

		persistenceDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usd_persistence_duration_seconds",
			Help:    "Duration of snapshot writes in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"file"}),

		collectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "usd_collections_total",
			Help: "Collector runs by result",
		}, []string{"result"}),

		recordsCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usd_records_collected_total",
			Help: "Usage records written to the queue",
		}),

		uploadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "usd_uploads_total",
			Help: "Uploader runs by result",
		}, []string{"result"}),

		samplesUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "usd_samples_uploaded_total",
			Help: "Samples acknowledged by the ingestion endpoint",
		}),

		uploadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "usd_upload_duration_seconds",
			Help:    "Duration of ingest requests in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		jobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "usd_job_runs_total",
			Help: "Scheduled job runs by outcome",
		}, []string{"job", "outcome"}),

		pendingSamples: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "usd_pending_samples",
			Help: "Samples waiting to be uploaded",
		}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                     {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration)     {}
func (n *noopMetrics) IncCacheHits()                                        {}
func (n *noopMetrics) IncCacheMisses()                                      {}
func (n *noopMetrics) ObservePersistenceDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCollectionsTotal(_ string)                         {}
func (n *noopMetrics) AddRecordsCollected(_ int)                            {}
func (n *noopMetrics) IncUploadsTotal(_ string)                             {}
func (n *noopMetrics) AddSamplesUploaded(_ int)                             {}
func (n *noopMetrics) ObserveUploadDuration(_ time.Duration)                {}
func (n *noopMetrics) IncJobRuns(_ string, _ string)                        {}
func (n *noopMetrics) SetPendingSamples(_ int)                              {}
