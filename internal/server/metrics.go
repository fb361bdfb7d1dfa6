package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. Each Server gets its own registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	uploadsTotal      prometheus.Counter
	uploadBytesTotal  prometheus.Counter
	uploadErrorsTotal prometheus.Counter
	uploadDuration    prometheus.Histogram

	downloadsTotal      prometheus.Counter
	downloadBytesTotal  prometheus.Counter
	downloadErrorsTotal prometheus.Counter
	downloadDuration    prometheus.Histogram

	authFailuresTotal *prometheus.CounterVec
	rateLimitedTotal  prometheus.Counter
	signedURLsTotal   *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics(version, commit string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sft_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sft_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		uploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sft_uploads_total",
			Help: "Total number of accepted uploads",
		}),
		uploadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sft_upload_bytes_total",
			Help: "Bytes accepted by uploads",
		}),
		uploadErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sft_upload_errors_total",
			Help: "Uploads rejected or failed",
		}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sft_upload_duration_seconds",
			Help:    "Time from upload receipt to stored metadata",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		downloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sft_downloads_total",
			Help: "Total number of completed downloads",
		}),
		downloadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sft_download_bytes_total",
			Help: "Bytes served by downloads",
		}),
		downloadErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sft_download_errors_total",
			Help: "Downloads that failed",
		}),
		downloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sft_download_duration_seconds",
			Help:    "Time to stream a download",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		authFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sft_auth_failures_total",
			Help: "Rejected authentication attempts",
		}, []string{"strategy"}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sft_rate_limited_total",
			Help: "Requests refused by the rate limiter",
		}),
		signedURLsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sft_signed_urls_total",
			Help: "Signed URL lifecycle events",
		}, []string{"outcome"}),
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "sft_info",
		Help:        "Application version info",
		ConstLabels: prometheus.Labels{"version": version, "commit": commit},
	})
	info.Set(1)

	m.registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.uploadsTotal, m.uploadBytesTotal, m.uploadErrorsTotal, m.uploadDuration,
		m.downloadsTotal, m.downloadBytesTotal, m.downloadErrorsTotal, m.downloadDuration,
		m.authFailuresTotal, m.rateLimitedTotal, m.signedURLsTotal,
		info,
	)
	registerRuntimeCollectors(m.registry)
	return m
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(route string, statusCode int, d time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordUpload records a successful upload
func (m *Metrics) RecordUpload(bytes int64, d time.Duration) {
	m.uploadsTotal.Inc()
	m.uploadBytesTotal.Add(float64(bytes))
	m.uploadDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordUploadError() { m.uploadErrorsTotal.Inc() }

// RecordDownload records a successful download
func (m *Metrics) RecordDownload(bytes int64, d time.Duration) {
	m.downloadsTotal.Inc()
	m.downloadBytesTotal.Add(float64(bytes))
	m.downloadDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordDownloadError() { m.downloadErrorsTotal.Inc() }

func (m *Metrics) RecordAuthFailure(strategy string) {
	m.authFailuresTotal.WithLabelValues(strategy).Inc()
}

func (m *Metrics) RecordRateLimited() { m.rateLimitedTotal.Inc() }

// RecordSignedURL counts created, used, expired and rejected capabilities.
func (m *Metrics) RecordSignedURL(outcome string) {
	m.signedURLsTotal.WithLabelValues(outcome).Inc()
}

// routePattern keeps label cardinality bounded by using the chi pattern
// instead of the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
