// ABOUTME: Prometheus collectors for uploads, served sounds and HTTP requests
// ABOUTME: Implements sound.Recorder and wraps handlers with request counters

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/coven-chime/internal/sound"
)

// Metrics holds all Prometheus metrics for the chime service.
type Metrics struct {
	// Upload metrics
	UploadsTotal  *prometheus.CounterVec // coven_chime_uploads_total{reason}
	UploadedBytes prometheus.Counter     // coven_chime_uploaded_bytes_total

	// Serve metrics
	ServesTotal *prometheus.CounterVec // coven_chime_serves_total{status}
	ServedBytes prometheus.Counter     // coven_chime_served_bytes_total

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec   // coven_chime_http_requests_total{route,status}
	RequestDuration *prometheus.HistogramVec // coven_chime_http_request_duration_seconds{route}

	gatherer prometheus.Gatherer
}

var _ sound.Recorder = (*Metrics)(nil)

// New registers the collectors with registry. A nil registry uses a fresh
// prometheus.Registry so repeated construction in tests never collides.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coven_chime_uploads_total",
			Help: "Upload attempts by outcome reason (ok for success)",
		}, []string{"reason"}),

		UploadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "coven_chime_uploaded_bytes_total",
			Help: "Total bytes stored by successful uploads",
		}),

		ServesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coven_chime_serves_total",
			Help: "Sound responses by HTTP status",
		}, []string{"status"}),

		ServedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "coven_chime_served_bytes_total",
			Help: "Total sound bytes written to clients",
		}),

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coven_chime_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coven_chime_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		gatherer: registry,
	}
}

// ObserveUpload records an upload outcome.
func (m *Metrics) ObserveUpload(reason sound.Reason, size int64) {
	label := string(reason)
	if reason == sound.ReasonNone {
		label = "ok"
		m.UploadedBytes.Add(float64(size))
	}
	m.UploadsTotal.WithLabelValues(label).Inc()
}

// ObserveServe records a sound response.
func (m *Metrics) ObserveServe(status int, size int64) {
	m.ServesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	if size > 0 {
		m.ServedBytes.Add(float64(size))
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps next, counting requests under the route label.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.RequestsTotal.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
