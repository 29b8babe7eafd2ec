package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/elciao/elciao/el-service/httputil"
)

const HTTPSubsystem = "http"

var httpDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 25}

type HTTPRecorder interface {
	RecordHTTPRequest(method string, status int, duration time.Duration, responseLen int)
}

type noopHTTPRecorder struct{}

func (noopHTTPRecorder) RecordHTTPRequest(string, int, time.Duration, int) {}

var NoopHTTPRecorder HTTPRecorder = noopHTTPRecorder{}

// HTTPMetrics tracks the requests served by the JSON-RPC HTTP server.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseBytes   *prometheus.CounterVec
}

var _ HTTPRecorder = (*HTTPMetrics)(nil)

func MakeHTTPMetrics(ns string, factory Factory) HTTPMetrics {
	return HTTPMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: HTTPSubsystem,
			Name:      "requests_total",
			Help:      "Total HTTP requests served",
		}, []string{"method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: HTTPSubsystem,
			Name:      "request_duration_seconds",
			Buckets:   httpDurationBuckets,
			Help:      "Histogram of HTTP request durations",
		}, []string{"method"}),
		responseBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: HTTPSubsystem,
			Name:      "response_bytes_total",
			Help:      "Total bytes of HTTP responses",
		}, []string{"method"}),
	}
}

func (m *HTTPMetrics) RecordHTTPRequest(method string, status int, duration time.Duration, responseLen int) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
	m.responseBytes.WithLabelValues(method).Add(float64(responseLen))
}

func NewHTTPRecordingMiddleware(rec HTTPRecorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := httputil.NewWrappedResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(ww, r)
		rec.RecordHTTPRequest(r.Method, ww.StatusCode, time.Since(start), ww.ResponseLen)
	})
}
