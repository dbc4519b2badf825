// Package metrics exposes Prometheus collectors for the scraping engine and API.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_fetches_total",
			Help: "Total number of fetch calls, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_fetch_bytes_total",
			Help: "Total number of bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	admissionDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_admission_denials_total",
			Help: "Total number of requests refused by the rate governor, labeled by domain.",
		},
		[]string{"domain"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_retries_total",
			Help: "Total number of retried fetch attempts, labeled by reason.",
		},
		[]string{"reason"},
	)

	pacingDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scholar_pacing_delay_seconds",
			Help:    "Histogram of pre-request pacing delays.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	recordsExtractedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_records_extracted_total",
			Help: "Total number of records extracted from fetched pages, labeled by site.",
		},
		[]string{"site"},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_searches_total",
			Help: "Total number of searches, labeled by the deepest state reached.",
		},
		[]string{"path"},
	)

	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_background_refreshes_total",
			Help: "Total number of background refresh passes, labeled by result.",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records the outcome of one Fetch call.
func ObserveFetch(site, outcome string, bytesFetched int) {
	sanitized := SanitizeSite(site)
	fetchesTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveAdmissionDenied counts a request refused by the rate governor.
func ObserveAdmissionDenied(domain string) {
	admissionDenialsTotal.WithLabelValues(strings.ToLower(domain)).Inc()
}

// ObserveRetry counts a retried attempt.
func ObserveRetry(reason string) {
	retriesTotal.WithLabelValues(reason).Inc()
}

// ObservePacingDelay records a pre-request pacing delay.
func ObservePacingDelay(d time.Duration) {
	pacingDelaySeconds.Observe(d.Seconds())
}

// ObserveExtracted counts records extracted from a page.
func ObserveExtracted(site string, n int) {
	if n <= 0 {
		return
	}
	recordsExtractedTotal.WithLabelValues(SanitizeSite(site)).Add(float64(n))
}

// ObserveSearch counts a search by the deepest coordinator state it reached.
func ObserveSearch(path string) {
	searchesTotal.WithLabelValues(path).Inc()
}

// ObserveRefresh counts a background refresh pass.
func ObserveRefresh(result string) {
	refreshesTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
