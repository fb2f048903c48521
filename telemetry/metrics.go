// Package telemetry holds the Prometheus instruments for the bot.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "axionbot",
			Name:      "commands_total",
			Help:      "Total number of chat commands handled",
		},
		[]string{"command"},
	)

	cacheResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "axionbot",
			Subsystem: "cache",
			Name:      "results_total",
			Help:      "Cache lookup outcomes by kind",
		},
		[]string{"kind", "result"},
	)

	upstreamFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "axionbot",
			Subsystem: "upstream",
			Name:      "fetches_total",
			Help:      "Upstream fetch attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	upstreamFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "axionbot",
			Subsystem: "upstream",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	sendRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "axionbot",
			Subsystem: "telegram",
			Name:      "send_retries_total",
			Help:      "Outbound sends retried with degraded options",
		},
		[]string{"reason"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "axionbot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "axionbot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(
		commandsTotal,
		cacheResultsTotal,
		upstreamFetchesTotal,
		upstreamFetchDuration,
		sendRetriesTotal,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// RecordCommand counts one handled chat command.
func RecordCommand(command string) {
	commandsTotal.WithLabelValues(command).Inc()
}

// RecordCacheResult counts one cache lookup outcome. Kind is "devices" or
// "build"; result is "hit", "miss" or "error".
func RecordCacheResult(kind, result string) {
	cacheResultsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveUpstreamFetch records one upstream fetch attempt.
func ObserveUpstreamFetch(source, outcome string, d time.Duration) {
	upstreamFetchesTotal.WithLabelValues(source, outcome).Inc()
	upstreamFetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordSendRetry counts one degraded-send retry. Reason is "markup" or
// "too_long".
func RecordSendRetry(reason string) {
	sendRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordHTTP records one handled HTTP request.
func RecordHTTP(method, path string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(path).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
