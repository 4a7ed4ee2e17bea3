// Package metrics holds the Prometheus collectors for scans, provider calls
// and position reviews. Collectors live on a private registry served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wheelhouse"

var Registry = prometheus.NewRegistry()

var (
	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Market data requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_seconds",
		Help:      "Market data request latency including rate limiter wait.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	EnrichSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrich_skipped_total",
		Help:      "Quotes rejected at enrichment by reason.",
	}, []string{"reason"})

	StepRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_step_removed_total",
		Help:      "Rows removed by each filter step.",
	}, []string{"strategy", "step"})

	ScanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Wall time of a full multi-ticker scan.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"strategy"})

	ScanOpportunities = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scan_opportunities",
		Help:      "Opportunities returned by the latest scan.",
	}, []string{"strategy"})

	TickerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_ticker_failures_total",
		Help:      "Tickers that produced no data during a scan.",
	}, []string{"strategy"})

	Recommendations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "position_recommendations_total",
		Help:      "Position recommendations by action.",
	}, []string{"action"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ProviderRequests,
		ProviderLatency,
		EnrichSkipped,
		StepRemoved,
		ScanDuration,
		ScanOpportunities,
		TickerFailures,
		Recommendations,
	)
}

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
