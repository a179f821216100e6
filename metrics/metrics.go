// Package metrics exposes Prometheus collectors for calls to the REST data
// source and for the gateway's subgraph fetches.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spacegraph"

var (
	Registry = prometheus.NewRegistry()

	datasourceRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "datasource",
		Name:      "requests_total",
		Help:      "Requests sent to the REST data source.",
	}, []string{"endpoint", "status"})

	datasourceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "datasource",
		Name:      "request_duration_seconds",
		Help:      "Latency of requests sent to the REST data source.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	subgraphFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "subgraph_fetches_total",
		Help:      "Fetches issued by the gateway to subgraphs.",
	}, []string{"subgraph", "kind", "outcome"})

	subgraphDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "subgraph_fetch_duration_seconds",
		Help:      "Latency of fetches issued by the gateway to subgraphs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"subgraph", "kind"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		datasourceRequests,
		datasourceDuration,
		subgraphFetches,
		subgraphDuration,
	)
}

// ObserveDatasource records one data source request. A zero status means the
// request never got an answer.
func ObserveDatasource(endpoint string, status int, d time.Duration) {
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	datasourceRequests.WithLabelValues(endpoint, label).Inc()
	datasourceDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveSubgraphFetch records one gateway fetch. kind is "root" or "entities".
func ObserveSubgraphFetch(subgraph, kind string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	subgraphFetches.WithLabelValues(subgraph, kind, outcome).Inc()
	subgraphDuration.WithLabelValues(subgraph, kind).Observe(d.Seconds())
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Mount adds /metrics to mux when enabled.
func Mount(mux *http.ServeMux, enabled bool) {
	if enabled {
		mux.Handle("/metrics", Handler())
	}
}
