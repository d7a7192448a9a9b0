// Package metrics exposes Prometheus collectors for the ingestion and analytics pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TradesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_ingested_total", Help: "Trades accepted into the trade store"},
		[]string{"symbol"},
	)
	IngestDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ingest_dropped_total", Help: "Trades dropped at the ingestion adapter"},
		[]string{"reason"},
	)
	FeedDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_messages_dropped_total", Help: "Feed messages that could not be parsed"},
		[]string{"reason"},
	)
	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Feed reconnect attempts"},
	)
	BufferSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "store_buffer_size", Help: "Trades currently retained per symbol"},
		[]string{"symbol"},
	)
	AnalyticsTicks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "analytics_ticks_total", Help: "Completed analytics ticks"},
	)
	AnalyticsTickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "analytics_tick_seconds", Help: "Wall time of one analytics tick", Buckets: prometheus.DefBuckets},
	)
	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "analytics_errors_total", Help: "Symbols skipped because reduction failed"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals produced by strategies"},
		[]string{"strategy", "symbol", "type"},
	)
	StrategyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "strategy_errors_total", Help: "Strategy evaluations that failed"},
		[]string{"strategy"},
	)
	SinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sink_errors_total", Help: "Signals a sink failed to persist"},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(
		TradesIngested, IngestDropped, FeedDropped, FeedReconnects, BufferSize,
		AnalyticsTicks, AnalyticsTickSeconds, AnalyticsErrors,
		SignalsTotal, StrategyErrors, SinkErrors,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
