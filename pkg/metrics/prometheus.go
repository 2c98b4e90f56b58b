package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksIngested    *prometheus.CounterVec
	lateDrops        *prometheus.CounterVec
	candlesClosed    *prometheus.CounterVec
	candlesPersisted *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	watermark        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candleflow_ticks_ingested_total",
				Help: "Total number of ticks accepted into aggregation",
			},
			[]string{"symbol"},
		),
		lateDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candleflow_late_drops_total",
				Help: "Ticks that arrived after their bucket closed",
			},
			[]string{"symbol", "timeframe"},
		),
		candlesClosed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candleflow_candles_closed_total",
				Help: "Candles finalized by watermark advance",
			},
			[]string{"symbol", "timeframe"},
		),
		candlesPersisted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candleflow_candles_persisted_total",
				Help: "Closed candles durably written to storage",
			},
			[]string{"symbol", "timeframe"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candleflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "candleflow_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		watermark: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "candleflow_watermark_seconds",
				Help: "Per-symbol watermark as unix seconds",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candleflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTickIngested counts an accepted tick.
func (r *Recorder) RecordTickIngested(symbol string) {
	r.ticksIngested.WithLabelValues(symbol).Inc()
}

// RecordLateDrop counts a tick dropped after bucket closure.
func (r *Recorder) RecordLateDrop(symbol, timeframe string) {
	r.lateDrops.WithLabelValues(symbol, timeframe).Inc()
}

// RecordCandleClosed counts a finalized candle.
func (r *Recorder) RecordCandleClosed(symbol, timeframe string) {
	r.candlesClosed.WithLabelValues(symbol, timeframe).Inc()
}

// RecordCandlePersisted counts a durably written candle.
func (r *Recorder) RecordCandlePersisted(symbol, timeframe string) {
	r.candlesPersisted.WithLabelValues(symbol, timeframe).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordWatermark records the current watermark position for a symbol.
func (r *Recorder) RecordWatermark(symbol string, unixSeconds float64) {
	r.watermark.WithLabelValues(symbol).Set(unixSeconds)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
