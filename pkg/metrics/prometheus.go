package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	barsTotal     *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	activeZones   *prometheus.GaugeVec
	lastScore     *prometheus.GaugeVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder's collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		barsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketcore_bars_processed_total",
				Help: "Bars processed by the pipeline, by path (slow|fast)",
			},
			[]string{"symbol", "path"},
		),
		rejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketcore_bars_rejected_total",
				Help: "Bars rejected as malformed or out of order",
			},
			[]string{"symbol", "reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketcore_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketcore_last_price",
				Help: "Last close processed for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketcore_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		activeZones: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketcore_active_zones",
				Help: "Active order blocks and fair value gaps after the last closed bar",
			},
			[]string{"symbol"},
		),
		lastScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketcore_confluence_score",
				Help: "Last confluence score evaluated for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

// RecordBar counts a processed bar.
func (r *Recorder) RecordBar(symbol, path string) {
	r.barsTotal.WithLabelValues(symbol, path).Inc()
}

// RecordRejected counts a rejected bar.
func (r *Recorder) RecordRejected(symbol, reason string) {
	r.rejectedTotal.WithLabelValues(symbol, reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordActiveZones(symbol string, n int) {
	r.activeZones.WithLabelValues(symbol).Set(float64(n))
}

func (r *Recorder) RecordScore(symbol string, score int) {
	r.lastScore.WithLabelValues(symbol).Set(float64(score))
}
