package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal      *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	signalsTotal    *prometheus.CounterVec
	ordersTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	dailyPnL        prometheus.Gauge
	breakerTripped  prometheus.Gauge
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	sessionState    *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_ticks_total",
				Help: "Total number of market ticks ingested",
			},
			[]string{"symbol"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepulse_last_price",
				Help: "Last recorded trade price for a symbol",
			},
			[]string{"symbol"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_signals_total",
				Help: "Signals produced by strategy and action",
			},
			[]string{"strategy", "action"},
		),
		ordersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_orders_total",
				Help: "Orders submitted to the broker",
			},
			[]string{"symbol", "side"},
		),
		rejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_rejections_total",
				Help: "Pre-trade risk rejections by reason",
			},
			[]string{"reason"},
		),
		dailyPnL: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradepulse_daily_pnl",
				Help: "Equity delta versus start of day",
			},
		),
		breakerTripped: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradepulse_circuit_breaker_tripped",
				Help: "1 when the daily-loss circuit breaker has tripped",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sessionState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepulse_session_state",
				Help: "1 for the current session state, 0 otherwise",
			},
			[]string{"state"},
		),
	}
}

func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordSignal(strategy, action string) {
	r.signalsTotal.WithLabelValues(strategy, action).Inc()
}

func (r *Recorder) RecordOrder(symbol, side string) {
	r.ordersTotal.WithLabelValues(symbol, side).Inc()
}

func (r *Recorder) RecordRejection(reason string) {
	r.rejectionsTotal.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordDailyPnL(v float64) {
	r.dailyPnL.Set(v)
}

func (r *Recorder) RecordBreaker(tripped bool) {
	if tripped {
		r.breakerTripped.Set(1)
	} else {
		r.breakerTripped.Set(0)
	}
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSessionState(state string) {
	r.sessionState.Reset()
	r.sessionState.WithLabelValues(state).Set(1)
}
