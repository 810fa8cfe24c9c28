// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trading metrics
	TradesOpened   *prometheus.CounterVec
	TradesClosed   *prometheus.CounterVec
	EntriesSkipped prometheus.Counter
	RealizedPnL    *prometheus.GaugeVec

	// Session metrics
	TicksTotal       *prometheus.CounterVec
	TicksSkipped     prometheus.Counter
	TickErrors       prometheus.Counter
	TickDuration     prometheus.Histogram
	CandlesProcessed prometheus.Counter

	// Account metrics
	Equity        *prometheus.GaugeVec
	Balance       *prometheus.GaugeVec
	Drawdown      *prometheus.GaugeVec
	OpenPositions *prometheus.GaugeVec

	// Exchange metrics
	StreamMessages   prometheus.Counter
	StreamReconnects prometheus.Counter

	// Backtest metrics
	BacktestRunsTotal *prometheus.CounterVec
	BacktestDuration  prometheus.Histogram

	// Health metrics
	LastSuccessfulTick prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "candle_trade_lab"
	}

	return &Metrics{
		// Trading metrics
		TradesOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_opened_total",
			Help:      "Total number of trades opened by mode and strategy",
		}, []string{"mode", "strategy"}),
		TradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_closed_total",
			Help:      "Total number of trades closed by mode, strategy and exit reason",
		}, []string{"mode", "strategy", "reason"}),
		EntriesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "entries_skipped_total",
			Help:      "Total number of actionable signals skipped by sizing or admission",
		}),
		RealizedPnL: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "realized_pnl",
			Help:      "Cumulative realized PnL by run",
		}, []string{"run"}),

		// Session metrics
		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks fired by mode",
		}, []string{"mode"}),
		TicksSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ticks_skipped_total",
			Help:      "Total number of ticks dropped because the previous tick was still running",
		}),
		TickErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "tick_errors_total",
			Help:      "Total number of ticks that failed on fetch or step",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one scheduler tick",
			Buckets:   prometheus.DefBuckets,
		}),
		CandlesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "candles_processed_total",
			Help:      "Total number of closed candles stepped through",
		}),

		// Account metrics
		Equity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "equity",
			Help:      "Current marked equity by run",
		}, []string{"run"}),
		Balance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "balance",
			Help:      "Current cash balance by run",
		}, []string{"run"}),
		Drawdown: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "drawdown",
			Help:      "Current peak-to-balance drawdown fraction by run",
		}, []string{"run"}),
		OpenPositions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "open_positions",
			Help:      "Current number of open positions by run",
		}, []string{"run"}),

		// Exchange metrics
		StreamMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "stream_messages_total",
			Help:      "Total number of kline stream messages received",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "stream_reconnects_total",
			Help:      "Total number of kline stream reconnects",
		}),

		// Backtest metrics
		BacktestRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"status"}),
		BacktestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Duration of one backtest run",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),

		// Health metrics
		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp_seconds",
			Help:      "Unix timestamp of the last tick that completed without error",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTradeOpened increments the trades opened counter.
func RecordTradeOpened(mode, strategy string) {
	DefaultMetrics.TradesOpened.WithLabelValues(mode, strategy).Inc()
}

// RecordTradeClosed increments the trades closed counter.
func RecordTradeClosed(mode, strategy, reason string) {
	DefaultMetrics.TradesClosed.WithLabelValues(mode, strategy, reason).Inc()
}

// RecordTick records one scheduler tick.
func RecordTick(mode string, seconds float64, err bool) {
	DefaultMetrics.TicksTotal.WithLabelValues(mode).Inc()
	DefaultMetrics.TickDuration.Observe(seconds)
	if err {
		DefaultMetrics.TickErrors.Inc()
	}
}

// UpdateAccount updates the per-run account gauges.
func UpdateAccount(run string, balance, equity, drawdown float64, openPositions int) {
	DefaultMetrics.Balance.WithLabelValues(run).Set(balance)
	DefaultMetrics.Equity.WithLabelValues(run).Set(equity)
	DefaultMetrics.Drawdown.WithLabelValues(run).Set(drawdown)
	DefaultMetrics.OpenPositions.WithLabelValues(run).Set(float64(openPositions))
}

// RecordBacktestRun records a backtest run.
func RecordBacktestRun(status string, durationSeconds float64) {
	DefaultMetrics.BacktestRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.BacktestDuration.Observe(durationSeconds)
}

// RecordEntriesSkipped adds signals dropped by sizing or admission.
func RecordEntriesSkipped(n int) {
	if n > 0 {
		DefaultMetrics.EntriesSkipped.Add(float64(n))
	}
}

// RecordRealizedPnL sets the cumulative realized PnL gauge for a run.
func RecordRealizedPnL(run string, total float64) {
	DefaultMetrics.RealizedPnL.WithLabelValues(run).Set(total)
}
