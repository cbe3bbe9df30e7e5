package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantlabs/signalgate/internal/domain"
)

// Registry holds all Prometheus metrics for the decision engine.
type Registry struct {
	Decisions      *prometheus.CounterVec
	DecisionScore  prometheus.Histogram
	TradesClosed   *prometheus.CounterVec
	WinRate        prometheus.Gauge
	ProfitFactor   prometheus.Gauge
	MaxDrawdown    prometheus.Gauge
	PendingTrades  prometheus.Gauge
	OptimizerRuns  *prometheus.CounterVec
	Rollbacks      prometheus.Counter
	ActiveRegime   prometheus.Gauge
	ThresholdValue *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewRegistry creates the metrics registry and registers every metric.
func NewRegistry() *Registry {
	r := &Registry{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_decisions_total",
				Help: "Total signal decisions by outcome",
			},
			[]string{"outcome"},
		),
		DecisionScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalgate_decision_score",
				Help:    "Weighted total score of evaluated signals",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),
		TradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_trades_closed_total",
				Help: "Total closed trades by result",
			},
			[]string{"result"},
		),
		WinRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgate_win_rate",
				Help: "Current win rate over tracked closed trades",
			},
		),
		ProfitFactor: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgate_profit_factor",
				Help: "Current profit factor over tracked closed trades",
			},
		),
		MaxDrawdown: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgate_max_drawdown_pct",
				Help: "Maximum drawdown of the tracked equity curve in percent",
			},
		),
		PendingTrades: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgate_pending_trades",
				Help: "Trades currently open",
			},
		),
		OptimizerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgate_optimizer_runs_total",
				Help: "Optimization runs by trigger",
			},
			[]string{"trigger"},
		),
		Rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signalgate_rollbacks_total",
				Help: "Emergency parameter rollbacks",
			},
		),
		ActiveRegime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgate_active_regime",
				Help: "Active regime (0=normal, 1=volatile, 2=trending, 3=flat)",
			},
		),
		ThresholdValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalgate_threshold_value",
				Help: "Current value of each decision threshold",
			},
			[]string{"threshold"},
		),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(
		r.Decisions, r.DecisionScore, r.TradesClosed,
		r.WinRate, r.ProfitFactor, r.MaxDrawdown, r.PendingTrades,
		r.OptimizerRuns, r.Rollbacks, r.ActiveRegime, r.ThresholdValue,
	)
	return r
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveDecision records one evaluation outcome.
func (r *Registry) ObserveDecision(accepted bool, score float64) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	r.Decisions.WithLabelValues(outcome).Inc()
	r.DecisionScore.Observe(score)
}

// ObserveClose records one closed trade.
func (r *Registry) ObserveClose(isWinner bool) {
	result := "loss"
	if isWinner {
		result = "win"
	}
	r.TradesClosed.WithLabelValues(result).Inc()
}

// UpdatePerformance publishes the current aggregate metrics.
func (r *Registry) UpdatePerformance(m domain.SystemPerformanceMetrics, pending int) {
	r.WinRate.Set(m.WinRate)
	r.ProfitFactor.Set(m.ProfitFactor)
	r.MaxDrawdown.Set(m.MaxDrawdown)
	r.PendingTrades.Set(float64(pending))
}

// UpdateThresholds publishes the active threshold set.
func (r *Registry) UpdateThresholds(ts domain.ThresholdSet) {
	r.ThresholdValue.WithLabelValues("volume_ratio").Set(ts.VolumeRatio)
	r.ThresholdValue.WithLabelValues("rsi_oversold").Set(ts.RSIOversold)
	r.ThresholdValue.WithLabelValues("rsi_overbought").Set(ts.RSIOverbought)
	r.ThresholdValue.WithLabelValues("trend_strength").Set(ts.TrendStrength)
	r.ThresholdValue.WithLabelValues("quality_score").Set(ts.QualityScore)
	r.ThresholdValue.WithLabelValues("momentum_floor").Set(ts.MomentumFloor)
}
