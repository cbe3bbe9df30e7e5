package domain

import (
	"time"
)

// Side identifies the direction of a candidate signal or trade.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Valid reports whether the side is one of the two known directions.
func (s Side) Valid() bool {
	return s == Long || s == Short
}

// MarketConditions carries the market context computed upstream for one
// evaluation cycle. Volatility and trend strength feed regime classification;
// the rest is advisory.
type MarketConditions struct {
	Volatility       float64 `json:"volatility"`
	TrendStrength    float64 `json:"trend_strength"`
	AvgVolumeUSD     float64 `json:"avg_volume_usd"`
	RegimeTag        string  `json:"regime_tag,omitempty"`
	RegimeConfidence float64 `json:"regime_confidence,omitempty"`
}

// FeatureSnapshot is the immutable feature vector for one candidate signal.
// Optional fields use pointers: nil means the upstream indicator did not
// produce a value for this snapshot, which the evaluator treats as neutral.
type FeatureSnapshot struct {
	Symbol          string           `json:"symbol"`
	Side            Side             `json:"side"`
	PatternType     string           `json:"pattern_type"`
	Price           float64          `json:"price"`
	VolumeRatio     float64          `json:"volume_ratio"`
	RSI             float64          `json:"rsi"`
	TrendStr        float64          `json:"trend_strength"`
	Quality         float64          `json:"quality_score"`
	Momentum        *float64         `json:"momentum,omitempty"`
	VolumeProfileOK *bool            `json:"vp_ok,omitempty"`
	VWAPOK          *bool            `json:"vwap_ok,omitempty"`
	Market          MarketConditions `json:"market"`
}

// SystemPerformanceMetrics aggregates realized outcomes over the currently
// tracked closed trades. Recomputed only from Closed records.
type SystemPerformanceMetrics struct {
	TotalTrades      int       `json:"total_trades"`
	WinningTrades    int       `json:"winning_trades"`
	LosingTrades     int       `json:"losing_trades"`
	TotalPnLPct      float64   `json:"total_pnl_pct"`
	WinRate          float64   `json:"win_rate"`
	ProfitFactor     float64   `json:"profit_factor"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	AvgDurationHours float64   `json:"avg_trade_duration_hours"`
	LastUpdated      time.Time `json:"last_updated"`
}

// TradeStatus is the lifecycle state of a tracked trade.
type TradeStatus string

const (
	TradePending TradeStatus = "pending"
	TradeClosed  TradeStatus = "closed"
)

// TradeRecord tracks one accepted signal from dispatch to realized outcome.
// Thresholds holds the ThresholdSet that was in effect at entry so that
// feedback can be attributed to the parameters that produced the trade.
type TradeRecord struct {
	TradeID     string        `json:"trade_id"`
	Symbol      string        `json:"symbol"`
	Side        Side          `json:"side"`
	PatternType string        `json:"pattern_type"`
	EntryPrice  float64       `json:"entry_price"`
	EntryTime   time.Time     `json:"entry_time"`
	ExitPrice   float64       `json:"exit_price,omitempty"`
	ExitTime    time.Time     `json:"exit_time,omitempty"`
	PnLPct      float64       `json:"pnl_pct"`
	Duration    time.Duration `json:"duration"`
	IsWinner    bool          `json:"is_winner"`
	Status      TradeStatus   `json:"status"`
	Thresholds  ThresholdSet  `json:"thresholds"`
}

// RegulatorState is the control-plane configuration and bookkeeping for the
// adaptive loop. LearningMode and OptimizationEnabled are mutually exclusive:
// learning observes without mutating parameters.
type RegulatorState struct {
	IsActive                 bool          `json:"is_active"`
	LearningMode             bool          `json:"learning_mode"`
	OptimizationEnabled      bool          `json:"optimization_enabled"`
	LastOptimizationTime     time.Time     `json:"last_optimization_time"`
	OptimizationInterval     time.Duration `json:"optimization_interval"`
	MinTradesForOptimization int           `json:"min_trades_for_optimization"`
	MaxDailyParameterChange  float64       `json:"max_daily_parameter_change"`
	DegradationThreshold     float64       `json:"degradation_threshold"`
	EmergencyRollbackEnabled bool          `json:"emergency_rollback_enabled"`
}

// DefaultRegulatorState returns the production control-plane defaults.
func DefaultRegulatorState() RegulatorState {
	return RegulatorState{
		IsActive:                 true,
		LearningMode:             false,
		OptimizationEnabled:      true,
		OptimizationInterval:     6 * time.Hour,
		MinTradesForOptimization: 20,
		MaxDailyParameterChange:  0.15,
		DegradationThreshold:     0.05,
		EmergencyRollbackEnabled: true,
	}
}

// ClosedTradeSummary is the shape returned by the external trade-log
// collaborator for optimization lookback queries.
type ClosedTradeSummary struct {
	Symbol        string    `json:"symbol"`
	PnLPct        float64   `json:"pnl_pct"`
	IsWinner      bool      `json:"is_winner"`
	DurationHours float64   `json:"duration_hours"`
	ClosedAt      time.Time `json:"closed_at"`
}
