package regime

import (
	"math"

	"github.com/quantlabs/signalgate/internal/domain"
)

// Regime is the coarse market-condition classification used to select a base
// threshold profile.
type Regime int

const (
	Normal Regime = iota
	Volatile
	Trending
	Flat
)

func (r Regime) String() string {
	switch r {
	case Volatile:
		return "volatile"
	case Trending:
		return "trending"
	case Flat:
		return "flat"
	default:
		return "normal"
	}
}

// Breakpoints are the fixed classification cutoffs. Volatility is checked
// before trend strength, so a volatile trending market classifies as volatile.
type Breakpoints struct {
	VolatileAbove float64 `yaml:"volatile_above"` // Default: 0.08
	TrendingAbove float64 `yaml:"trending_above"` // Default: 0.70
	FlatBelow     float64 `yaml:"flat_below"`     // Default: 0.02
}

// DefaultBreakpoints returns the production classification cutoffs.
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{
		VolatileAbove: 0.08,
		TrendingAbove: 0.70,
		FlatBelow:     0.02,
	}
}

// Adapter classifies market conditions into a regime and supplies the curated
// base ThresholdSet for that regime. Pure: no side effects, safe for
// concurrent use.
type Adapter struct {
	breakpoints Breakpoints
	profiles    map[Regime]domain.ThresholdSet
}

// NewAdapter creates an adapter with default breakpoints and base profiles.
func NewAdapter() *Adapter {
	return &Adapter{
		breakpoints: DefaultBreakpoints(),
		profiles:    defaultProfiles(),
	}
}

// NewAdapterWithBreakpoints creates an adapter with custom cutoffs.
func NewAdapterWithBreakpoints(bp Breakpoints) *Adapter {
	return &Adapter{
		breakpoints: bp,
		profiles:    defaultProfiles(),
	}
}

// defaultProfiles returns the curated per-regime base thresholds. Each regime
// carries its own full set, not a multiplier on normal.
func defaultProfiles() map[Regime]domain.ThresholdSet {
	return map[Regime]domain.ThresholdSet{
		Normal: {
			VolumeRatio:   0.5,
			RSIOversold:   30.0,
			RSIOverbought: 70.0,
			TrendStrength: 0.6,
			QualityScore:  0.7,
			MomentumFloor: 0.0,
		},
		Volatile: {
			VolumeRatio:   0.4,
			RSIOversold:   25.0, // Deeper RSI levels to skip noise
			RSIOverbought: 75.0,
			TrendStrength: 0.5,
			QualityScore:  0.65,
			MomentumFloor: -1.0,
		},
		Trending: {
			VolumeRatio:   0.6,
			RSIOversold:   35.0,
			RSIOverbought: 65.0,
			TrendStrength: 0.75, // Demand a confirmed trend
			QualityScore:  0.75,
			MomentumFloor: 0.5,
		},
		Flat: {
			VolumeRatio:   0.3,
			RSIOversold:   20.0,
			RSIOverbought: 80.0,
			TrendStrength: 0.4,
			QualityScore:  0.6,
			MomentumFloor: -2.0,
		},
	}
}

// scoreMultipliers scale quality-score floors per regime: volatile markets
// demand more, trending markets slightly less.
var scoreMultipliers = map[Regime]float64{
	Normal:   1.00,
	Volatile: 1.10,
	Trending: 0.95,
	Flat:     1.05,
}

// ScoreMultiplier returns the regime's score multiplier attenuated by
// classification confidence in [0,1]. Zero confidence means no adjustment.
func (a *Adapter) ScoreMultiplier(r Regime, confidence float64) float64 {
	m, ok := scoreMultipliers[r]
	if !ok {
		return 1.0
	}
	if math.IsNaN(confidence) || confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return 1.0 + (m-1.0)*confidence
}

// Classify maps volatility and trend strength onto the closed regime set.
// NaN inputs fall back to Normal.
func (a *Adapter) Classify(volatility, trendStrength float64) Regime {
	if math.IsNaN(volatility) || math.IsNaN(trendStrength) {
		return Normal
	}
	switch {
	case volatility > a.breakpoints.VolatileAbove:
		return Volatile
	case trendStrength > a.breakpoints.TrendingAbove:
		return Trending
	case volatility < a.breakpoints.FlatBelow:
		return Flat
	default:
		return Normal
	}
}

// BaseThresholds returns the curated base ThresholdSet for a regime.
func (a *Adapter) BaseThresholds(r Regime) domain.ThresholdSet {
	if profile, ok := a.profiles[r]; ok {
		return profile
	}
	return a.profiles[Normal]
}

// AdaptToMarket classifies the given conditions and returns both the regime
// and its base thresholds in one call.
func (a *Adapter) AdaptToMarket(cond domain.MarketConditions) (Regime, domain.ThresholdSet) {
	r := a.Classify(cond.Volatility, cond.TrendStrength)
	return r, a.BaseThresholds(r)
}
