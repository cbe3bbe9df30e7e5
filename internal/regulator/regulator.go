package regulator

import (
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quantlabs/signalgate/internal/domain"
	"github.com/quantlabs/signalgate/internal/profiles"
	"github.com/quantlabs/signalgate/internal/regime"
)

// AdjustmentSteps are the fixed per-cycle threshold moves. Tightening steps
// are deliberately larger than relaxing steps, biasing the system toward
// caution.
type AdjustmentSteps struct {
	TightenVolumeRatio float64 `yaml:"tighten_volume_ratio"`  // Default: 0.10
	RelaxVolumeRatio   float64 `yaml:"relax_volume_ratio"`    // Default: 0.05
	TightenQuality     float64 `yaml:"tighten_quality"`       // Default: 0.05
	RelaxQuality       float64 `yaml:"relax_quality"`         // Default: 0.02
	TightenRSI         float64 `yaml:"tighten_rsi"`           // Default: 3.0
	RelaxRSI           float64 `yaml:"relax_rsi"`             // Default: 1.0
	HighVolVolumeRatio float64 `yaml:"high_vol_volume_ratio"` // Default: 0.05
	HighVolQuality     float64 `yaml:"high_vol_quality"`      // Default: 0.03
	HighVolRSI         float64 `yaml:"high_vol_rsi"`          // Default: 2.0
}

// DefaultAdjustmentSteps returns the production step sizes.
func DefaultAdjustmentSteps() AdjustmentSteps {
	return AdjustmentSteps{
		TightenVolumeRatio: 0.10,
		RelaxVolumeRatio:   0.05,
		TightenQuality:     0.05,
		RelaxQuality:       0.02,
		TightenRSI:         3.0,
		RelaxRSI:           1.0,
		HighVolVolumeRatio: 0.05,
		HighVolQuality:     0.03,
		HighVolRSI:         2.0,
	}
}

// Quality bands driving the adjustment direction.
const (
	lowWinRate       = 0.60
	highWinRate      = 0.75
	highProfitFactor = 2.0
	highVolCutoff    = 0.08
)

// Proposal carries externally supplied (search-based) threshold values.
// Nil fields mean the search produced no proposal for that key.
type Proposal struct {
	VolumeRatio   *float64 `json:"volume_ratio,omitempty"`
	RSIOversold   *float64 `json:"rsi_oversold,omitempty"`
	RSIOverbought *float64 `json:"rsi_overbought,omitempty"`
	QualityScore  *float64 `json:"quality_score,omitempty"`
}

// Input is everything the regulator needs for one merge cycle.
type Input struct {
	Symbol       string
	Market       domain.MarketConditions
	WinRate      float64
	ProfitFactor float64
	HasMetrics   bool // False until enough closed trades exist
	Proposal     *Proposal
}

// Regulator produces the single ThresholdSet used by the evaluator this tick,
// merging regime defaults, symbol overrides, live quality adjustments, and
// search proposals under a fixed precedence. It never fails: any key that
// degenerates falls back to its last-known-good value.
type Regulator struct {
	adapter *regime.Adapter
	store   *profiles.Store
	bounds  domain.ThresholdBounds
	steps   AdjustmentSteps

	mu       sync.Mutex
	lastGood domain.ThresholdSet
	hasLast  bool
}

// New creates a regulator over the given regime adapter and symbol profile
// store.
func New(adapter *regime.Adapter, store *profiles.Store) *Regulator {
	return &Regulator{
		adapter: adapter,
		store:   store,
		bounds:  domain.DefaultThresholdBounds(),
		steps:   DefaultAdjustmentSteps(),
	}
}

// NewWithSteps creates a regulator with custom adjustment steps.
func NewWithSteps(adapter *regime.Adapter, store *profiles.Store, steps AdjustmentSteps) *Regulator {
	r := New(adapter, store)
	r.steps = steps
	return r
}

// Compute merges all layers into the final clamped ThresholdSet for this
// evaluation cycle.
//
// Precedence, applied per tunable key:
//  1. symbol override > regime default (static layers)
//  2. win-rate/profit-factor adjustment (tighten on low quality, relax
//     slightly only on high quality)
//  3. high-volatility tightening, independent of win rate
//  4. search proposal: stricter-of(current, proposal) while win rate is low,
//     proposal verbatim otherwise
//  5. clamp into declared bounds
func (r *Regulator) Compute(in Input) domain.ThresholdSet {
	marketRegime, base := r.adapter.AdaptToMarket(in.Market)

	if override, ok := r.store.Lookup(in.Symbol); ok {
		base = override.Apply(base)
	}

	ts := base
	lowQuality := in.HasMetrics && in.WinRate < lowWinRate
	highQuality := in.HasMetrics && in.WinRate > highWinRate && in.ProfitFactor > highProfitFactor

	if lowQuality {
		ts.VolumeRatio += r.steps.TightenVolumeRatio
		ts.QualityScore += r.steps.TightenQuality
		ts.RSIOversold -= r.steps.TightenRSI
		ts.RSIOverbought += r.steps.TightenRSI
		log.Info().
			Str("symbol", in.Symbol).
			Float64("win_rate", in.WinRate).
			Msg("Low win rate, tightening thresholds")
	} else if highQuality {
		ts.VolumeRatio -= r.steps.RelaxVolumeRatio
		ts.QualityScore -= r.steps.RelaxQuality
		ts.RSIOversold += r.steps.RelaxRSI
		ts.RSIOverbought -= r.steps.RelaxRSI
		log.Debug().
			Str("symbol", in.Symbol).
			Float64("win_rate", in.WinRate).
			Float64("profit_factor", in.ProfitFactor).
			Msg("High quality, relaxing thresholds slightly")
	}

	if in.Market.Volatility > highVolCutoff {
		ts.VolumeRatio += r.steps.HighVolVolumeRatio
		ts.QualityScore += r.steps.HighVolQuality
		ts.RSIOversold -= r.steps.HighVolRSI
		ts.RSIOverbought += r.steps.HighVolRSI
	}

	if in.Proposal != nil {
		ts = r.mergeProposal(ts, *in.Proposal, lowQuality)
	}

	// NaN anywhere means an upstream input degenerated; substitute the
	// key-wise last-known-good value before clamping so garbage never
	// collapses to the range minimum.
	ts = r.repair(in.Symbol, ts)
	ts = ts.Clamp(r.bounds)
	r.remember(ts)

	log.Debug().
		Str("symbol", in.Symbol).
		Str("regime", marketRegime.String()).
		Float64("volume_ratio", ts.VolumeRatio).
		Float64("quality_score", ts.QualityScore).
		Msg("Threshold set computed")

	return ts
}

// mergeProposal applies the search proposal per key. While the system is
// struggling the proposal may only tighten, never loosen: the stricter of the
// current and proposed value wins. Strictness is key-directional (higher
// volume/quality is stricter; lower RSI oversold is stricter).
func (r *Regulator) mergeProposal(ts domain.ThresholdSet, p Proposal, lowQuality bool) domain.ThresholdSet {
	if p.VolumeRatio != nil {
		ts.VolumeRatio = pick(ts.VolumeRatio, *p.VolumeRatio, lowQuality, math.Max)
	}
	if p.QualityScore != nil {
		ts.QualityScore = pick(ts.QualityScore, *p.QualityScore, lowQuality, math.Max)
	}
	if p.RSIOversold != nil {
		ts.RSIOversold = pick(ts.RSIOversold, *p.RSIOversold, lowQuality, math.Min)
	}
	if p.RSIOverbought != nil {
		ts.RSIOverbought = pick(ts.RSIOverbought, *p.RSIOverbought, lowQuality, math.Max)
	}
	return ts
}

func pick(current, proposed float64, lowQuality bool, stricter func(float64, float64) float64) float64 {
	if lowQuality {
		return stricter(current, proposed)
	}
	return proposed
}

// repair substitutes last-known-good values for any NaN keys.
func (r *Regulator) repair(symbol string, ts domain.ThresholdSet) domain.ThresholdSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasLast {
		return ts
	}
	repaired := false
	fields := []struct {
		value *float64
		last  float64
	}{
		{&ts.VolumeRatio, r.lastGood.VolumeRatio},
		{&ts.RSIOversold, r.lastGood.RSIOversold},
		{&ts.RSIOverbought, r.lastGood.RSIOverbought},
		{&ts.TrendStrength, r.lastGood.TrendStrength},
		{&ts.QualityScore, r.lastGood.QualityScore},
		{&ts.MomentumFloor, r.lastGood.MomentumFloor},
	}
	for _, f := range fields {
		if math.IsNaN(*f.value) {
			*f.value = f.last
			repaired = true
		}
	}
	if repaired {
		log.Warn().
			Str("symbol", symbol).
			Msg("Threshold key degenerated, reusing last-known-good value")
	}
	return ts
}

// remember records the final clamped set as the fallback for the next cycle.
func (r *Regulator) remember(ts domain.ThresholdSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastGood = ts
	r.hasLast = true
}

// Bounds exposes the declared threshold ranges (inspection and tests).
func (r *Regulator) Bounds() domain.ThresholdBounds {
	return r.bounds
}
