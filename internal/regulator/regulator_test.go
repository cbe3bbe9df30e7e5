package regulator

import (
	"math"
	"testing"

	"github.com/quantlabs/signalgate/internal/domain"
	"github.com/quantlabs/signalgate/internal/profiles"
	"github.com/quantlabs/signalgate/internal/regime"
)

func newTestRegulator() *Regulator {
	return New(regime.NewAdapter(), profiles.NewStore())
}

func normalMarket() domain.MarketConditions {
	return domain.MarketConditions{Volatility: 0.04, TrendStrength: 0.40}
}

func TestComputeAlwaysInBounds(t *testing.T) {
	r := newTestRegulator()
	bounds := r.Bounds()

	winRates := []float64{0.0, 0.30, 0.59, 0.60, 0.70, 0.76, 1.0}
	profitFactors := []float64{0.5, 2.1, 5.0}
	volatilities := []float64{0.01, 0.04, 0.09, 0.50}
	extreme := []float64{-100.0, 0.001, 99.0}

	for _, wr := range winRates {
		for _, pf := range profitFactors {
			for _, vol := range volatilities {
				for _, prop := range extreme {
					p := prop
					ts := r.Compute(Input{
						Symbol:       "BTCUSDT",
						Market:       domain.MarketConditions{Volatility: vol, TrendStrength: 0.4},
						WinRate:      wr,
						ProfitFactor: pf,
						HasMetrics:   true,
						Proposal:     &Proposal{VolumeRatio: &p, QualityScore: &p},
					})
					if !ts.InBounds(bounds) {
						t.Fatalf("out of bounds for wr=%v pf=%v vol=%v prop=%v: %+v",
							wr, pf, vol, prop, ts)
					}
				}
			}
		}
	}
}

func TestLowWinRateTightens(t *testing.T) {
	r := newTestRegulator()
	base := r.Compute(Input{Symbol: "BTCUSDT", Market: normalMarket(), HasMetrics: false})

	tight := newTestRegulator().Compute(Input{
		Symbol: "BTCUSDT", Market: normalMarket(),
		WinRate: 0.50, ProfitFactor: 1.0, HasMetrics: true,
	})

	if tight.VolumeRatio <= base.VolumeRatio {
		t.Errorf("volume ratio not tightened: %v vs base %v", tight.VolumeRatio, base.VolumeRatio)
	}
	if tight.QualityScore <= base.QualityScore {
		t.Errorf("quality score not tightened: %v vs base %v", tight.QualityScore, base.QualityScore)
	}
	if tight.RSIOversold >= base.RSIOversold {
		t.Errorf("rsi oversold not tightened: %v vs base %v", tight.RSIOversold, base.RSIOversold)
	}
	if tight.RSIOverbought <= base.RSIOverbought {
		t.Errorf("rsi overbought not tightened: %v vs base %v", tight.RSIOverbought, base.RSIOverbought)
	}
}

func TestRaisingWinRateNeverTightens(t *testing.T) {
	low := newTestRegulator().Compute(Input{
		Symbol: "BTCUSDT", Market: normalMarket(),
		WinRate: 0.55, ProfitFactor: 1.5, HasMetrics: true,
	})
	high := newTestRegulator().Compute(Input{
		Symbol: "BTCUSDT", Market: normalMarket(),
		WinRate: 0.80, ProfitFactor: 2.5, HasMetrics: true,
	})

	if high.VolumeRatio > low.VolumeRatio {
		t.Errorf("volume ratio tighter at high win rate: %v > %v", high.VolumeRatio, low.VolumeRatio)
	}
	if high.QualityScore > low.QualityScore {
		t.Errorf("quality score tighter at high win rate: %v > %v", high.QualityScore, low.QualityScore)
	}
	if high.RSIOversold < low.RSIOversold {
		t.Errorf("rsi oversold tighter at high win rate: %v < %v", high.RSIOversold, low.RSIOversold)
	}
	if high.RSIOverbought > low.RSIOverbought {
		t.Errorf("rsi overbought tighter at high win rate: %v > %v", high.RSIOverbought, low.RSIOverbought)
	}
}

func TestAsymmetricSteps(t *testing.T) {
	steps := DefaultAdjustmentSteps()
	if steps.TightenVolumeRatio <= steps.RelaxVolumeRatio {
		t.Error("volume tighten step must exceed relax step")
	}
	if steps.TightenQuality <= steps.RelaxQuality {
		t.Error("quality tighten step must exceed relax step")
	}
	if steps.TightenRSI <= steps.RelaxRSI {
		t.Error("rsi tighten step must exceed relax step")
	}
}

func TestHighVolatilityTightensIndependently(t *testing.T) {
	// Strong performance would normally relax, but a stressed market must
	// still tighten on top of the relaxed base.
	stressed := newTestRegulator().Compute(Input{
		Symbol:  "BTCUSDT",
		Market:  domain.MarketConditions{Volatility: 0.12, TrendStrength: 0.4},
		WinRate: 0.80, ProfitFactor: 2.5, HasMetrics: true,
	})

	volatileBase := regime.NewAdapter().BaseThresholds(regime.Volatile)
	relaxedVolume := volatileBase.VolumeRatio - DefaultAdjustmentSteps().RelaxVolumeRatio
	if stressed.VolumeRatio <= relaxedVolume {
		t.Errorf("high volatility must tighten volume beyond relaxed base: %v <= %v",
			stressed.VolumeRatio, relaxedVolume)
	}
}

func TestProposalMergeUnderLowWinRate(t *testing.T) {
	looser := 0.2
	stricterOversold := 20.0

	ts := newTestRegulator().Compute(Input{
		Symbol: "BTCUSDT", Market: normalMarket(),
		WinRate: 0.50, ProfitFactor: 1.0, HasMetrics: true,
		Proposal: &Proposal{VolumeRatio: &looser, RSIOversold: &stricterOversold},
	})

	// Low win rate: a loosening volume proposal must lose to the tightened
	// current value (0.5 base + 0.1 tighten step).
	if ts.VolumeRatio != 0.6 {
		t.Errorf("loosening proposal applied under low win rate: volume %v, want 0.6", ts.VolumeRatio)
	}
	// A stricter oversold proposal (lower) must win.
	if ts.RSIOversold != 20.0 {
		t.Errorf("stricter oversold proposal not applied: %v, want 20", ts.RSIOversold)
	}
}

func TestProposalAppliedDirectlyWhenHealthy(t *testing.T) {
	proposed := 0.8
	ts := newTestRegulator().Compute(Input{
		Symbol: "BTCUSDT", Market: normalMarket(),
		WinRate: 0.70, ProfitFactor: 1.8, HasMetrics: true,
		Proposal: &Proposal{VolumeRatio: &proposed},
	})
	if ts.VolumeRatio != 0.8 {
		t.Errorf("healthy system must take proposal directly: %v, want 0.8", ts.VolumeRatio)
	}
}

func TestSymbolOverrideWinsOverRegimeDefault(t *testing.T) {
	vol := 0.9
	store := profiles.NewStoreFromMap(map[string]profiles.Override{
		"BTCUSDT": {VolumeRatio: &vol},
	})
	r := New(regime.NewAdapter(), store)

	ts := r.Compute(Input{Symbol: "BTCUSDT", Market: normalMarket()})
	if ts.VolumeRatio != 0.9 {
		t.Errorf("symbol override not applied: %v, want 0.9", ts.VolumeRatio)
	}

	other := r.Compute(Input{Symbol: "ETHUSDT", Market: normalMarket()})
	if other.VolumeRatio == 0.9 {
		t.Error("override leaked to a different symbol")
	}
}

func TestNaNProposalFallsBackToLastKnownGood(t *testing.T) {
	r := newTestRegulator()

	first := r.Compute(Input{
		Symbol: "BTCUSDT", Market: normalMarket(),
		WinRate: 0.70, ProfitFactor: 1.5, HasMetrics: true,
	})

	bad := math.NaN()
	second := r.Compute(Input{
		Symbol: "BTCUSDT", Market: normalMarket(),
		WinRate: 0.50, ProfitFactor: 1.0, HasMetrics: true,
		Proposal: &Proposal{VolumeRatio: &bad},
	})

	if second.VolumeRatio != first.VolumeRatio {
		t.Errorf("degenerate key must reuse last-known-good %v, got %v",
			first.VolumeRatio, second.VolumeRatio)
	}
}

func TestComputeDeterministic(t *testing.T) {
	in := Input{
		Symbol: "BTCUSDT", Market: normalMarket(),
		WinRate: 0.55, ProfitFactor: 1.2, HasMetrics: true,
	}
	a := newTestRegulator().Compute(in)
	b := newTestRegulator().Compute(in)
	if a != b {
		t.Errorf("same input produced different threshold sets: %+v vs %+v", a, b)
	}
}
