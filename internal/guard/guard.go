package guard

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quantlabs/signalgate/internal/domain"
	"github.com/quantlabs/signalgate/internal/tune"
)

// RollbackSource supplies the last validated-good optimization result.
type RollbackSource interface {
	LastValidated() (tune.OptimizationRecord, bool)
}

// Verdict is the outcome of one degradation check.
type Verdict struct {
	Degraded         bool    `json:"degraded"`
	ProfitFactorDrop float64 `json:"profit_factor_drop"`
	WinRateDrop      float64 `json:"win_rate_drop"`
	Reason           string  `json:"reason,omitempty"`
}

// Guard detects performance degradation against a recorded baseline and
// produces emergency-rollback parameter sets. Safe for concurrent use.
type Guard struct {
	threshold float64
	source    RollbackSource

	mu          sync.Mutex
	baseline    domain.SystemPerformanceMetrics
	hasBaseline bool
}

// New creates a guard with the given relative degradation threshold (for
// example 0.05 for a 5% drop) and rollback source. A nil source limits
// rollback to hardcoded defaults.
func New(threshold float64, source RollbackSource) *Guard {
	return &Guard{threshold: threshold, source: source}
}

// Check compares current metrics against the baseline. The first snapshot
// with closed trades becomes the baseline and is never degraded by
// definition.
func (g *Guard) Check(current domain.SystemPerformanceMetrics) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasBaseline {
		if current.TotalTrades == 0 {
			return Verdict{}
		}
		g.baseline = current
		g.hasBaseline = true
		log.Info().
			Float64("profit_factor", current.ProfitFactor).
			Float64("win_rate", current.WinRate).
			Msg("Performance baseline recorded")
		return Verdict{}
	}

	v := Verdict{
		ProfitFactorDrop: relativeDrop(g.baseline.ProfitFactor, current.ProfitFactor),
		WinRateDrop:      relativeDrop(g.baseline.WinRate, current.WinRate),
	}
	switch {
	case v.ProfitFactorDrop > g.threshold && v.WinRateDrop > g.threshold:
		v.Degraded = true
		v.Reason = fmt.Sprintf("profit factor down %.1f%%, win rate down %.1f%%",
			v.ProfitFactorDrop*100, v.WinRateDrop*100)
	case v.ProfitFactorDrop > g.threshold:
		v.Degraded = true
		v.Reason = fmt.Sprintf("profit factor down %.1f%% from baseline %.2f",
			v.ProfitFactorDrop*100, g.baseline.ProfitFactor)
	case v.WinRateDrop > g.threshold:
		v.Degraded = true
		v.Reason = fmt.Sprintf("win rate down %.1f%% from baseline %.2f",
			v.WinRateDrop*100, g.baseline.WinRate)
	}

	if v.Degraded {
		log.Warn().
			Str("reason", v.Reason).
			Msg("Performance degradation detected")
	}
	return v
}

// relativeDrop is (baseline - current) / baseline, zero when the baseline is
// non-positive or the metric improved.
func relativeDrop(baseline, current float64) float64 {
	if baseline <= 0 {
		return 0.0
	}
	drop := (baseline - current) / baseline
	if drop < 0 {
		return 0.0
	}
	return drop
}

// Baseline returns the recorded baseline, if one exists.
func (g *Guard) Baseline() (domain.SystemPerformanceMetrics, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.baseline, g.hasBaseline
}

// RestoreBaseline seeds the baseline from a persisted snapshot.
func (g *Guard) RestoreBaseline(baseline domain.SystemPerformanceMetrics) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if baseline.TotalTrades == 0 {
		return
	}
	g.baseline = baseline
	g.hasBaseline = true
}

// ResetBaseline makes the next checked snapshot the new baseline. Called
// after an emergency rollback so recovery is measured against the restored
// parameters.
func (g *Guard) ResetBaseline() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hasBaseline = false
}

// RollbackParams selects the emergency parameter set: the old parameters of
// the last validated-good optimization, or the hardcoded defaults when no
// such record exists. The returned vector is always complete and in range,
// never a partial application.
func (g *Guard) RollbackParams() tune.Params {
	if g.source != nil {
		if record, ok := g.source.LastValidated(); ok {
			params := record.OldParams.Clone()
			if params.InRange() {
				log.Warn().
					Time("optimized_at", record.Timestamp).
					Msg("Emergency rollback to last validated parameters")
				return params
			}
			log.Error().
				Time("optimized_at", record.Timestamp).
				Msg("Last validated parameters out of range, using hardcoded defaults")
		}
	}
	log.Warn().Msg("Emergency rollback to hardcoded default parameters")
	return tune.DefaultParams()
}
