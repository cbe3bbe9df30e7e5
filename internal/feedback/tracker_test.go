package feedback

import (
	"testing"

	"github.com/quantlabs/signalgate/internal/domain"
)

func closedTrade(pattern string, pnl float64, winner bool) domain.TradeRecord {
	return domain.TradeRecord{
		PatternType: pattern,
		PnLPct:      pnl,
		IsWinner:    winner,
		Status:      domain.TradeClosed,
	}
}

func TestRecordOutcomeAccumulates(t *testing.T) {
	tr := NewTracker()

	tr.RecordOutcome(closedTrade("breakout", 2.0, true), []string{"volume_ratio", "rsi_oversold"})
	tr.RecordOutcome(closedTrade("breakout", -1.0, false), []string{"volume_ratio"})
	tr.RecordOutcome(closedTrade("reversal", 3.0, true), []string{"rsi_oversold"})

	p, ok := tr.PatternStats("breakout")
	if !ok {
		t.Fatal("breakout pattern not tracked")
	}
	if p.TotalSignals != 2 || p.ProfitableSignals != 1 {
		t.Errorf("breakout counts = %d/%d, want 2/1", p.TotalSignals, p.ProfitableSignals)
	}
	if p.WinRate() != 0.5 {
		t.Errorf("breakout win rate = %v, want 0.5", p.WinRate())
	}
	if p.ProfitFactor() != 2.0 {
		t.Errorf("breakout profit factor = %v, want 2.0", p.ProfitFactor())
	}

	f, ok := tr.FilterStats("volume_ratio")
	if !ok || f.TotalSignals != 2 {
		t.Errorf("volume_ratio filter signals = %d, want 2", f.TotalSignals)
	}
	f, _ = tr.FilterStats("rsi_oversold")
	if f.TotalSignals != 2 || f.ProfitableSignals != 2 {
		t.Errorf("rsi_oversold counts = %d/%d, want 2/2", f.TotalSignals, f.ProfitableSignals)
	}
}

func TestProfitFactorEdgeCases(t *testing.T) {
	var p FilterPerformance
	if p.ProfitFactor() != 0.0 {
		t.Error("empty stats must have zero profit factor")
	}

	p.record(5.0, true)
	if p.ProfitFactor() != 999.0 {
		t.Errorf("profit with no loss must saturate, got %v", p.ProfitFactor())
	}
}

func TestWeakestFilters(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 10; i++ {
		tr.RecordOutcome(closedTrade("p", -1.0, false), []string{"weak"})
		tr.RecordOutcome(closedTrade("p", 1.0, true), []string{"strong"})
	}
	// Below the observation minimum, never reported.
	tr.RecordOutcome(closedTrade("p", -1.0, false), []string{"sparse"})

	weak := tr.WeakestFilters(0.5, 5)
	if len(weak) != 1 || weak[0] != "weak" {
		t.Errorf("weakest filters = %v, want [weak]", weak)
	}
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.RecordOutcome(closedTrade("breakout", 2.0, true), []string{"volume_ratio"})

	tr.Reset()
	if _, ok := tr.PatternStats("breakout"); ok {
		t.Error("pattern stats must be gone after reset")
	}
	if len(tr.SnapshotFilters()) != 0 {
		t.Error("filter stats must be gone after reset")
	}
}
