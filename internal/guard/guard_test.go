package guard

import (
	"testing"
	"time"

	"github.com/quantlabs/signalgate/internal/domain"
	"github.com/quantlabs/signalgate/internal/tune"
)

type fakeSource struct {
	record tune.OptimizationRecord
	ok     bool
}

func (f *fakeSource) LastValidated() (tune.OptimizationRecord, bool) {
	return f.record, f.ok
}

func metrics(trades int, winRate, profitFactor float64) domain.SystemPerformanceMetrics {
	return domain.SystemPerformanceMetrics{
		TotalTrades:  trades,
		WinRate:      winRate,
		ProfitFactor: profitFactor,
	}
}

func TestFirstSnapshotBecomesBaseline(t *testing.T) {
	g := New(0.05, nil)

	if v := g.Check(metrics(0, 0, 0)); v.Degraded {
		t.Error("empty snapshot must not set a baseline or degrade")
	}
	if _, ok := g.Baseline(); ok {
		t.Error("baseline must not be set from an empty snapshot")
	}

	if v := g.Check(metrics(30, 0.75, 2.0)); v.Degraded {
		t.Error("baseline-setting snapshot is never degraded")
	}
	baseline, ok := g.Baseline()
	if !ok || baseline.WinRate != 0.75 {
		t.Fatalf("baseline not recorded: %+v ok=%v", baseline, ok)
	}
}

func TestDegradationDetection(t *testing.T) {
	tests := []struct {
		name     string
		current  domain.SystemPerformanceMetrics
		degraded bool
	}{
		{"both metrics dropped", metrics(40, 0.70, 1.8), true},
		{"profit factor only", metrics(40, 0.75, 1.8), true},
		{"win rate only", metrics(40, 0.70, 2.0), true},
		{"within threshold", metrics(40, 0.74, 1.95), false},
		{"improved", metrics(40, 0.80, 2.5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(0.05, nil)
			g.Check(metrics(30, 0.75, 2.0)) // baseline

			v := g.Check(tt.current)
			if v.Degraded != tt.degraded {
				t.Errorf("degraded = %v, want %v (verdict: %+v)", v.Degraded, tt.degraded, v)
			}
		})
	}
}

func TestDegradationRelativeDrops(t *testing.T) {
	g := New(0.05, nil)
	g.Check(metrics(30, 0.75, 2.0))

	v := g.Check(metrics(40, 0.70, 1.8))
	if !v.Degraded {
		t.Fatal("10% profit factor drop and 6.7% win rate drop must degrade")
	}
	if v.ProfitFactorDrop < 0.09 || v.ProfitFactorDrop > 0.11 {
		t.Errorf("profit factor drop = %v, want about 0.10", v.ProfitFactorDrop)
	}
	if v.WinRateDrop < 0.06 || v.WinRateDrop > 0.07 {
		t.Errorf("win rate drop = %v, want about 0.067", v.WinRateDrop)
	}
}

func TestRollbackToLastValidated(t *testing.T) {
	old := tune.DefaultParams()
	old["min_score"] = 0.70
	source := &fakeSource{
		record: tune.OptimizationRecord{
			OldParams:           old,
			NewParams:           tune.DefaultParams(),
			ValidationPassed:    true,
			ExpectedImprovement: 0.05,
			Timestamp:           time.Now(),
		},
		ok: true,
	}

	g := New(0.05, source)
	params := g.RollbackParams()
	if params["min_score"] != 0.70 {
		t.Errorf("rollback must re-apply the validated old parameters, got %v", params["min_score"])
	}
	if !params.InRange() {
		t.Error("rollback result must be a complete in-range vector")
	}
}

func TestRollbackFallsBackToDefaults(t *testing.T) {
	g := New(0.05, &fakeSource{ok: false})
	params := g.RollbackParams()

	defaults := tune.DefaultParams()
	for name, v := range defaults {
		if params[name] != v {
			t.Errorf("parameter %s = %v, want hardcoded default %v", name, params[name], v)
		}
	}
}

func TestResetBaseline(t *testing.T) {
	g := New(0.05, nil)
	g.Check(metrics(30, 0.75, 2.0))

	g.ResetBaseline()
	if v := g.Check(metrics(40, 0.40, 0.8)); v.Degraded {
		t.Error("first snapshot after reset becomes the new baseline")
	}
}
