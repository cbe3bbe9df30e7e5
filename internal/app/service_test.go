package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlabs/signalgate/internal/config"
	"github.com/quantlabs/signalgate/internal/domain"
	"github.com/quantlabs/signalgate/internal/guard"
	"github.com/quantlabs/signalgate/internal/lifecycle"
	"github.com/quantlabs/signalgate/internal/tune"
)

type fakeTradeLog struct {
	trades []domain.ClosedTradeSummary
}

func (f *fakeTradeLog) ClosedTrades(context.Context, time.Duration) ([]domain.ClosedTradeSummary, error) {
	return f.trades, nil
}

func losingStreak(n int) []domain.ClosedTradeSummary {
	trades := make([]domain.ClosedTradeSummary, 0, n)
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		tr := domain.ClosedTradeSummary{
			Symbol:   "BTCUSDT",
			PnLPct:   -1.5,
			ClosedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if i%3 == 0 {
			tr.IsWinner = true
			tr.PnLPct = 2.0
		}
		trades = append(trades, tr)
	}
	return trades
}

// withRealOptimizer swaps in a tune.Optimizer over a fake trade log, wired as
// the guard's rollback source the same way New does for a live trade log.
func withRealOptimizer(svc *Service, n int) *tune.Optimizer {
	opt := tune.NewOptimizer(&fakeTradeLog{trades: losingStreak(n)})
	svc.optimizer = opt
	svc.guard = guard.New(svc.cfg.Regulation.DegradationThreshold, opt)
	return opt
}

func setParams(svc *Service, p tune.Params) {
	svc.mu.Lock()
	svc.params = p.Clone()
	svc.mu.Unlock()
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.State.SnapshotPath = filepath.Join(dir, "state.json")
	cfg.State.ProfilesPath = filepath.Join(dir, "profiles.yaml")
	return cfg
}

func strongSignal() domain.FeatureSnapshot {
	return domain.FeatureSnapshot{
		Symbol:      "BTCUSDT",
		Side:        domain.Long,
		PatternType: "breakout",
		Price:       50000.0,
		VolumeRatio: 0.8,
		RSI:         25.0,
		TrendStr:    0.75,
		Quality:     0.8,
		Market:      domain.MarketConditions{Volatility: 0.04, TrendStrength: 0.4},
	}
}

func TestServiceFullTradeLoop(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()

	d := svc.Evaluate(strongSignal())
	require.True(t, d.Accepted, "strong signal rejected: %s", d.Reason)
	assert.True(t, d.ThresholdsUsed.InBounds(domain.DefaultThresholdBounds()))

	tradeID, err := svc.RecordSignalAccepted("BTCUSDT", domain.Long, "breakout", 50000.0, d)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.PendingCount())

	ctx := context.Background()
	require.NoError(t, svc.RecordTradeOutcome(ctx, tradeID, 52500.0, true, nil))
	assert.Equal(t, 0, svc.PendingCount())

	m := svc.Metrics()
	assert.Equal(t, 1, m.TotalTrades)
	assert.InDelta(t, 5.0, m.TotalPnLPct, 1e-9)

	// Idempotence guard: the second completion is rejected.
	err = svc.RecordTradeOutcome(ctx, tradeID, 40000.0, false, nil)
	require.ErrorIs(t, err, lifecycle.ErrAlreadyClosed)
	assert.Equal(t, 1, svc.Metrics().TotalTrades)

	// Pattern feedback was attributed on close.
	patterns := svc.FeedbackSnapshot()
	require.Contains(t, patterns, "breakout")
	assert.Equal(t, 1, patterns["breakout"].TotalSignals)
}

func TestServiceStateSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	svc, err := New(cfg)
	require.NoError(t, err)

	d := svc.Evaluate(strongSignal())
	require.True(t, d.Accepted)
	tradeID, err := svc.RecordSignalAccepted("BTCUSDT", domain.Long, "breakout", 50000.0, d)
	require.NoError(t, err)
	require.NoError(t, svc.RecordTradeOutcome(context.Background(), tradeID, 51000.0, true, nil))
	require.NoError(t, svc.Close())

	restarted, err := New(cfg)
	require.NoError(t, err)
	defer restarted.Close()

	m := restarted.Metrics()
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, svc.Params(), restarted.Params())
}

func TestServiceModeToggles(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()

	svc.SetLearningMode(true)
	state := svc.State()
	assert.True(t, state.LearningMode)
	assert.False(t, state.OptimizationEnabled, "learning mode must disable optimization")

	svc.SetOptimizationEnabled(true)
	state = svc.State()
	assert.True(t, state.OptimizationEnabled)
	assert.False(t, state.LearningMode, "enabling optimization must leave learning mode")
}

func TestDegradedRunRollsBackToLastAppliedValidated(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()
	opt := withRealOptimizer(svc, 40)

	// One healthy interval run from a distinctive vector seeds the audit
	// log with an applied, validated record.
	healthy := tune.DefaultParams()
	healthy["min_score"] = 0.70
	setParams(svc, healthy)
	svc.runOptimization(context.Background(), "interval", false)
	require.Len(t, opt.Records(), 1)
	require.Greater(t, svc.Params()["min_score"], 0.70, "low win rate must tighten")

	// The vector in effect when degradation strikes must not survive the
	// emergency run, and the run must not search.
	degraded := tune.DefaultParams()
	degraded["min_score"] = 0.52
	setParams(svc, degraded)
	svc.runOptimization(context.Background(), "degradation", true)

	assert.InDelta(t, 0.70, svc.Params()["min_score"], 1e-9,
		"rollback must restore the pre-run vector of the last validated record")
	assert.Len(t, opt.Records(), 1, "emergency run must not append an audit record")
}

func TestDegradedRunWithEmptyAuditLogRestoresDefaults(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()
	opt := withRealOptimizer(svc, 40)

	degraded := tune.DefaultParams()
	degraded["min_score"] = 0.52
	setParams(svc, degraded)
	svc.runOptimization(context.Background(), "degradation", true)

	assert.InDelta(t, tune.DefaultParams()["min_score"], svc.Params()["min_score"], 1e-9,
		"no validated record means rollback to hardcoded defaults")
	assert.Empty(t, opt.Records())
}

func TestServiceUnknownTradeRejected(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()

	err = svc.RecordTradeOutcome(context.Background(), "no-such-trade", 100.0, true, nil)
	require.ErrorIs(t, err, lifecycle.ErrUnknownTrade)
}
