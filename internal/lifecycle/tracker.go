package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantlabs/signalgate/internal/domain"
)

// Invalid-operation sentinels. Callers distinguish these from internal
// failures with errors.Is.
var (
	ErrUnknownTrade  = errors.New("unknown trade id")
	ErrAlreadyClosed = errors.New("trade already closed")
)

const (
	// Snapshot SystemPerformanceMetrics into history every N closed trades.
	snapshotEvery = 100
	// Ring-buffer capacity for metric snapshots; oldest evicted first.
	historyCap = 50
	// Closed trades older than this leave working memory. Aggregate history
	// survives in the snapshot ring.
	defaultRetention = 30 * 24 * time.Hour
)

// OutcomeSink receives every trade that reaches Closed.
type OutcomeSink interface {
	RecordOutcome(trade domain.TradeRecord, filterNames []string)
}

// Tracker owns the Pending to Closed trade lifecycle and the derived
// SystemPerformanceMetrics. All methods are safe for concurrent use.
type Tracker struct {
	sink      OutcomeSink
	retention time.Duration
	now       func() time.Time

	mu          sync.RWMutex
	trades      map[string]*domain.TradeRecord
	filtersByID map[string][]string
	metrics     domain.SystemPerformanceMetrics
	history     []domain.SystemPerformanceMetrics
	closedTotal int
}

// NewTracker creates a lifecycle tracker feeding closed trades to sink. A nil
// sink disables feedback attribution.
func NewTracker(sink OutcomeSink) *Tracker {
	return &Tracker{
		sink:        sink,
		retention:   defaultRetention,
		now:         time.Now,
		trades:      map[string]*domain.TradeRecord{},
		filtersByID: map[string][]string{},
	}
}

// NewTrackerWithClock creates a tracker with an injected clock and retention
// window (tests).
func NewTrackerWithClock(sink OutcomeSink, retention time.Duration, now func() time.Time) *Tracker {
	t := NewTracker(sink)
	t.retention = retention
	t.now = now
	return t
}

// RecordSignalAccepted begins a Pending trade for an accepted signal and
// returns its trade id. The threshold set in effect at entry is captured so
// later feedback attributes to the parameters that produced the trade.
func (t *Tracker) RecordSignalAccepted(symbol string, side domain.Side, pattern string, entryPrice float64, thresholds domain.ThresholdSet, passedFilters []string) (string, error) {
	if !side.Valid() {
		return "", fmt.Errorf("invalid side %q", side)
	}
	if entryPrice <= 0 {
		return "", fmt.Errorf("invalid entry price %.8f", entryPrice)
	}

	id := uuid.NewString()
	rec := &domain.TradeRecord{
		TradeID:     id,
		Symbol:      symbol,
		Side:        side,
		PatternType: pattern,
		EntryPrice:  entryPrice,
		EntryTime:   t.now(),
		Status:      domain.TradePending,
		Thresholds:  thresholds,
	}

	t.mu.Lock()
	t.trades[id] = rec
	if len(passedFilters) > 0 {
		t.filtersByID[id] = append([]string(nil), passedFilters...)
	}
	t.mu.Unlock()

	log.Debug().
		Str("trade_id", id).
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("entry_price", entryPrice).
		Msg("Trade opened")
	return id, nil
}

// RecordTradeOutcome closes a Pending trade exactly once. An unknown id or a
// second completion is rejected without mutating state. pnlPct may be nil, in
// which case it is derived from the side-aware price move.
func (t *Tracker) RecordTradeOutcome(tradeID string, exitPrice float64, isWinner bool, pnlPct *float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.trades[tradeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrade, tradeID)
	}
	if rec.Status == domain.TradeClosed {
		return fmt.Errorf("%w: %s", ErrAlreadyClosed, tradeID)
	}

	closedAt := t.now()
	rec.ExitPrice = exitPrice
	rec.ExitTime = closedAt
	rec.Duration = closedAt.Sub(rec.EntryTime)
	rec.IsWinner = isWinner
	rec.Status = domain.TradeClosed
	if pnlPct != nil {
		rec.PnLPct = *pnlPct
	} else {
		rec.PnLPct = realizedPnLPct(rec.Side, rec.EntryPrice, exitPrice)
	}

	t.closedTotal++
	t.recomputeMetricsLocked(closedAt)
	if t.closedTotal%snapshotEvery == 0 {
		t.snapshotLocked()
	}
	t.evictExpiredLocked(closedAt)

	if t.sink != nil {
		t.sink.RecordOutcome(*rec, t.filtersByID[tradeID])
	}

	log.Info().
		Str("trade_id", tradeID).
		Str("symbol", rec.Symbol).
		Bool("is_winner", isWinner).
		Float64("pnl_pct", rec.PnLPct).
		Dur("duration", rec.Duration).
		Msg("Trade closed")
	return nil
}

// realizedPnLPct computes the side-aware percent return.
func realizedPnLPct(side domain.Side, entry, exit float64) float64 {
	if entry == 0 {
		return 0.0
	}
	if side == domain.Short {
		return (entry - exit) / entry * 100.0
	}
	return (exit - entry) / entry * 100.0
}

// recomputeMetricsLocked rebuilds SystemPerformanceMetrics from the currently
// tracked closed trades. Caller holds mu.
func (t *Tracker) recomputeMetricsLocked(now time.Time) {
	var (
		total, wins, losses int
		totalPnL            float64
		grossProfit         float64
		grossLoss           float64
		durationSum         float64
		equity              float64
		peak                float64
		maxDD               float64
	)

	for _, rec := range t.sortedClosedLocked() {
		total++
		if rec.IsWinner {
			wins++
		} else {
			losses++
		}
		totalPnL += rec.PnLPct
		if rec.PnLPct >= 0 {
			grossProfit += rec.PnLPct
		} else {
			grossLoss += -rec.PnLPct
		}
		durationSum += rec.Duration.Hours()

		equity += rec.PnLPct
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}

	m := domain.SystemPerformanceMetrics{
		TotalTrades:   total,
		WinningTrades: wins,
		LosingTrades:  losses,
		TotalPnLPct:   totalPnL,
		MaxDrawdown:   maxDD,
		LastUpdated:   now,
	}
	if total > 0 {
		m.WinRate = float64(wins) / float64(total)
		m.AvgDurationHours = durationSum / float64(total)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		m.ProfitFactor = 999.0
	}
	t.metrics = m
}

// sortedClosedLocked returns closed trades in exit order so the drawdown
// curve is chronological. Caller holds mu.
func (t *Tracker) sortedClosedLocked() []*domain.TradeRecord {
	closed := make([]*domain.TradeRecord, 0, len(t.trades))
	for _, rec := range t.trades {
		if rec.Status == domain.TradeClosed {
			closed = append(closed, rec)
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ExitTime.Before(closed[j].ExitTime)
	})
	return closed
}

func (t *Tracker) snapshotLocked() {
	t.history = append(t.history, t.metrics)
	if len(t.history) > historyCap {
		t.history = t.history[len(t.history)-historyCap:]
	}
}

// evictExpiredLocked drops closed trades past the retention window. Pending
// trades are never evicted.
func (t *Tracker) evictExpiredLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	for id, rec := range t.trades {
		if rec.Status == domain.TradeClosed && rec.ExitTime.Before(cutoff) {
			delete(t.trades, id)
			delete(t.filtersByID, id)
		}
	}
}

// Metrics returns the current aggregate metrics.
func (t *Tracker) Metrics() domain.SystemPerformanceMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// History returns a copy of the periodic metric snapshots, oldest first.
func (t *Tracker) History() []domain.SystemPerformanceMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.SystemPerformanceMetrics(nil), t.history...)
}

// RestoreHistory seeds the snapshot ring (startup restore), keeping at most
// the ring capacity.
func (t *Tracker) RestoreHistory(history []domain.SystemPerformanceMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	t.history = append([]domain.SystemPerformanceMetrics(nil), history...)
}

// RestoreMetrics seeds the aggregate metrics (startup restore).
func (t *Tracker) RestoreMetrics(m domain.SystemPerformanceMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// Trade returns a copy of one tracked trade.
func (t *Tracker) Trade(tradeID string) (domain.TradeRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.trades[tradeID]
	if !ok {
		return domain.TradeRecord{}, false
	}
	return *rec, true
}

// PendingCount reports how many trades are still open.
func (t *Tracker) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, rec := range t.trades {
		if rec.Status == domain.TradePending {
			n++
		}
	}
	return n
}

// ClosedTotal reports how many trades have ever closed in this process.
func (t *Tracker) ClosedTotal() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closedTotal
}

// ShouldOptimize reports whether an optimization run is due: either degraded
// performance was detected, or the configured interval elapsed with enough
// lifetime closes. The lifetime counter is used so retention eviction cannot
// starve the interval trigger.
func (t *Tracker) ShouldOptimize(state domain.RegulatorState, degraded bool) bool {
	if !state.OptimizationEnabled {
		return false
	}
	if degraded {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	intervalElapsed := t.now().Sub(state.LastOptimizationTime) >= state.OptimizationInterval
	return intervalElapsed && t.closedTotal >= state.MinTradesForOptimization
}
