package feedback

import (
	"sort"
	"sync"

	"github.com/quantlabs/signalgate/internal/domain"
)

// FilterPerformance accumulates realized outcomes for one filter or pattern
// key. Counters are incremental; derived ratios are computed on read.
type FilterPerformance struct {
	TotalSignals      int     `json:"total_signals"`
	ProfitableSignals int     `json:"profitable_signals"`
	TotalProfit       float64 `json:"total_profit"`
	TotalLoss         float64 `json:"total_loss"`
}

// WinRate is profitable over total signals, zero before any signal.
func (p FilterPerformance) WinRate() float64 {
	if p.TotalSignals == 0 {
		return 0.0
	}
	return float64(p.ProfitableSignals) / float64(p.TotalSignals)
}

// ProfitFactor is gross profit over gross loss. With profit and no loss it
// saturates high rather than dividing by zero.
func (p FilterPerformance) ProfitFactor() float64 {
	if p.TotalLoss == 0 {
		if p.TotalProfit > 0 {
			return 999.0
		}
		return 0.0
	}
	return p.TotalProfit / p.TotalLoss
}

func (p *FilterPerformance) record(pnlPct float64, isWinner bool) {
	p.TotalSignals++
	if isWinner {
		p.ProfitableSignals++
	}
	if pnlPct >= 0 {
		p.TotalProfit += pnlPct
	} else {
		p.TotalLoss += -pnlPct
	}
}

// Tracker maintains rolling per-filter and per-pattern outcome statistics.
// Updates are incremental; a full recompute happens only on explicit Reset.
type Tracker struct {
	mu        sync.RWMutex
	byFilter  map[string]*FilterPerformance
	byPattern map[string]*FilterPerformance
}

// NewTracker creates an empty feedback tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byFilter:  map[string]*FilterPerformance{},
		byPattern: map[string]*FilterPerformance{},
	}
}

// RecordOutcome attributes one closed trade to its pattern and to every
// filter named in filterNames (the checks that passed at entry).
func (t *Tracker) RecordOutcome(trade domain.TradeRecord, filterNames []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if trade.PatternType != "" {
		t.upsert(t.byPattern, trade.PatternType).record(trade.PnLPct, trade.IsWinner)
	}
	for _, name := range filterNames {
		t.upsert(t.byFilter, name).record(trade.PnLPct, trade.IsWinner)
	}
}

func (t *Tracker) upsert(m map[string]*FilterPerformance, key string) *FilterPerformance {
	if p, ok := m[key]; ok {
		return p
	}
	p := &FilterPerformance{}
	m[key] = p
	return p
}

// FilterStats returns a copy of the stats for one filter.
func (t *Tracker) FilterStats(name string) (FilterPerformance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byFilter[name]
	if !ok {
		return FilterPerformance{}, false
	}
	return *p, true
}

// PatternStats returns a copy of the stats for one pattern type.
func (t *Tracker) PatternStats(pattern string) (FilterPerformance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byPattern[pattern]
	if !ok {
		return FilterPerformance{}, false
	}
	return *p, true
}

// SnapshotFilters returns copies of all per-filter stats keyed by name.
func (t *Tracker) SnapshotFilters() map[string]FilterPerformance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]FilterPerformance, len(t.byFilter))
	for name, p := range t.byFilter {
		out[name] = *p
	}
	return out
}

// SnapshotPatterns returns copies of all per-pattern stats keyed by pattern.
func (t *Tracker) SnapshotPatterns() map[string]FilterPerformance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]FilterPerformance, len(t.byPattern))
	for pattern, p := range t.byPattern {
		out[pattern] = *p
	}
	return out
}

// WeakestFilters returns filter names with win rate below cutoff and at least
// minSignals observations, worst first. Used for operator reporting.
func (t *Tracker) WeakestFilters(cutoff float64, minSignals int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var weak []string
	for name, p := range t.byFilter {
		if p.TotalSignals >= minSignals && p.WinRate() < cutoff {
			weak = append(weak, name)
		}
	}
	sort.Slice(weak, func(i, j int) bool {
		wi, wj := t.byFilter[weak[i]].WinRate(), t.byFilter[weak[j]].WinRate()
		if wi != wj {
			return wi < wj
		}
		return weak[i] < weak[j]
	})
	return weak
}

// Reset discards all accumulated statistics.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byFilter = map[string]*FilterPerformance{}
	t.byPattern = map[string]*FilterPerformance{}
}
