package tune

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantlabs/signalgate/internal/domain"
)

// TradeLog is the external collaborator answering lookback queries over
// closed trades.
type TradeLog interface {
	ClosedTrades(ctx context.Context, lookback time.Duration) ([]domain.ClosedTradeSummary, error)
}

// OptimizationRecord is one append-only entry in the optimization audit log.
// The newest record with ValidationPassed and positive ExpectedImprovement is
// the emergency-rollback target.
type OptimizationRecord struct {
	OldParams           Params    `json:"old_params"`
	NewParams           Params    `json:"new_params"`
	ValidationPassed    bool      `json:"validation_passed"`
	ExpectedImprovement float64   `json:"expected_improvement"`
	Timestamp           time.Time `json:"timestamp"`
}

// Banding cutoffs for the adjustment factor.
const (
	lookbackWindow     = 7 * 24 * time.Hour
	minTrades          = 20
	lowWinRate         = 0.65
	veryHighWinRate    = 0.80
	fewTrades          = 30
	strongComposite    = 0.75
	factorTightenHard  = 1.05
	factorLoosen       = 0.95
	factorHold         = 1.01
	factorTightenSoft  = 1.02
	maxRecordedHistory = 100
)

// Optimizer proposes bounded adjustments to the tunable parameter vector from
// recent realized performance. It never applies anything itself: callers
// validate through the safety guard and schedule runs, so the optimizer never
// self-schedules concurrently.
type Optimizer struct {
	tradeLog TradeLog
	breaker  *gobreaker.CircuitBreaker
	now      func() time.Time

	mu      sync.Mutex
	records []OptimizationRecord
}

// NewOptimizer creates an optimizer over the given trade log. Lookback
// queries run behind a circuit breaker so a failing log degrades to no-op
// runs instead of repeated slow failures.
func NewOptimizer(tradeLog TradeLog) *Optimizer {
	return &Optimizer{
		tradeLog: tradeLog,
		now:      time.Now,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "trade-log",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     120 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Aggregate is the performance summary computed over the lookback window.
type Aggregate struct {
	TradeCount   int
	WinRate      float64
	ProfitFactor float64
	MaxDrawdown  float64
	Sharpe       float64
}

// Composite folds the aggregate into one [0,1] quality score. Win rate and
// profit factor dominate; drawdown and risk-adjusted return temper them.
func (a Aggregate) Composite() float64 {
	pf := math.Min(a.ProfitFactor/3.0, 1.0)
	dd := 1.0 - math.Min(a.MaxDrawdown, 1.0)
	sharpe := math.Min(math.Max(a.Sharpe/2.0, 0.0), 1.0)
	return 0.3*a.WinRate + 0.3*pf + 0.2*dd + 0.2*sharpe
}

// Optimize proposes a new parameter vector from recent performance. With
// insufficient data, or a failing trade log, it returns current unchanged and
// records nothing.
func (o *Optimizer) Optimize(ctx context.Context, current Params) (Params, error) {
	agg, err := o.lookbackAggregate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Trade log unavailable, skipping optimization run")
		return current.Clone(), nil
	}
	if agg.TradeCount < minTrades {
		log.Debug().
			Int("trades", agg.TradeCount).
			Int("required", minTrades).
			Msg("Not enough closed trades to optimize")
		return current.Clone(), nil
	}

	factor := adjustmentFactor(agg)
	registry := Registry()
	proposed := make(Params, len(current))
	for name, value := range current {
		spec, ok := registry[name]
		if !ok {
			proposed[name] = value
			continue
		}
		adjusted := value * factor
		if spec.Direction == TightenDown {
			adjusted = value / factor
		}
		if spec.Integer {
			adjusted = math.Round(adjusted)
		}
		proposed[name] = spec.Bounds.Clamp(adjusted)
	}

	record := OptimizationRecord{
		OldParams:           current.Clone(),
		NewParams:           proposed.Clone(),
		ValidationPassed:    proposed.InRange(),
		ExpectedImprovement: expectedImprovement(agg, factor),
		Timestamp:           o.now(),
	}
	o.appendRecord(record)

	log.Info().
		Float64("factor", factor).
		Float64("win_rate", agg.WinRate).
		Float64("composite", agg.Composite()).
		Bool("validation_passed", record.ValidationPassed).
		Msg("Optimization run completed")
	return proposed, nil
}

// adjustmentFactor derives the single scalar move from win-rate banding.
func adjustmentFactor(agg Aggregate) float64 {
	switch {
	case agg.WinRate < lowWinRate:
		return factorTightenHard
	case agg.WinRate > veryHighWinRate && agg.TradeCount < fewTrades:
		return factorLoosen
	case agg.Composite() > strongComposite:
		return factorHold
	default:
		return factorTightenSoft
	}
}

// expectedImprovement estimates the composite-score gain from the move. A
// loosening move targets throughput, not quality, so it claims only a nominal
// gain.
func expectedImprovement(agg Aggregate, factor float64) float64 {
	if factor < 1.0 {
		return 0.01
	}
	gap := strongComposite - agg.Composite()
	if gap < 0 {
		gap = 0
	}
	return gap * (factor - 1.0) * 10.0
}

// lookbackAggregate queries the trade log through the breaker and folds the
// result into an Aggregate.
func (o *Optimizer) lookbackAggregate(ctx context.Context) (Aggregate, error) {
	result, err := o.breaker.Execute(func() (interface{}, error) {
		return o.tradeLog.ClosedTrades(ctx, lookbackWindow)
	})
	if err != nil {
		return Aggregate{}, err
	}
	trades := result.([]domain.ClosedTradeSummary)

	var (
		wins        int
		grossProfit float64
		grossLoss   float64
		equity      float64
		peak        float64
		maxDD       float64
		sum         float64
		sumSq       float64
	)
	for _, tr := range trades {
		if tr.IsWinner {
			wins++
		}
		if tr.PnLPct >= 0 {
			grossProfit += tr.PnLPct
		} else {
			grossLoss += -tr.PnLPct
		}
		equity += tr.PnLPct
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
		sum += tr.PnLPct
		sumSq += tr.PnLPct * tr.PnLPct
	}

	agg := Aggregate{TradeCount: len(trades), MaxDrawdown: maxDD / 100.0}
	if len(trades) > 0 {
		agg.WinRate = float64(wins) / float64(len(trades))
		mean := sum / float64(len(trades))
		variance := sumSq/float64(len(trades)) - mean*mean
		if variance > 0 {
			agg.Sharpe = mean / math.Sqrt(variance)
		}
	}
	if grossLoss > 0 {
		agg.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		agg.ProfitFactor = 999.0
	}
	return agg, nil
}

func (o *Optimizer) appendRecord(record OptimizationRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	if len(o.records) > maxRecordedHistory {
		o.records = o.records[len(o.records)-maxRecordedHistory:]
	}
}

// Records returns a copy of the optimization audit log, oldest first.
func (o *Optimizer) Records() []OptimizationRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]OptimizationRecord(nil), o.records...)
}

// LastValidated returns the most recent record with passed validation and a
// positive expected improvement, the emergency-rollback target.
func (o *Optimizer) LastValidated() (OptimizationRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.records) - 1; i >= 0; i-- {
		r := o.records[i]
		if r.ValidationPassed && r.ExpectedImprovement > 0 {
			return r, true
		}
	}
	return OptimizationRecord{}, false
}
