package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quantlabs/signalgate/internal/config"
	"github.com/quantlabs/signalgate/internal/domain"
	"github.com/quantlabs/signalgate/internal/feedback"
	"github.com/quantlabs/signalgate/internal/gates"
	"github.com/quantlabs/signalgate/internal/guard"
	"github.com/quantlabs/signalgate/internal/lifecycle"
	"github.com/quantlabs/signalgate/internal/metrics"
	"github.com/quantlabs/signalgate/internal/persistence"
	"github.com/quantlabs/signalgate/internal/persistence/postgres"
	"github.com/quantlabs/signalgate/internal/profiles"
	"github.com/quantlabs/signalgate/internal/publish"
	"github.com/quantlabs/signalgate/internal/regime"
	"github.com/quantlabs/signalgate/internal/regulator"
	"github.com/quantlabs/signalgate/internal/tune"
)

// Optimizer is the capability interface for parameter search. Deployments
// without a trade log get the no-op implementation, resolved once at startup.
type Optimizer interface {
	Optimize(ctx context.Context, current tune.Params) (tune.Params, error)
	Records() []tune.OptimizationRecord
	LastValidated() (tune.OptimizationRecord, bool)
}

// NopOptimizer always returns the current parameters unchanged.
type NopOptimizer struct{}

func (NopOptimizer) Optimize(_ context.Context, current tune.Params) (tune.Params, error) {
	return current.Clone(), nil
}
func (NopOptimizer) Records() []tune.OptimizationRecord { return nil }
func (NopOptimizer) LastValidated() (tune.OptimizationRecord, bool) {
	return tune.OptimizationRecord{}, false
}

// Service is the single owner of the adaptive decision loop. It is
// constructed once at process start and handed to all callers; there are no
// package-level instances.
type Service struct {
	cfg config.Config

	adapter   *regime.Adapter
	regulator *regulator.Regulator
	evaluator *gates.Evaluator
	feedback  *feedback.Tracker
	lifecycle *lifecycle.Tracker
	optimizer Optimizer
	guard     *guard.Guard
	gateway   *persistence.Gateway
	registry  *metrics.Registry
	publisher publish.Publisher
	tradeLog  *postgres.TradeLog

	// Degradation-triggered optimizer runs are rate limited so a losing
	// streak cannot thrash the parameter vector.
	degradeLimiter *rate.Limiter

	// mu guards the control-plane state shared between the periodic loop
	// and per-trade callbacks. Evaluation takes a value snapshot under
	// RLock and releases before any scoring work.
	mu     sync.RWMutex
	state  domain.RegulatorState
	params tune.Params
}

// New constructs the service, restoring durable state when a snapshot exists.
func New(cfg config.Config) (*Service, error) {
	store, err := profiles.LoadStore(cfg.State.ProfilesPath)
	if err != nil {
		return nil, err
	}

	adapter := regime.NewAdapter()
	fb := feedback.NewTracker()
	retention := time.Duration(cfg.Regulation.RetentionDays) * 24 * time.Hour
	lc := lifecycle.NewTrackerWithClock(fb, retention, time.Now)
	gateway := persistence.NewGateway(cfg.State.SnapshotPath)

	var opt Optimizer = NopOptimizer{}
	var tradeLog *postgres.TradeLog
	if cfg.TradeLog.DSN != "" {
		tradeLog, err = postgres.Connect(cfg.TradeLog.DSN, cfg.TradeLog.Timeout)
		if err != nil {
			log.Warn().Err(err).Msg("Trade log unavailable, optimizer disabled")
		} else {
			opt = tune.NewOptimizer(tradeLog)
		}
	}

	snap, restored := gateway.Load()
	state := snap.RegulatorState
	state.OptimizationInterval = cfg.Regulation.OptimizationInterval
	state.MinTradesForOptimization = cfg.Regulation.MinTradesForOptimization
	state.DegradationThreshold = cfg.Regulation.DegradationThreshold
	state.EmergencyRollbackEnabled = cfg.Regulation.EmergencyRollbackEnabled
	if cfg.Regulation.LearningMode {
		state.LearningMode = true
		state.OptimizationEnabled = false
	}

	g := guard.New(state.DegradationThreshold, opt)

	s := &Service{
		cfg:            cfg,
		adapter:        adapter,
		regulator:      regulator.New(adapter, store),
		evaluator:      gates.NewEvaluator(),
		feedback:       fb,
		lifecycle:      lc,
		optimizer:      opt,
		guard:          g,
		gateway:        gateway,
		registry:       metrics.NewRegistry(),
		publisher:      publish.Resolve(context.Background(), cfg.Events.RedisAddr),
		tradeLog:       tradeLog,
		degradeLimiter: rate.NewLimiter(rate.Every(10*time.Minute), 1),
	}
	s.state = state
	s.params = snap.CurrentParameters

	if restored {
		lc.RestoreMetrics(snap.CurrentPerformance)
		lc.RestoreHistory(snap.PerformanceHistory)
		g.RestoreBaseline(snap.BaselinePerformance)
	}
	return s, nil
}

// Evaluate scores one candidate signal against the thresholds in effect this
// tick. Pure with respect to service state: evaluation reads a snapshot and
// never blocks on an in-progress optimization cycle.
func (s *Service) Evaluate(snap domain.FeatureSnapshot) gates.Decision {
	s.mu.RLock()
	params := s.params.Clone()
	active := s.state.IsActive
	s.mu.RUnlock()

	r := s.adapter.Classify(snap.Market.Volatility, snap.Market.TrendStrength)
	scoreMult := s.adapter.ScoreMultiplier(r, snap.Market.RegimeConfidence)

	m := s.lifecycle.Metrics()
	in := regulator.Input{
		Symbol:       snap.Symbol,
		Market:       snap.Market,
		WinRate:      m.WinRate,
		ProfitFactor: m.ProfitFactor,
		HasMetrics:   m.TotalTrades > 0,
		Proposal:     proposalFromParams(params, scoreMult),
	}
	ts := s.regulator.Compute(in)

	d := gates.Decision{ThresholdsUsed: ts, Reason: "regulator inactive"}
	if active {
		d = s.evaluator.Evaluate(snap, ts)
	}

	s.registry.ActiveRegime.Set(float64(r))
	s.registry.ObserveDecision(d.Accepted, d.Score)
	s.registry.UpdateThresholds(ts)

	go s.publishDecision(snap, d)
	return d
}

// proposalFromParams maps the optimized parameter vector onto the threshold
// keys it governs, closing the loop from optimizer output back into the
// per-tick merge. The score floor is scaled by the regime's
// confidence-attenuated multiplier before merging.
func proposalFromParams(params tune.Params, scoreMult float64) *regulator.Proposal {
	p := &regulator.Proposal{}
	found := false
	if v, ok := params["volume_ratio_min"]; ok {
		p.VolumeRatio = &v
		found = true
	}
	if v, ok := params["min_score"]; ok {
		scaled := v * scoreMult
		p.QualityScore = &scaled
		found = true
	}
	if !found {
		return nil
	}
	return p
}

func (s *Service) publishDecision(snap domain.FeatureSnapshot, d gates.Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.publisher.PublishDecision(ctx, publish.DecisionEvent{
		Symbol:    snap.Symbol,
		Side:      string(snap.Side),
		Accepted:  d.Accepted,
		Score:     d.Score,
		Reason:    d.Reason,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Debug().Err(err).Msg("Decision event not published")
	}
}

// RecordSignalAccepted begins tracking an accepted, dispatched signal. The
// decision's fully passed checks become the filter names for feedback
// attribution.
func (s *Service) RecordSignalAccepted(symbol string, side domain.Side, pattern string, entryPrice float64, d gates.Decision) (string, error) {
	var passed []string
	for _, c := range d.Checks {
		if c.Score >= 1.0 {
			passed = append(passed, c.Name)
		}
	}
	return s.lifecycle.RecordSignalAccepted(symbol, side, pattern, entryPrice, d.ThresholdsUsed, passed)
}

// RecordTradeOutcome closes a tracked trade and runs the post-close feedback
// chain: metric refresh, degradation check, and (when due) an optimization
// cycle.
func (s *Service) RecordTradeOutcome(ctx context.Context, tradeID string, exitPrice float64, isWinner bool, pnlPct *float64) error {
	if err := s.lifecycle.RecordTradeOutcome(tradeID, exitPrice, isWinner, pnlPct); err != nil {
		return err
	}
	s.registry.ObserveClose(isWinner)

	m := s.lifecycle.Metrics()
	s.registry.UpdatePerformance(m, s.lifecycle.PendingCount())

	if rec, ok := s.lifecycle.Trade(tradeID); ok && s.tradeLog != nil {
		if err := s.tradeLog.InsertClosed(ctx, rec); err != nil {
			log.Warn().Err(err).Str("trade_id", tradeID).Msg("Trade log insert failed")
		}
	}

	verdict := s.guard.Check(m)
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if s.lifecycle.ShouldOptimize(state, verdict.Degraded) {
		trigger := "interval"
		if verdict.Degraded {
			trigger = "degradation"
			if !s.degradeLimiter.Allow() {
				log.Debug().Msg("Degradation optimizer run rate limited")
				return nil
			}
		}
		s.runOptimization(ctx, trigger, verdict.Degraded)
	}
	return nil
}

// runOptimization executes one optimization cycle: search, validate, apply or
// roll back, snapshot.
func (s *Service) runOptimization(ctx context.Context, trigger string, degraded bool) {
	s.mu.RLock()
	state := s.state
	current := s.params.Clone()
	s.mu.RUnlock()

	if state.LearningMode || !state.OptimizationEnabled {
		return
	}
	s.registry.OptimizerRuns.WithLabelValues(trigger).Inc()

	apply := current
	rolledBack := false
	if degraded && state.EmergencyRollbackEnabled {
		// Degraded runs roll back without searching. A proposal computed
		// here would be discarded, and its audit record would carry the
		// degraded vector as the next rollback target.
		apply = s.guard.RollbackParams()
		rolledBack = true
		s.registry.Rollbacks.Inc()
		s.guard.ResetBaseline()
	} else {
		proposed, err := s.optimizer.Optimize(ctx, current)
		if err != nil {
			log.Warn().Err(err).Msg("Optimization run failed")
			return
		}
		if proposed.InRange() {
			apply = proposed
		} else {
			log.Warn().Msg("Proposed parameters out of range, keeping current")
		}
	}

	now := time.Now()
	s.mu.Lock()
	s.params = apply
	s.state.LastOptimizationTime = now
	s.mu.Unlock()

	kind := "optimization"
	var expected float64
	if rolledBack {
		kind = "rollback"
	} else if record, ok := s.optimizer.LastValidated(); ok {
		expected = record.ExpectedImprovement
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.publisher.PublishOptimization(pctx, publish.OptimizationEvent{
			Kind:                kind,
			ValidationPassed:    apply.InRange(),
			ExpectedImprovement: expected,
			Timestamp:           now,
		})
	}()

	if err := s.saveSnapshot(); err != nil {
		log.Warn().Err(err).Msg("Snapshot save failed, retrying next cycle")
	}
}

// saveSnapshot copies state under lock, releases, then serializes. Disk I/O
// never holds the state lock.
func (s *Service) saveSnapshot() error {
	s.mu.RLock()
	state := s.state
	params := s.params.Clone()
	s.mu.RUnlock()

	baseline, _ := s.guard.Baseline()
	return s.gateway.Save(persistence.Snapshot{
		RegulatorState:      state,
		CurrentPerformance:  s.lifecycle.Metrics(),
		BaselinePerformance: baseline,
		PerformanceHistory:  s.lifecycle.History(),
		CurrentParameters:   params,
	})
}

// Run drives the periodic maintenance loop until ctx is cancelled: guard
// check, interval-due optimization, snapshot. Shutdown is graceful: the
// in-flight cycle finishes, then a final snapshot is written.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Regulation.CycleInterval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.cfg.Regulation.CycleInterval).
		Msg("Periodic regulation loop started")

	for {
		select {
		case <-ctx.Done():
			if err := s.saveSnapshot(); err != nil {
				log.Error().Err(err).Msg("Final snapshot save failed")
			}
			log.Info().Msg("Periodic regulation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.cycle(context.Background())
		}
	}
}

// cycle is one periodic pass.
func (s *Service) cycle(ctx context.Context) {
	m := s.lifecycle.Metrics()
	s.registry.UpdatePerformance(m, s.lifecycle.PendingCount())

	verdict := s.guard.Check(m)
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if s.lifecycle.ShouldOptimize(state, verdict.Degraded) {
		trigger := "interval"
		if verdict.Degraded {
			trigger = "degradation"
		}
		s.runOptimization(ctx, trigger, verdict.Degraded)
		return
	}

	if err := s.saveSnapshot(); err != nil {
		log.Warn().Err(err).Msg("Snapshot save failed, retrying next cycle")
	}
}

// SetLearningMode toggles observe-only mode. Enabling it disables
// optimization; the two are mutually exclusive.
func (s *Service) SetLearningMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LearningMode = on
	if on {
		s.state.OptimizationEnabled = false
	}
}

// SetOptimizationEnabled toggles automated tuning. Enabling it leaves
// learning mode.
func (s *Service) SetOptimizationEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.OptimizationEnabled = on
	if on {
		s.state.LearningMode = false
	}
}

// State returns a copy of the control-plane state.
func (s *Service) State() domain.RegulatorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Params returns a copy of the current parameter vector.
func (s *Service) Params() tune.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Clone()
}

// Metrics returns the current aggregate performance.
func (s *Service) Metrics() domain.SystemPerformanceMetrics {
	return s.lifecycle.Metrics()
}

// PendingCount reports open trades.
func (s *Service) PendingCount() int {
	return s.lifecycle.PendingCount()
}

// FeedbackSnapshot returns per-pattern outcome statistics.
func (s *Service) FeedbackSnapshot() map[string]feedback.FilterPerformance {
	return s.feedback.SnapshotPatterns()
}

// Registry exposes the Prometheus metrics registry (HTTP wiring).
func (s *Service) Registry() *metrics.Registry {
	return s.registry
}

// OptimizationRecords returns the optimization audit log.
func (s *Service) OptimizationRecords() []tune.OptimizationRecord {
	return s.optimizer.Records()
}

// Close releases external resources and writes a final snapshot.
func (s *Service) Close() error {
	err := s.saveSnapshot()
	if s.tradeLog != nil {
		if cerr := s.tradeLog.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if cerr := s.publisher.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
