// Package reconcile detects trades the event source has gone silent on
// and synthesizes a best-effort catch-up update from the last known
// market-implied price.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradepulse/internal/event"
	"tradepulse/internal/logger"
	"tradepulse/internal/observ"
	"tradepulse/internal/projector"
	"tradepulse/internal/scheduler"
	"tradepulse/internal/store"
)

// ErrStaleQuote means no recent organic update exists anywhere in the
// store, so no implied price can be derived. The cycle aborts cleanly.
var ErrStaleQuote = errors.New("reconcile: no recent organic update to derive a price from")

// Config tunes the reconciliation loop.
type Config struct {
	Interval       time.Duration
	Staleness      time.Duration
	QuoteMaxAge    time.Duration
	Confidence     float64
	OpTimeout      time.Duration
	RunImmediately bool
}

// impliedQuote is the market price reverse-solved from the most recent
// organic MFE update anywhere in the store.
type impliedQuote struct {
	Price       float64
	At          time.Time
	SourceTrade string
}

// Service is the reconciliation scheduler: one cycle per tick, per-trade
// failure isolation inside the cycle.
type Service struct {
	store   store.EventStore
	proj    *projector.Projector
	cfg     Config
	metrics *observ.Metrics
	nowFn   func() time.Time
}

func NewService(st store.EventStore, proj *projector.Projector, cfg Config, metrics *observ.Metrics) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 120 * time.Second
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = 2 * time.Minute
	}
	if cfg.QuoteMaxAge <= 0 {
		cfg.QuoteMaxAge = 10 * time.Minute
	}
	if cfg.Confidence <= 0 || cfg.Confidence > 1 {
		cfg.Confidence = 0.5
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &Service{store: st, proj: proj, cfg: cfg, metrics: metrics, nowFn: time.Now}
}

// Run blocks until ctx is cancelled, executing one cycle per interval.
// A failed cycle is logged and retried at the next tick.
func (s *Service) Run(ctx context.Context) error {
	loop := scheduler.Interval{Every: s.cfg.Interval, RunImmediately: s.cfg.RunImmediately}
	loop.Run(ctx, "reconcile", func(tickCtx context.Context) {
		if s.metrics != nil {
			s.metrics.ReconcileCycles.Inc()
		}
		if err := s.RunCycle(tickCtx); err != nil {
			if errors.Is(err, ErrStaleQuote) {
				logger.Infof("reconcile: cycle skipped: %v", err)
				return
			}
			logger.Warnf("reconcile: cycle failed, will retry next tick: %v", err)
		}
	})
	return nil
}

// RunCycle executes one reconciliation pass: derive implied price, find
// stale trades, synthesize one update each, audit every attempt.
func (s *Service) RunCycle(ctx context.Context) error {
	quote, err := s.impliedPrice(ctx)
	if err != nil {
		return err
	}
	now := s.nowFn().UTC()
	cutoff := now.Add(-s.cfg.Staleness)

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	staleIDs, err := s.store.StaleActiveTradeIDs(opCtx, cutoff)
	cancel()
	if err != nil {
		return fmt.Errorf("find stale trades: %w", err)
	}
	if len(staleIDs) == 0 {
		logger.Debugf("reconcile: no stale trades (cutoff=%s)", cutoff.Format(time.RFC3339))
		return nil
	}
	logger.Infof("reconcile: %d stale trade(s), implied_price=%.4f source_trade=%s quote_age=%s",
		len(staleIDs), quote.Price, quote.SourceTrade, now.Sub(quote.At).Truncate(time.Second))

	for _, id := range staleIDs {
		if id == quote.SourceTrade {
			// The quote source just updated; it cannot be stale and
			// synthesizing from its own number would be circular.
			continue
		}
		if err := s.reconcileTrade(ctx, id, quote, now); err != nil {
			if s.metrics != nil {
				s.metrics.ReconcileFailures.Inc()
			}
			logger.Warnf("reconcile: trade=%s failed: %v", id, err)
		}
	}
	return nil
}

// impliedPrice reverse-solves price = entry ± mfe × risk from the most
// recent organic MFE update and its own trade's projected entry/risk.
func (s *Service) impliedPrice(ctx context.Context) (impliedQuote, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	latest, ok, err := s.store.LatestOrganicMFEUpdate(opCtx)
	cancel()
	if err != nil {
		return impliedQuote{}, fmt.Errorf("latest organic update: %w", err)
	}
	if !ok {
		return impliedQuote{}, ErrStaleQuote
	}
	age := s.nowFn().UTC().Sub(latest.Timestamp)
	if age > s.cfg.QuoteMaxAge {
		return impliedQuote{}, fmt.Errorf("%w (last update %s ago)", ErrStaleQuote, age.Truncate(time.Second))
	}
	var mfe float64
	switch {
	case latest.NoBeMFE != nil:
		mfe = *latest.NoBeMFE
	case latest.BeMFE != nil:
		mfe = *latest.BeMFE
	default:
		return impliedQuote{}, fmt.Errorf("%w (update carries no MFE value)", ErrStaleQuote)
	}

	opCtx, cancel = context.WithTimeout(ctx, s.cfg.OpTimeout)
	events, err := s.store.ListEventsByTrade(opCtx, latest.TradeID)
	cancel()
	if err != nil {
		return impliedQuote{}, fmt.Errorf("load quote-source trade %s: %w", latest.TradeID, err)
	}
	state, err := s.proj.Project(latest.TradeID, events)
	if err != nil {
		return impliedQuote{}, fmt.Errorf("project quote-source trade %s: %w", latest.TradeID, err)
	}
	if state.EntryPrice <= 0 || state.RiskDistance <= 0 || state.Direction == event.DirectionOther {
		return impliedQuote{}, fmt.Errorf("%w (quote-source trade %s lacks entry/risk)", ErrStaleQuote, latest.TradeID)
	}
	price := projector.ImpliedPrice(state.EntryPrice, state.RiskDistance, mfe, state.Direction)
	if price <= 0 {
		return impliedQuote{}, fmt.Errorf("%w (implied price is non-positive)", ErrStaleQuote)
	}
	return impliedQuote{Price: price, At: latest.Timestamp, SourceTrade: latest.TradeID}, nil
}

// reconcileTrade synthesizes one reduced-confidence MFE update for a
// stale trade and records the audit row either way.
func (s *Service) reconcileTrade(ctx context.Context, tradeID string, quote impliedQuote, now time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	events, err := s.store.ListEventsByTrade(opCtx, tradeID)
	cancel()
	if err != nil {
		s.audit(ctx, tradeID, now, quote, 0, false, err)
		return err
	}
	state, err := s.proj.Project(tradeID, events)
	if err != nil {
		s.audit(ctx, tradeID, now, quote, 0, false, err)
		return err
	}
	if state.Status.Terminal() {
		return nil
	}
	if state.EntryPrice <= 0 || state.RiskDistance <= 0 || state.Direction == event.DirectionOther {
		err := fmt.Errorf("trade %s lacks entry/stop, cannot synthesize", tradeID)
		s.audit(ctx, tradeID, now, quote, 0, false, err)
		return err
	}

	r := projector.ExcursionR(state.EntryPrice, state.RiskDistance, quote.Price, state.Direction)
	noBe := maxOf(state.NoBeMFE, r)
	be := state.BeMFE
	if !state.BeTriggered {
		be = maxOf(state.BeMFE, r)
	}
	mae := state.MAE
	if r < 0 {
		mae = maxOf(state.MAE, -r)
	}

	ev := event.Event{
		EventID:    uuid.NewString(),
		TradeID:    tradeID,
		Type:       event.TypeMFEUpdate,
		Timestamp:  now,
		Direction:  state.Direction,
		Session:    state.Session,
		BeMFE:      &be,
		NoBeMFE:    &noBe,
		MAE:        &mae,
		Confidence: s.cfg.Confidence,
		DataSource: event.SourceReconciler,
	}
	opCtx, cancel = context.WithTimeout(ctx, s.cfg.OpTimeout)
	inserted, err := s.store.AppendEvent(opCtx, ev)
	cancel()
	s.audit(ctx, tradeID, now, quote, s.cfg.Confidence, err == nil, err)
	if err != nil {
		return fmt.Errorf("append synthesized update: %w", err)
	}
	if inserted && s.metrics != nil {
		s.metrics.EventsSynthesized.Inc()
	}
	logger.Infof("reconcile: synthesized update trade=%s be_mfe=%.2f no_be_mfe=%.2f mae=%.2f price=%.4f",
		tradeID, be, noBe, mae, quote.Price)
	return nil
}

func (s *Service) audit(ctx context.Context, tradeID string, at time.Time, quote impliedQuote, confidence float64, success bool, cause error) {
	rec := store.AuditRecord{
		AuditID:      uuid.NewString(),
		TradeID:      tradeID,
		EventTime:    at,
		ImpliedPrice: quote.Price,
		Confidence:   confidence,
		Success:      success,
		CreatedAt:    s.nowFn().UTC(),
	}
	if success {
		rec.FieldsFilled = strings.Join([]string{"be_mfe", "no_be_mfe", "mae"}, ",")
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	if err := s.store.AppendAudit(opCtx, rec); err != nil {
		logger.Warnf("reconcile: audit write failed trade=%s err=%v", tradeID, err)
	}
}

func maxOf(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}
