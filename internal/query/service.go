// Package query exposes the read-only projection views: active and
// completed trades, per-trade detail, and the reconciliation audit trail.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tradepulse/internal/event"
	"tradepulse/internal/logger"
	"tradepulse/internal/projector"
	"tradepulse/internal/store"
)

// ErrNotFound means no events exist for the requested trade id.
var ErrNotFound = errors.New("trade not found")

// Service runs the projector over the event store on demand. Projection
// is cheap relative to correctness: no incremental cache to invalidate.
type Service struct {
	store     store.EventStore
	proj      *projector.Projector
	opTimeout time.Duration
}

func NewService(st store.EventStore, proj *projector.Projector, opTimeout time.Duration) *Service {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Service{store: st, proj: proj, opTimeout: opTimeout}
}

// ActiveTrades returns non-terminal projections, most recent activity first.
func (s *Service) ActiveTrades(ctx context.Context) ([]*projector.TradeState, error) {
	active, _, err := s.snapshot(ctx)
	return active, err
}

// CompletedTrades returns terminal projections (completed and cancelled),
// most recent activity first.
func (s *Service) CompletedTrades(ctx context.Context) ([]*projector.TradeState, error) {
	_, completed, err := s.snapshot(ctx)
	return completed, err
}

// Trade projects a single trade by id. The id is sanitized the same way
// ingestion sanitizes it, so cosmetic variants resolve to the same trade.
func (s *Service) Trade(ctx context.Context, tradeID string) (*projector.TradeState, error) {
	id, err := event.SanitizeTradeID(tradeID)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	events, err := s.store.ListEventsByTrade(opCtx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	return s.proj.Project(id, events)
}

// TradeEvents returns the raw ordered event list for one trade.
func (s *Service) TradeEvents(ctx context.Context, tradeID string) ([]event.Event, error) {
	id, err := event.SanitizeTradeID(tradeID)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.store.ListEventsByTrade(opCtx, id)
}

// Audits returns recent reconciliation audit rows.
func (s *Service) Audits(ctx context.Context, limit int) ([]store.AuditRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.store.ListAudits(opCtx, limit)
}

// snapshot projects every trade and partitions by terminal status.
// A trade that fails projection is omitted with a logged reason rather
// than surfaced in a corrupted state.
func (s *Service) snapshot(ctx context.Context) (active, completed []*projector.TradeState, err error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	ids, err := s.store.ListTradeIDs(opCtx)
	cancel()
	if err != nil {
		return nil, nil, err
	}
	for _, id := range ids {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		events, err := s.store.ListEventsByTrade(opCtx, id)
		cancel()
		if err != nil {
			logger.Warnf("query: load events failed trade=%s err=%v", id, err)
			continue
		}
		state, err := s.proj.Project(id, events)
		if err != nil {
			logger.Warnf("query: projection failed trade=%s err=%v, omitted from results", id, err)
			continue
		}
		if state.Status.Terminal() {
			completed = append(completed, state)
		} else {
			active = append(active, state)
		}
	}
	byRecency := func(list []*projector.TradeState) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].LastEventAt.After(list[j].LastEventAt)
		})
	}
	byRecency(active)
	byRecency(completed)
	return active, completed, nil
}
