// Package ingest is the webhook-side write path: validate, normalize,
// append. It owns no retry policy of its own beyond the store's; the
// event source owns redelivery.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tradepulse/internal/event"
	"tradepulse/internal/logger"
	"tradepulse/internal/observ"
	"tradepulse/internal/store"
)

// Service turns one raw webhook body into one appended event.
type Service struct {
	store     store.EventStore
	metrics   *observ.Metrics
	opTimeout time.Duration
}

func NewService(st store.EventStore, metrics *observ.Metrics, opTimeout time.Duration) *Service {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Service{store: st, metrics: metrics, opTimeout: opTimeout}
}

// Ingest validates and normalizes body, then appends the event.
// Validation failures wrap event.ErrInvalid; the payload is dropped and
// counted, never queued for retry.
func (s *Service) Ingest(ctx context.Context, body []byte) (event.Event, bool, error) {
	if err := event.ValidateJSON(body); err != nil {
		s.countReject()
		return event.Event{}, false, err
	}
	var raw event.RawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		s.countReject()
		return event.Event{}, false, fmt.Errorf("%w: %v", event.ErrInvalid, err)
	}
	ev, err := event.Normalize(raw)
	if err != nil {
		s.countReject()
		return event.Event{}, false, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	inserted, err := s.store.AppendEvent(opCtx, ev)
	if err != nil {
		return event.Event{}, false, fmt.Errorf("append %s for trade %s: %w", ev.Type, ev.TradeID, err)
	}
	if !inserted {
		logger.Debugf("ingest: duplicate event trade=%s type=%s ts=%s", ev.TradeID, ev.Type, ev.Timestamp.Format(time.RFC3339))
		if s.metrics != nil {
			s.metrics.EventsDuplicate.Inc()
		}
		return ev, false, nil
	}
	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(string(ev.Type)).Inc()
	}
	return ev, true, nil
}

func (s *Service) countReject() {
	if s.metrics != nil {
		s.metrics.EventsRejected.Inc()
	}
}
