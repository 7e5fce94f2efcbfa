package store

import (
	"context"
	"time"

	"tradepulse/internal/event"
)

// AuditRecord is one append-only row describing a synthesized
// reconciliation event: which fields were filled and why. Operational
// review only, never used for replay.
type AuditRecord struct {
	AuditID      string    `json:"audit_id"`
	TradeID      string    `json:"trade_id"`
	EventTime    time.Time `json:"event_time"`
	ImpliedPrice float64   `json:"implied_price"`
	FieldsFilled string    `json:"fields_filled"`
	Confidence   float64   `json:"confidence"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventStore is the durable append-only event table plus the audit log.
// Past events are never mutated; corrections are new events.
type EventStore interface {
	// AppendEvent appends one event. A duplicate
	// (trade_id, event_type, timestamp) key is ignored and reported as
	// inserted=false, making webhook retries harmless.
	AppendEvent(ctx context.Context, ev event.Event) (inserted bool, err error)

	// ListEventsByTrade returns the trade's events ordered by timestamp
	// then insertion sequence.
	ListEventsByTrade(ctx context.Context, tradeID string) ([]event.Event, error)

	// ListTradeIDs returns every distinct trade id in the store.
	ListTradeIDs(ctx context.Context) ([]string, error)

	// LatestOrganicMFEUpdate returns the most recent non-synthesized
	// MFE_UPDATE anywhere in the store, if one exists.
	LatestOrganicMFEUpdate(ctx context.Context) (event.Event, bool, error)

	// StaleActiveTradeIDs returns trades with a confirmed entry, no
	// terminal event, and no activity at or after the cutoff.
	StaleActiveTradeIDs(ctx context.Context, cutoff time.Time) ([]string, error)

	// AppendAudit records one reconciliation audit row.
	AppendAudit(ctx context.Context, rec AuditRecord) error

	// ListAudits returns the most recent audit rows, newest first.
	ListAudits(ctx context.Context, limit int) ([]AuditRecord, error)

	Close() error
}
