// Package event defines the trade-lifecycle event model: the raw webhook
// payload shape, schema validation, and normalization into canonical events.
package event

import (
	"errors"
	"time"
)

// Type enumerates the lifecycle transitions the event source emits.
type Type string

const (
	TypeSignalCreated Type = "SIGNAL_CREATED"
	TypeEntry         Type = "ENTRY"
	TypeMFEUpdate     Type = "MFE_UPDATE"
	TypeBETriggered   Type = "BE_TRIGGERED"
	TypeExitStopLoss  Type = "EXIT_STOP_LOSS"
	TypeExitBreakEven Type = "EXIT_BREAK_EVEN"
	TypeCancelled     Type = "CANCELLED"
)

// Valid reports whether t is a known lifecycle event type.
func (t Type) Valid() bool {
	switch t {
	case TypeSignalCreated, TypeEntry, TypeMFEUpdate, TypeBETriggered,
		TypeExitStopLoss, TypeExitBreakEven, TypeCancelled:
		return true
	}
	return false
}

// IsExit reports whether t closes the trade via an exit strategy.
func (t Type) IsExit() bool {
	return t == TypeExitStopLoss || t == TypeExitBreakEven
}

// Terminal reports whether t ends the trade's lifecycle.
func (t Type) Terminal() bool {
	return t.IsExit() || t == TypeCancelled
}

// Direction is the normalized trade direction.
type Direction string

const (
	DirectionBullish Direction = "Bullish"
	DirectionBearish Direction = "Bearish"
	DirectionOther   Direction = "Other"
)

// Data sources distinguish organically received events from
// backend-synthesized catch-up updates.
const (
	SourceWebhook    = "webhook"
	SourceReconciler = "backend_reconciler"
)

// SessionOther is the session label applied when the source omits one.
const SessionOther = "Other"

// ErrInvalid marks payloads rejected at ingestion. Such events are
// dropped and logged, never retried by this service.
var ErrInvalid = errors.New("invalid event payload")

// Event is the canonical, normalized form of one lifecycle event.
// Pointer fields distinguish "absent in the payload" from zero values.
type Event struct {
	SeqID     int64     `json:"seq_id"`
	EventID   string    `json:"event_id,omitempty"`
	TradeID   string    `json:"trade_id"`
	Type      Type      `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`

	Direction  Direction `json:"direction"`
	Session    string    `json:"session,omitempty"`
	SignalDate string    `json:"signal_date,omitempty"`

	EntryPrice *float64 `json:"entry_price,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	BeMFE      *float64 `json:"be_mfe,omitempty"`
	NoBeMFE    *float64 `json:"no_be_mfe,omitempty"`
	MAE        *float64 `json:"mae,omitempty"`
	ExitPrice  *float64 `json:"exit_price,omitempty"`
	ExitReason string   `json:"exit_reason,omitempty"`

	Confidence float64 `json:"confidence_score"`
	DataSource string  `json:"data_source"`

	Targets     map[string]any `json:"targets,omitempty"`
	Setup       map[string]any `json:"setup,omitempty"`
	MarketState map[string]any `json:"market_state,omitempty"`
}

// Organic reports whether the event came from the external source rather
// than the reconciliation backfill.
func (e Event) Organic() bool {
	return e.DataSource != SourceReconciler
}
