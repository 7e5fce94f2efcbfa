package model

import (
	"gorm.io/datatypes"
)

// TradeEventModel is one append-only lifecycle event row. The composite
// unique index is the write-path dedup: retried webhook deliveries hit the
// same (trade_id, event_type, event_time) key and are ignored.
type TradeEventModel struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	EventUUID string `gorm:"column:event_uuid;index"`
	TradeID   string `gorm:"column:trade_id;uniqueIndex:idx_trade_event,priority:1;index"`
	EventType string `gorm:"column:event_type;uniqueIndex:idx_trade_event,priority:2"`
	EventTime int64  `gorm:"column:event_time;uniqueIndex:idx_trade_event,priority:3;index"`

	Direction  string `gorm:"column:direction"`
	Session    string `gorm:"column:session"`
	SignalDate string `gorm:"column:signal_date"`

	EntryPrice *float64 `gorm:"column:entry_price"`
	StopLoss   *float64 `gorm:"column:stop_loss"`
	BeMFE      *float64 `gorm:"column:be_mfe"`
	NoBeMFE    *float64 `gorm:"column:no_be_mfe"`
	MAE        *float64 `gorm:"column:mae"`
	ExitPrice  *float64 `gorm:"column:exit_price"`
	ExitReason string   `gorm:"column:exit_reason"`

	Confidence float64 `gorm:"column:confidence_score"`
	DataSource string  `gorm:"column:data_source;index"`

	Targets     datatypes.JSON `gorm:"column:targets;type:TEXT"`
	Setup       datatypes.JSON `gorm:"column:setup;type:TEXT"`
	MarketState datatypes.JSON `gorm:"column:market_state;type:TEXT"`

	CreatedAt int64 `gorm:"column:created_at"`
}

func (TradeEventModel) TableName() string { return "trade_events" }

// ReconciliationAuditModel records one synthesized catch-up event for
// later operational review.
type ReconciliationAuditModel struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	AuditUUID    string  `gorm:"column:audit_uuid;index"`
	TradeID      string  `gorm:"column:trade_id;index"`
	EventTime    int64   `gorm:"column:event_time"`
	ImpliedPrice float64 `gorm:"column:implied_price"`
	FieldsFilled string  `gorm:"column:fields_filled"`
	Confidence   float64 `gorm:"column:confidence"`
	Success      int     `gorm:"column:success"`
	Error        string  `gorm:"column:error"`
	CreatedAt    int64   `gorm:"column:created_at;index"`
}

func (ReconciliationAuditModel) TableName() string { return "reconciliation_audit" }
