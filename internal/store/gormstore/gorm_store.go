// Package gormstore persists lifecycle events and reconciliation audit
// rows in SQLite via Gorm. Events are append-only; the only write shapes
// are inserts.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tradepulse/internal/event"
	"tradepulse/internal/pkg/retry"
	"tradepulse/internal/store"
	storemodel "tradepulse/internal/store/model"
)

type tradeEventModel = storemodel.TradeEventModel
type auditModel = storemodel.ReconciliationAuditModel

var terminalTypes = []string{
	string(event.TypeExitStopLoss),
	string(event.TypeExitBreakEven),
	string(event.TypeCancelled),
}

// GormStore implements store.EventStore on Gorm + SQLite.
type GormStore struct {
	db  *gorm.DB
	pol retry.Policy
}

var _ store.EventStore = (*GormStore)(nil)

// NewGormStore opens (creating if needed) the SQLite event store.
func NewGormStore(path string, pol retry.Policy) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: empty database path")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tradeEventModel{}, &auditModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent
	// HTTP reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	if pol.Attempts <= 0 {
		pol = retry.DefaultPolicy
	}
	return &GormStore{db: db, pol: pol}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) AppendEvent(ctx context.Context, ev event.Event) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("gorm store not initialized")
	}
	if strings.TrimSpace(ev.TradeID) == "" {
		return false, fmt.Errorf("append event: trade_id required")
	}
	model := newTradeEventModel(ev)
	inserted := false
	err := s.pol.Do(ctx, "append event", func() error {
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "trade_id"}, {Name: "event_type"}, {Name: "event_time"},
				},
				DoNothing: true,
			}).
			Create(&model)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *GormStore) ListEventsByTrade(ctx context.Context, tradeID string) ([]event.Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []tradeEventModel
	if err := s.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("event_time ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]event.Event, 0, len(models))
	for _, m := range models {
		out = append(out, tradeEventModelToEvent(m))
	}
	return out, nil
}

func (s *GormStore) ListTradeIDs(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&tradeEventModel{}).
		Distinct("trade_id").
		Order("trade_id").
		Pluck("trade_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *GormStore) LatestOrganicMFEUpdate(ctx context.Context) (event.Event, bool, error) {
	if s == nil || s.db == nil {
		return event.Event{}, false, fmt.Errorf("gorm store not initialized")
	}
	var m tradeEventModel
	err := s.db.WithContext(ctx).
		Where("event_type = ? AND data_source <> ?", string(event.TypeMFEUpdate), event.SourceReconciler).
		Order("event_time DESC, id DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return event.Event{}, false, nil
		}
		return event.Event{}, false, err
	}
	return tradeEventModelToEvent(m), true, nil
}

// StaleActiveTradeIDs selects trades with a confirmed entry, no terminal
// event, and no activity of any kind at or after the cutoff.
func (s *GormStore) StaleActiveTradeIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Table("trade_events").
		Select("trade_id").
		Group("trade_id").
		Having("SUM(CASE WHEN event_type = ? THEN 1 ELSE 0 END) > 0", string(event.TypeEntry)).
		Having("SUM(CASE WHEN event_type IN ? THEN 1 ELSE 0 END) = 0", terminalTypes).
		Having("MAX(event_time) < ?", cutoff.UnixMilli()).
		Order("trade_id").
		Pluck("trade_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *GormStore) AppendAudit(ctx context.Context, rec store.AuditRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if rec.AuditID == "" {
		rec.AuditID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	model := auditModel{
		AuditUUID:    rec.AuditID,
		TradeID:      strings.TrimSpace(rec.TradeID),
		EventTime:    rec.EventTime.UnixMilli(),
		ImpliedPrice: rec.ImpliedPrice,
		FieldsFilled: strings.TrimSpace(rec.FieldsFilled),
		Confidence:   rec.Confidence,
		Success:      boolToInt(rec.Success),
		Error:        strings.TrimSpace(rec.Error),
		CreatedAt:    rec.CreatedAt.UnixMilli(),
	}
	return s.pol.Do(ctx, "append audit", func() error {
		return s.db.WithContext(ctx).Create(&model).Error
	})
}

func (s *GormStore) ListAudits(ctx context.Context, limit int) ([]store.AuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []auditModel
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.AuditRecord, 0, len(models))
	for _, m := range models {
		out = append(out, store.AuditRecord{
			AuditID:      m.AuditUUID,
			TradeID:      m.TradeID,
			EventTime:    time.UnixMilli(m.EventTime),
			ImpliedPrice: m.ImpliedPrice,
			FieldsFilled: m.FieldsFilled,
			Confidence:   m.Confidence,
			Success:      m.Success != 0,
			Error:        m.Error,
			CreatedAt:    time.UnixMilli(m.CreatedAt),
		})
	}
	return out, nil
}

// --------------------------- Model Helpers ------------------------------

func newTradeEventModel(ev event.Event) tradeEventModel {
	eventID := strings.TrimSpace(ev.EventID)
	if eventID == "" {
		eventID = uuid.NewString()
	}
	return tradeEventModel{
		EventUUID:   eventID,
		TradeID:     strings.TrimSpace(ev.TradeID),
		EventType:   string(ev.Type),
		EventTime:   ev.Timestamp.UnixMilli(),
		Direction:   string(ev.Direction),
		Session:     strings.TrimSpace(ev.Session),
		SignalDate:  strings.TrimSpace(ev.SignalDate),
		EntryPrice:  ev.EntryPrice,
		StopLoss:    ev.StopLoss,
		BeMFE:       ev.BeMFE,
		NoBeMFE:     ev.NoBeMFE,
		MAE:         ev.MAE,
		ExitPrice:   ev.ExitPrice,
		ExitReason:  strings.TrimSpace(ev.ExitReason),
		Confidence:  ev.Confidence,
		DataSource:  strings.TrimSpace(ev.DataSource),
		Targets:     mapToJSON(ev.Targets),
		Setup:       mapToJSON(ev.Setup),
		MarketState: mapToJSON(ev.MarketState),
		CreatedAt:   time.Now().UnixMilli(),
	}
}

func tradeEventModelToEvent(m tradeEventModel) event.Event {
	return event.Event{
		SeqID:       m.ID,
		EventID:     m.EventUUID,
		TradeID:     m.TradeID,
		Type:        event.Type(m.EventType),
		Timestamp:   time.UnixMilli(m.EventTime).UTC(),
		Direction:   event.Direction(m.Direction),
		Session:     m.Session,
		SignalDate:  m.SignalDate,
		EntryPrice:  m.EntryPrice,
		StopLoss:    m.StopLoss,
		BeMFE:       m.BeMFE,
		NoBeMFE:     m.NoBeMFE,
		MAE:         m.MAE,
		ExitPrice:   m.ExitPrice,
		ExitReason:  m.ExitReason,
		Confidence:  m.Confidence,
		DataSource:  m.DataSource,
		Targets:     jsonToMap(m.Targets),
		Setup:       jsonToMap(m.Setup),
		MarketState: jsonToMap(m.MarketState),
	}
}

func mapToJSON(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func jsonToMap(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
