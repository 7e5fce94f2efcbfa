package reconcile

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/event"
	"tradepulse/internal/projector"
	"tradepulse/internal/store"
)

func f(v float64) *float64 { return &v }

// fakeStore is an in-memory EventStore with per-trade failure injection.
type fakeStore struct {
	events   map[string][]event.Event
	audits   []store.AuditRecord
	failList map[string]error
	seq      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: map[string][]event.Event{}, failList: map[string]error{}}
}

func (s *fakeStore) add(ev event.Event) {
	s.seq++
	ev.SeqID = s.seq
	s.events[ev.TradeID] = append(s.events[ev.TradeID], ev)
}

func (s *fakeStore) AppendEvent(ctx context.Context, ev event.Event) (bool, error) {
	if err := s.failList[ev.TradeID]; err != nil {
		return false, err
	}
	for _, existing := range s.events[ev.TradeID] {
		if existing.Type == ev.Type && existing.Timestamp.Equal(ev.Timestamp) {
			return false, nil
		}
	}
	s.add(ev)
	return true, nil
}

func (s *fakeStore) ListEventsByTrade(ctx context.Context, tradeID string) ([]event.Event, error) {
	if err := s.failList[tradeID]; err != nil {
		return nil, err
	}
	return append([]event.Event(nil), s.events[tradeID]...), nil
}

func (s *fakeStore) ListTradeIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) LatestOrganicMFEUpdate(ctx context.Context) (event.Event, bool, error) {
	var latest event.Event
	found := false
	for _, evs := range s.events {
		for _, ev := range evs {
			if ev.Type != event.TypeMFEUpdate || !ev.Organic() {
				continue
			}
			if !found || ev.Timestamp.After(latest.Timestamp) {
				latest, found = ev, true
			}
		}
	}
	return latest, found, nil
}

func (s *fakeStore) StaleActiveTradeIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	for id, evs := range s.events {
		hasEntry, terminal := false, false
		var last time.Time
		for _, ev := range evs {
			if ev.Type == event.TypeEntry {
				hasEntry = true
			}
			if ev.Type.Terminal() {
				terminal = true
			}
			if ev.Timestamp.After(last) {
				last = ev.Timestamp
			}
		}
		if hasEntry && !terminal && last.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) AppendAudit(ctx context.Context, rec store.AuditRecord) error {
	s.audits = append(s.audits, rec)
	return nil
}

func (s *fakeStore) ListAudits(ctx context.Context, limit int) ([]store.AuditRecord, error) {
	return append([]store.AuditRecord(nil), s.audits...), nil
}

func (s *fakeStore) Close() error { return nil }

var _ store.EventStore = (*fakeStore)(nil)

func newTestService(t *testing.T, st store.EventStore, now time.Time) *Service {
	t.Helper()
	proj, err := projector.New("America/New_York")
	require.NoError(t, err)
	svc := NewService(st, proj, Config{
		Staleness:   2 * time.Minute,
		QuoteMaxAge: 10 * time.Minute,
		Confidence:  0.5,
	}, nil)
	svc.nowFn = func() time.Time { return now }
	return svc
}

func seedTrade(st *fakeStore, id string, dir event.Direction, entry, stop float64, base time.Time) {
	st.add(event.Event{TradeID: id, Type: event.TypeEntry, Timestamp: base,
		Direction: dir, EntryPrice: f(entry), StopLoss: f(stop),
		Confidence: 1, DataSource: event.SourceWebhook})
}

func addMFE(st *fakeStore, id string, noBe float64, ts time.Time) {
	st.add(event.Event{TradeID: id, Type: event.TypeMFEUpdate, Timestamp: ts,
		NoBeMFE: f(noBe), Confidence: 1, DataSource: event.SourceWebhook})
}

func TestRunCycleSynthesizesForStaleTrades(t *testing.T) {
	now := time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC)
	st := newFakeStore()

	// Quote source: bullish, entry 100, stop 95, last organic MFE 1.8R
	// one minute ago. Implied price = 100 + 1.8*5 = 109.
	seedTrade(st, "FRESH", event.DirectionBullish, 100, 95, now.Add(-20*time.Minute))
	addMFE(st, "FRESH", 1.8, now.Add(-time.Minute))

	// Stale trade: bearish, entry 110, stop 112, silent for 5 minutes.
	// At price 109 its excursion is (110-109)/2 = 0.5R.
	seedTrade(st, "STALE", event.DirectionBearish, 110, 112, now.Add(-30*time.Minute))
	addMFE(st, "STALE", 0.2, now.Add(-5*time.Minute))

	svc := newTestService(t, st, now)
	require.NoError(t, svc.RunCycle(context.Background()))

	events := st.events["STALE"]
	require.Len(t, events, 3)
	synth := events[2]
	assert.Equal(t, event.TypeMFEUpdate, synth.Type)
	assert.Equal(t, event.SourceReconciler, synth.DataSource)
	assert.False(t, synth.Organic())
	assert.Equal(t, 0.5, synth.Confidence)
	require.NotNil(t, synth.NoBeMFE)
	assert.InDelta(t, 0.5, *synth.NoBeMFE, 1e-9)
	require.NotNil(t, synth.MAE)
	assert.Zero(t, *synth.MAE, "favorable move does not raise MAE")

	require.Len(t, st.audits, 1)
	assert.Equal(t, "STALE", st.audits[0].TradeID)
	assert.True(t, st.audits[0].Success)
	assert.InDelta(t, 109.0, st.audits[0].ImpliedPrice, 1e-9)
	assert.Equal(t, "be_mfe,no_be_mfe,mae", st.audits[0].FieldsFilled)
}

func TestRunCycleSkipsFreshTrades(t *testing.T) {
	now := time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC)
	st := newFakeStore()
	seedTrade(st, "Q", event.DirectionBullish, 100, 95, now.Add(-20*time.Minute))
	addMFE(st, "Q", 1.0, now.Add(-time.Minute))

	// Updated 30 seconds ago: inside the staleness window, not selected.
	seedTrade(st, "BUSY", event.DirectionBullish, 50, 48, now.Add(-10*time.Minute))
	addMFE(st, "BUSY", 0.4, now.Add(-30*time.Second))

	svc := newTestService(t, st, now)
	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Len(t, st.events["BUSY"], 2, "no synthesized event for an active feed")
	assert.Empty(t, st.audits)
}

func TestRunCycleQuoteSourceIsNeverReconciledFromItself(t *testing.T) {
	now := time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC)
	st := newFakeStore()
	// The only trade is also the quote source and it is stale.
	seedTrade(st, "SOLO", event.DirectionBullish, 100, 95, now.Add(-30*time.Minute))
	addMFE(st, "SOLO", 1.0, now.Add(-5*time.Minute))

	svc := newTestService(t, st, now)
	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Len(t, st.events["SOLO"], 2)
}

func TestRunCycleAbortsWithoutRecentQuote(t *testing.T) {
	now := time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC)
	st := newFakeStore()
	seedTrade(st, "STALE", event.DirectionBullish, 100, 95, now.Add(-30*time.Minute))

	svc := newTestService(t, st, now)
	err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrStaleQuote)

	// Same when the only organic update is too old.
	addMFE(st, "STALE", 1.0, now.Add(-time.Hour))
	err = svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrStaleQuote)
}

func TestRunCycleIsolatesPerTradeFailures(t *testing.T) {
	now := time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC)
	st := newFakeStore()
	seedTrade(st, "Q", event.DirectionBullish, 100, 95, now.Add(-20*time.Minute))
	addMFE(st, "Q", 1.0, now.Add(-time.Minute))

	seedTrade(st, "BAD", event.DirectionBullish, 70, 68, now.Add(-10*time.Minute))
	seedTrade(st, "GOOD", event.DirectionBullish, 50, 48, now.Add(-10*time.Minute))
	st.failList["BAD"] = errors.New("disk on fire")

	svc := newTestService(t, st, now)
	require.NoError(t, svc.RunCycle(context.Background()), "one bad trade never fails the cycle")
	assert.Len(t, st.events["GOOD"], 2, "healthy trade still reconciled")
	assert.Len(t, st.events["BAD"], 1)

	require.Len(t, st.audits, 2)
	for _, rec := range st.audits {
		switch rec.TradeID {
		case "BAD":
			assert.False(t, rec.Success)
			assert.Empty(t, rec.FieldsFilled, "failed attempts fill nothing")
			assert.NotEmpty(t, rec.Error)
		case "GOOD":
			assert.True(t, rec.Success)
			assert.Equal(t, "be_mfe,no_be_mfe,mae", rec.FieldsFilled)
		default:
			t.Fatalf("unexpected audit row for trade %s", rec.TradeID)
		}
	}
}

func TestRunCycleSecondPassIsMonotonic(t *testing.T) {
	now := time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC)
	st := newFakeStore()
	seedTrade(st, "Q", event.DirectionBullish, 100, 95, now.Add(-20*time.Minute))
	addMFE(st, "Q", 1.8, now.Add(-time.Minute))

	// Stale trade already peaked above what the implied price gives.
	seedTrade(st, "STALE", event.DirectionBullish, 100, 95, now.Add(-30*time.Minute))
	addMFE(st, "STALE", 3.0, now.Add(-5*time.Minute))

	svc := newTestService(t, st, now)
	require.NoError(t, svc.RunCycle(context.Background()))

	events := st.events["STALE"]
	require.Len(t, events, 3)
	require.NotNil(t, events[2].NoBeMFE)
	assert.InDelta(t, 3.0, *events[2].NoBeMFE, 1e-9, "synthesized value never regresses the peak")
}
