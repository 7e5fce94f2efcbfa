package projector

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/event"
)

func f(v float64) *float64 { return &v }

func newTestProjector(t *testing.T) *Projector {
	t.Helper()
	p, err := New("America/New_York")
	require.NoError(t, err)
	return p
}

func at(minute int) time.Time {
	return time.Date(2025, 12, 1, 14, 30+minute/60, minute%60, 0, time.UTC)
}

// lifecycleEvents is a full bullish trade: entry 100, stop 95, break-even
// triggers at 1.0R, price later falls back to entry and the original-stop
// strategy exits at 1.8R peak.
func lifecycleEvents() []event.Event {
	return []event.Event{
		{SeqID: 1, TradeID: "T1", Type: event.TypeSignalCreated, Timestamp: at(0),
			Direction: event.DirectionBullish, Session: "NY AM",
			EntryPrice: f(100), StopLoss: f(95)},
		{SeqID: 2, TradeID: "T1", Type: event.TypeEntry, Timestamp: at(1),
			EntryPrice: f(100), StopLoss: f(95)},
		{SeqID: 3, TradeID: "T1", Type: event.TypeMFEUpdate, Timestamp: at(2),
			BeMFE: f(0.5), NoBeMFE: f(0.5), MAE: f(0.2)},
		{SeqID: 4, TradeID: "T1", Type: event.TypeMFEUpdate, Timestamp: at(3),
			BeMFE: f(1.0), NoBeMFE: f(1.0)},
		{SeqID: 5, TradeID: "T1", Type: event.TypeBETriggered, Timestamp: at(4),
			BeMFE: f(1.0)},
		{SeqID: 6, TradeID: "T1", Type: event.TypeMFEUpdate, Timestamp: at(5),
			BeMFE: f(1.8), NoBeMFE: f(1.8)},
		{SeqID: 7, TradeID: "T1", Type: event.TypeExitStopLoss, Timestamp: at(6),
			ExitPrice: f(100)},
	}
}

func TestProjectFullLifecycle(t *testing.T) {
	p := newTestProjector(t)
	state, err := p.Project("T1", lifecycleEvents())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, event.DirectionBullish, state.Direction)
	assert.Equal(t, "NY AM", state.Session)
	assert.InDelta(t, 100.0, state.EntryPrice, 1e-9)
	assert.InDelta(t, 95.0, state.StopLoss, 1e-9)
	assert.InDelta(t, 5.0, state.RiskDistance, 1e-9)

	// be_mfe froze at the break-even trigger; no_be_mfe kept running.
	assert.True(t, state.BeTriggered)
	assert.InDelta(t, 1.0, state.BeMFE, 1e-9)
	assert.InDelta(t, 1.0, state.BeTriggerMFE, 1e-9)
	assert.InDelta(t, 1.8, state.NoBeMFE, 1e-9)
	assert.InDelta(t, 1.8, state.PeakBeMFE, 1e-9, "raw peak still observed")

	assert.Equal(t, "stop_loss", state.ExitReason)
	assert.InDelta(t, 100.0, state.ExitPrice, 1e-9)
	assert.InDelta(t, 1.8, state.FinalMFE, 1e-9, "stop-loss exit reports the no-BE series")
	assert.Equal(t, 7, state.EventCount)
	assert.Len(t, state.Points, 3)
}

func TestProjectBeFreezeWithSingleSeriesUpdates(t *testing.T) {
	// Feeds that report only no_be_mfe still freeze the be series at the
	// break-even trigger: the two series coincide until that point.
	p := newTestProjector(t)
	events := []event.Event{
		{SeqID: 1, TradeID: "T1", Type: event.TypeSignalCreated, Timestamp: at(0),
			Direction: event.DirectionBullish, EntryPrice: f(100), StopLoss: f(95)},
		{SeqID: 2, TradeID: "T1", Type: event.TypeEntry, Timestamp: at(1)},
		{SeqID: 3, TradeID: "T1", Type: event.TypeMFEUpdate, Timestamp: at(2), NoBeMFE: f(0.5)},
		{SeqID: 4, TradeID: "T1", Type: event.TypeMFEUpdate, Timestamp: at(3), NoBeMFE: f(1.0)},
		{SeqID: 5, TradeID: "T1", Type: event.TypeBETriggered, Timestamp: at(4)},
		{SeqID: 6, TradeID: "T1", Type: event.TypeMFEUpdate, Timestamp: at(5), NoBeMFE: f(1.8)},
		{SeqID: 7, TradeID: "T1", Type: event.TypeExitStopLoss, Timestamp: at(6), ExitPrice: f(100)},
	}
	state, err := p.Project("T1", events)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, state.Status)
	assert.True(t, state.BeTriggered)
	assert.InDelta(t, 1.0, state.BeMFE, 1e-9, "be series froze at the trigger")
	assert.InDelta(t, 1.0, state.BeTriggerMFE, 1e-9)
	assert.InDelta(t, 1.8, state.NoBeMFE, 1e-9)
	assert.InDelta(t, 1.8, state.FinalMFE, 1e-9)
	assert.Equal(t, "stop_loss", state.ExitReason)
}

func TestProjectIsIdempotent(t *testing.T) {
	p := newTestProjector(t)
	events := lifecycleEvents()
	first, err := p.Project("T1", events)
	require.NoError(t, err)
	second, err := p.Project("T1", events)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProjectIsOrderIndependent(t *testing.T) {
	p := newTestProjector(t)
	events := lifecycleEvents()
	want, err := p.Project("T1", events)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]event.Event, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got, err := p.Project("T1", shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got, "shuffle %d", i)
	}
}

func TestProjectBreakEvenExitUsesFrozenSeries(t *testing.T) {
	p := newTestProjector(t)
	events := lifecycleEvents()
	events[len(events)-1] = event.Event{
		SeqID: 7, TradeID: "T1", Type: event.TypeExitBreakEven,
		Timestamp: at(6), ExitPrice: f(100),
	}
	state, err := p.Project("T1", events)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, "break_even", state.ExitReason)
	assert.InDelta(t, 1.0, state.FinalMFE, 1e-9)
}

func TestProjectMFEIsMonotonic(t *testing.T) {
	p := newTestProjector(t)
	events := []event.Event{
		{SeqID: 1, TradeID: "T2", Type: event.TypeEntry, Timestamp: at(0),
			Direction: event.DirectionBearish, EntryPrice: f(50), StopLoss: f(52)},
		{SeqID: 2, TradeID: "T2", Type: event.TypeMFEUpdate, Timestamp: at(1), NoBeMFE: f(2.0)},
		{SeqID: 3, TradeID: "T2", Type: event.TypeMFEUpdate, Timestamp: at(2), NoBeMFE: f(0.7)},
	}
	state, err := p.Project("T2", events)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, state.NoBeMFE, 1e-9, "a pullback never lowers the peak")
	assert.Len(t, state.Points, 2)
	assert.InDelta(t, 0.7, state.Points[1].NoBeMFE, 1e-9, "raw trajectory keeps the pullback")
}

func TestProjectStatusTransitions(t *testing.T) {
	p := newTestProjector(t)

	pending, err := p.Project("T3", []event.Event{
		{SeqID: 1, TradeID: "T3", Type: event.TypeSignalCreated, Timestamp: at(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pending.Status)

	cancelled, err := p.Project("T3", []event.Event{
		{SeqID: 1, TradeID: "T3", Type: event.TypeSignalCreated, Timestamp: at(0)},
		{SeqID: 2, TradeID: "T3", Type: event.TypeCancelled, Timestamp: at(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.True(t, cancelled.Status.Terminal())
}

func TestProjectLateUpdateAfterExitIsIgnored(t *testing.T) {
	p := newTestProjector(t)
	events := append(lifecycleEvents(), event.Event{
		SeqID: 8, TradeID: "T1", Type: event.TypeMFEUpdate,
		Timestamp: at(10), NoBeMFE: f(9.9),
	})
	state, err := p.Project("T1", events)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, state.Status)
	assert.InDelta(t, 1.8, state.NoBeMFE, 1e-9, "post-exit updates never move the projection")
}

func TestProjectIdentityRefinement(t *testing.T) {
	p := newTestProjector(t)
	events := []event.Event{
		{SeqID: 1, TradeID: "T4", Type: event.TypeSignalCreated, Timestamp: at(0),
			Direction: event.DirectionBullish, Session: "London", EntryPrice: f(10)},
		// Later event omits direction and session; they must survive.
		{SeqID: 2, TradeID: "T4", Type: event.TypeEntry, Timestamp: at(1), StopLoss: f(9)},
	}
	state, err := p.Project("T4", events)
	require.NoError(t, err)
	assert.Equal(t, event.DirectionBullish, state.Direction)
	assert.Equal(t, "London", state.Session)
	assert.InDelta(t, 10.0, state.EntryPrice, 1e-9)
	assert.InDelta(t, 1.0, state.RiskDistance, 1e-9)
}

func TestProjectSignalDateFallback(t *testing.T) {
	p := newTestProjector(t)

	declared, err := p.Project("T5", []event.Event{
		{SeqID: 1, TradeID: "T5", Type: event.TypeSignalCreated,
			Timestamp: at(0), SignalDate: "2025-11-30"},
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-11-30", declared.SignalDate)

	// 14:30 UTC is 09:30 in New York.
	derived, err := p.Project("T5", []event.Event{
		{SeqID: 1, TradeID: "T5", Type: event.TypeSignalCreated, Timestamp: at(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01", derived.SignalDate)
	assert.Equal(t, "09:30:00", derived.SignalTime)
}

func TestProjectTargetPriceFromTelemetry(t *testing.T) {
	p := newTestProjector(t)
	state, err := p.Project("T7", []event.Event{
		{SeqID: 1, TradeID: "T7", Type: event.TypeEntry, Timestamp: at(0),
			EntryPrice: f(100), StopLoss: f(95),
			Targets: map[string]any{"t1": "102.5", "t2": 105.0}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 102.5, state.TargetPrice, 1e-9, "string-typed target still resolves")
}

func TestProjectNoEvents(t *testing.T) {
	p := newTestProjector(t)
	_, err := p.Project("T6", nil)
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestRMathRoundTrip(t *testing.T) {
	// ImpliedPrice inverts ExcursionR for both directions.
	priceUp := ImpliedPrice(100, 5, 1.8, event.DirectionBullish)
	assert.InDelta(t, 109.0, priceUp, 1e-9)
	assert.InDelta(t, 1.8, ExcursionR(100, 5, priceUp, event.DirectionBullish), 1e-9)

	priceDown := ImpliedPrice(100, 5, 1.8, event.DirectionBearish)
	assert.InDelta(t, 91.0, priceDown, 1e-9)
	assert.InDelta(t, 1.8, ExcursionR(100, 5, priceDown, event.DirectionBearish), 1e-9)

	assert.InDelta(t, 5.0, RiskDistance(100, 95), 1e-9)
	assert.InDelta(t, 2.0, RiskDistance(50, 52), 1e-9)
	assert.Zero(t, RiskDistance(0, 95))
	assert.Zero(t, ExcursionR(100, 0, 105, event.DirectionBullish))
}
