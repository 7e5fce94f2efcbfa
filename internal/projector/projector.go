// Package projector folds a trade's ordered event list into a single
// authoritative TradeState. Projection is a pure function of the event
// set: same events in, same state out, safe to re-run at any time.
package projector

import (
	"fmt"
	"sort"
	"time"

	"tradepulse/internal/event"
	"tradepulse/internal/pkg/convert"
)

// Status is the projected lifecycle position of a trade.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further lifecycle transitions apply.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ErrNoEvents signals an empty event list for a known trade id. That is an
// upstream consistency bug, not a recoverable runtime condition.
var ErrNoEvents = fmt.Errorf("projector: no events for trade")

// TrajectoryPoint is one raw observation in the MFE/MAE time series.
// Raw values are recorded as sent, including post-freeze be_mfe numbers;
// the projected TradeState fields are where the freeze applies.
type TrajectoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	BeMFE     float64   `json:"be_mfe"`
	NoBeMFE   float64   `json:"no_be_mfe"`
	MAE       float64   `json:"mae"`
	Source    string    `json:"data_source"`
}

// TradeState is the derived state of one trade. It is never persisted as a
// mutable row; callers recompute it from events on demand.
type TradeState struct {
	TradeID      string          `json:"trade_id"`
	Direction    event.Direction `json:"direction"`
	Session      string          `json:"session"`
	EntryPrice   float64         `json:"entry_price"`
	StopLoss     float64         `json:"stop_loss"`
	RiskDistance float64         `json:"risk_distance"`
	TargetPrice  float64         `json:"target_price,omitempty"`

	Status Status `json:"status"`

	// Dual MFE trajectory. BeMFE stops advancing once break-even
	// triggers; NoBeMFE runs until the original-stop strategy exits.
	BeMFE        float64 `json:"be_mfe"`
	NoBeMFE      float64 `json:"no_be_mfe"`
	MAE          float64 `json:"mae"`
	PeakBeMFE    float64 `json:"peak_be_mfe"`
	PeakNoBeMFE  float64 `json:"peak_no_be_mfe"`
	BeTriggered  bool    `json:"be_triggered"`
	BeTriggerMFE float64 `json:"be_trigger_mfe,omitempty"`

	ExitPrice  float64 `json:"exit_price,omitempty"`
	ExitReason string  `json:"exit_reason,omitempty"`
	FinalMFE   float64 `json:"final_mfe,omitempty"`

	SignalDate string `json:"signal_date"`
	SignalTime string `json:"signal_time"`

	LastEventAt time.Time `json:"last_event_at"`
	LastSource  string    `json:"last_data_source"`

	Targets     map[string]any `json:"targets,omitempty"`
	Setup       map[string]any `json:"setup,omitempty"`
	MarketState map[string]any `json:"market_state,omitempty"`

	Points     []TrajectoryPoint `json:"trajectory"`
	EventCount int               `json:"event_count"`
}

// Projector folds events into TradeStates using a fixed reporting
// timezone for calendar-date fallbacks and display times.
type Projector struct {
	loc *time.Location
}

// New builds a Projector for the given reporting timezone name.
func New(reportTZ string) (*Projector, error) {
	loc, err := time.LoadLocation(reportTZ)
	if err != nil {
		return nil, fmt.Errorf("projector: bad reporting timezone %q: %w", reportTZ, err)
	}
	return &Projector{loc: loc}, nil
}

// Project folds the trade's events, in timestamp order, into a TradeState.
func (p *Projector) Project(tradeID string, events []event.Event) (*TradeState, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoEvents, tradeID)
	}

	ordered := make([]event.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].SeqID < ordered[j].SeqID
		}
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	state := &TradeState{
		TradeID:   tradeID,
		Direction: event.DirectionOther,
		Session:   event.SessionOther,
		Status:    StatusPending,
	}

	var declaredDate string
	for _, ev := range ordered {
		state.EventCount++
		state.LastEventAt = ev.Timestamp
		state.LastSource = ev.DataSource
		p.refineIdentity(state, ev, &declaredDate)

		switch ev.Type {
		case event.TypeSignalCreated:
			if !state.Status.Terminal() && state.Status != StatusActive {
				state.Status = StatusPending
			}
		case event.TypeEntry:
			if !state.Status.Terminal() {
				state.Status = StatusActive
			}
		case event.TypeMFEUpdate:
			if state.Status.Terminal() {
				// Late updates after an exit never reactivate a trade.
				continue
			}
			p.applyMFE(state, ev)
		case event.TypeBETriggered:
			if state.Status.Terminal() {
				continue
			}
			if !state.BeTriggered {
				state.BeTriggered = true
				switch {
				case ev.BeMFE != nil:
					state.BeMFE = maxFloat(state.BeMFE, *ev.BeMFE)
					state.PeakBeMFE = maxFloat(state.PeakBeMFE, *ev.BeMFE)
				case ev.NoBeMFE != nil:
					state.BeMFE = maxFloat(state.BeMFE, *ev.NoBeMFE)
					state.PeakBeMFE = maxFloat(state.PeakBeMFE, *ev.NoBeMFE)
				}
				state.BeTriggerMFE = state.BeMFE
			}
		case event.TypeExitStopLoss, event.TypeExitBreakEven:
			p.applyExit(state, ev)
		case event.TypeCancelled:
			if state.Status != StatusCompleted {
				state.Status = StatusCancelled
			}
		}
	}

	p.resolveSignalDate(state, declaredDate)
	return state, nil
}

// refineIdentity applies last-non-null-wins per field: later events refine
// identity, absent fields never erase earlier values.
func (p *Projector) refineIdentity(state *TradeState, ev event.Event, declaredDate *string) {
	if ev.Direction != event.DirectionOther {
		state.Direction = ev.Direction
	}
	if ev.Session != "" {
		state.Session = ev.Session
	}
	if ev.SignalDate != "" && *declaredDate == "" {
		*declaredDate = ev.SignalDate
	}
	if ev.EntryPrice != nil && *ev.EntryPrice > 0 {
		state.EntryPrice = *ev.EntryPrice
	}
	if ev.StopLoss != nil && *ev.StopLoss > 0 {
		state.StopLoss = *ev.StopLoss
	}
	if state.EntryPrice > 0 && state.StopLoss > 0 {
		state.RiskDistance = RiskDistance(state.EntryPrice, state.StopLoss)
	}
	if len(ev.Targets) > 0 {
		state.Targets = ev.Targets
		if target := firstTarget(ev.Targets); target > 0 {
			state.TargetPrice = target
		}
	}
	if len(ev.Setup) > 0 {
		state.Setup = ev.Setup
	}
	if len(ev.MarketState) > 0 {
		state.MarketState = ev.MarketState
	}
}

// firstTarget pulls the primary target out of the telemetry targets map.
// Sources label it inconsistently; values may arrive as numbers or strings.
func firstTarget(targets map[string]any) float64 {
	for _, key := range []string{"t1", "target_1", "tp1", "target"} {
		if raw, ok := targets[key]; ok {
			if val := convert.ToFloat64(raw); val > 0 {
				return val
			}
		}
	}
	return 0
}

func (p *Projector) applyMFE(state *TradeState, ev event.Event) {
	point := TrajectoryPoint{Timestamp: ev.Timestamp, Source: ev.DataSource}
	if ev.NoBeMFE != nil {
		point.NoBeMFE = *ev.NoBeMFE
		state.NoBeMFE = maxFloat(state.NoBeMFE, *ev.NoBeMFE)
		state.PeakNoBeMFE = maxFloat(state.PeakNoBeMFE, *ev.NoBeMFE)
	}
	if ev.BeMFE != nil {
		point.BeMFE = *ev.BeMFE
		state.PeakBeMFE = maxFloat(state.PeakBeMFE, *ev.BeMFE)
		if !state.BeTriggered {
			state.BeMFE = maxFloat(state.BeMFE, *ev.BeMFE)
		}
	} else if ev.NoBeMFE != nil && !state.BeTriggered {
		// Sources usually report a single excursion number; the two
		// series coincide until break-even triggers.
		state.BeMFE = maxFloat(state.BeMFE, *ev.NoBeMFE)
		state.PeakBeMFE = maxFloat(state.PeakBeMFE, *ev.NoBeMFE)
	}
	if ev.MAE != nil {
		point.MAE = *ev.MAE
		state.MAE = maxFloat(state.MAE, *ev.MAE)
	}
	state.Points = append(state.Points, point)
}

// applyExit finalizes the exiting strategy only; the other strategy's
// trajectory stays whatever its own series implies.
func (p *Projector) applyExit(state *TradeState, ev event.Event) {
	if state.Status == StatusCancelled {
		return
	}
	state.Status = StatusCompleted
	if ev.ExitPrice != nil && *ev.ExitPrice > 0 {
		state.ExitPrice = *ev.ExitPrice
	}
	reason := ev.ExitReason
	if reason == "" {
		if ev.Type == event.TypeExitBreakEven {
			reason = "break_even"
		} else {
			reason = "stop_loss"
		}
	}
	state.ExitReason = reason
	if ev.Type == event.TypeExitBreakEven {
		state.FinalMFE = state.BeMFE
	} else {
		state.FinalMFE = state.NoBeMFE
	}
}

// resolveSignalDate prefers the declared date; otherwise it derives the
// calendar date from the last event's timestamp in the reporting timezone.
// SignalTime is always display-derived, never stored.
func (p *Projector) resolveSignalDate(state *TradeState, declared string) {
	local := state.LastEventAt.In(p.loc)
	if declared != "" {
		state.SignalDate = declared
	} else if !state.LastEventAt.IsZero() {
		state.SignalDate = local.Format("2006-01-02")
	}
	if !state.LastEventAt.IsZero() {
		state.SignalTime = local.Format("15:04:05")
	}
}
