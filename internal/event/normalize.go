package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// RawEvent is the wire shape of one webhook document. The telemetry
// sub-object is kept raw; Normalize extracts from it with per-field
// precedence over the flat legacy columns.
type RawEvent struct {
	TradeID    FlexString `json:"trade_id"`
	Type       string     `json:"event_type"`
	Timestamp  FlexTime   `json:"timestamp"`
	Direction  string     `json:"direction"`
	Session    string     `json:"session"`
	SignalDate string     `json:"signal_date"`

	EntryPrice *Float `json:"entry_price"`
	StopLoss   *Float `json:"stop_loss"`
	BeMFE      *Float `json:"be_mfe"`
	NoBeMFE    *Float `json:"no_be_mfe"`
	MAE        *Float `json:"mae"`
	ExitPrice  *Float `json:"exit_price"`
	ExitReason string `json:"exit_reason"`

	Confidence *Float `json:"confidence_score"`
	DataSource string `json:"data_source"`

	Telemetry json.RawMessage `json:"telemetry"`
}

// SanitizeTradeID strips formatting artifacts (thousands-separator commas,
// stray whitespace) so cosmetic variants of one id group together.
func SanitizeTradeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, ",", "")
	id = strings.ReplaceAll(id, " ", "")
	if id == "" {
		return "", fmt.Errorf("%w: empty trade_id", ErrInvalid)
	}
	return id, nil
}

// NormalizeDirection maps the open set of source labels onto the canonical
// pair, defaulting to Other. Total: never fails, any input maps somewhere.
func NormalizeDirection(raw string) Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "bullish":
		return DirectionBullish
	case "short", "bearish":
		return DirectionBearish
	default:
		return DirectionOther
	}
}

// Normalize produces the canonical event for one raw webhook document.
// Precedence is applied independently per field: telemetry value when
// present and non-null, flat column otherwise, unset when both are absent.
func Normalize(raw RawEvent) (Event, error) {
	tradeID, err := SanitizeTradeID(string(raw.TradeID))
	if err != nil {
		return Event{}, err
	}
	typ := Type(strings.ToUpper(strings.TrimSpace(raw.Type)))
	if !typ.Valid() {
		return Event{}, fmt.Errorf("%w: unknown event_type %q", ErrInvalid, raw.Type)
	}
	ts := raw.Timestamp.Time()
	if ts.IsZero() {
		return Event{}, fmt.Errorf("%w: missing or unparseable timestamp", ErrInvalid)
	}

	tel := telemetryBody(raw.Telemetry)

	ev := Event{
		TradeID:   tradeID,
		Type:      typ,
		Timestamp: ts.UTC(),
	}

	ev.Direction = NormalizeDirection(stringPref(tel, "direction", raw.Direction))
	ev.Session = stringPref(tel, "session", raw.Session)
	ev.SignalDate = stringPref(tel, "signal_date", raw.SignalDate)
	ev.ExitReason = strings.TrimSpace(raw.ExitReason)

	fields := []struct {
		path string
		flat *Float
		dst  **float64
	}{
		{"entry_price", raw.EntryPrice, &ev.EntryPrice},
		{"stop_loss", raw.StopLoss, &ev.StopLoss},
		{"be_mfe", raw.BeMFE, &ev.BeMFE},
		{"no_be_mfe", raw.NoBeMFE, &ev.NoBeMFE},
		{"mae", raw.MAE, &ev.MAE},
		{"exit_price", raw.ExitPrice, &ev.ExitPrice},
	}
	for _, f := range fields {
		val, err := floatPref(tel, f.path, f.flat)
		if err != nil {
			return Event{}, err
		}
		*f.dst = val
	}

	ev.Targets = telemetryObject(tel, "targets")
	ev.Setup = telemetryObject(tel, "setup")
	ev.MarketState = telemetryObject(tel, "market_state")

	ev.Confidence = 1.0
	if raw.Confidence != nil {
		ev.Confidence = float64(*raw.Confidence)
	}
	ev.DataSource = strings.TrimSpace(raw.DataSource)
	if ev.DataSource == "" {
		ev.DataSource = SourceWebhook
	}
	return ev, nil
}

func telemetryBody(tel json.RawMessage) []byte {
	trimmed := strings.TrimSpace(string(tel))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return []byte(trimmed)
}

func stringPref(tel []byte, path, flat string) string {
	if len(tel) > 0 {
		res := gjson.GetBytes(tel, path)
		if res.Type == gjson.String {
			if s := strings.TrimSpace(res.String()); s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(flat)
}

// floatPref resolves one numeric field: telemetry first, then the flat
// column. A telemetry string that does not parse as a number fails the
// event rather than being coerced to zero.
func floatPref(tel []byte, path string, flat *Float) (*float64, error) {
	if len(tel) > 0 {
		res := gjson.GetBytes(tel, path)
		switch res.Type {
		case gjson.Number:
			val := res.Float()
			return &val, nil
		case gjson.String:
			s := strings.TrimSpace(res.Str)
			if s != "" {
				val, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: telemetry.%s=%q is not numeric", ErrInvalid, path, s)
				}
				return &val, nil
			}
		case gjson.True, gjson.False, gjson.JSON:
			return nil, fmt.Errorf("%w: telemetry.%s has non-numeric type", ErrInvalid, path)
		}
	}
	if flat != nil {
		val := float64(*flat)
		return &val, nil
	}
	return nil, nil
}

func telemetryObject(tel []byte, path string) map[string]any {
	if len(tel) == 0 {
		return nil
	}
	res := gjson.GetBytes(tel, path)
	if !res.IsObject() {
		return nil
	}
	if obj, ok := res.Value().(map[string]any); ok && len(obj) > 0 {
		return obj
	}
	return nil
}
