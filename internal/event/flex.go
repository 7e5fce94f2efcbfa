package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Float accepts JSON numbers or numeric strings. A string that does not
// parse is an error, never a silent zero.
type Float float64

func (f *Float) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		val, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = Float(val)
		return nil
	}
	var val float64
	if err := json.Unmarshal(data, &val); err != nil {
		return err
	}
	*f = Float(val)
	return nil
}

// FlexString accepts JSON strings or numbers; trade ids occasionally
// arrive as bare numbers.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = FlexString(num.String())
	return nil
}

// flexTimeLayouts are tried in order for string timestamps.
var flexTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FlexTime accepts RFC3339-style strings, bare datetimes, or unix
// seconds/milliseconds. Unparseable input is an error.
type FlexTime time.Time

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = FlexTime(time.Time{})
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = FlexTime(parsed)
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*t = FlexTime(unixFlexible(num))
	return nil
}

func (t FlexTime) Time() time.Time { return time.Time(t) }

// ParseTimestamp parses the timestamp formats the event source is known
// to emit, including numeric unix seconds/milliseconds as strings.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range flexTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	if num, err := strconv.ParseFloat(s, 64); err == nil {
		return unixFlexible(num), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// unixFlexible treats magnitudes above 1e12 as milliseconds.
func unixFlexible(num float64) time.Time {
	if num > 1e12 {
		return time.UnixMilli(int64(num)).UTC()
	}
	return time.Unix(int64(num), 0).UTC()
}
