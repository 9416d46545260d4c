package live

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jgoulah/ampdash/pkg/models"
)

// ErrNoPower is returned for messages that carry no power field
var ErrNoPower = errors.New("message has no power value")

type message struct {
	Time      json.RawMessage `json:"time"`
	Timestamp json.RawMessage `json:"timestamp"`
	Power     *float64        `json:"power"`
	Current   float64         `json:"current"`
	Voltage   float64         `json:"voltage"`
	Energy    float64         `json:"energy"`
}

// Decode parses a JSON sensor message. Timestamps may be RFC3339 strings or
// unix seconds/milliseconds; when absent the receipt time is used.
func Decode(payload []byte, received time.Time) (models.Reading, error) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return models.Reading{}, fmt.Errorf("decoding message: %w", err)
	}
	if m.Power == nil {
		return models.Reading{}, ErrNoPower
	}

	raw := m.Time
	if isNull(raw) {
		raw = m.Timestamp
	}
	ts, err := parseTime(raw, received)
	if err != nil {
		return models.Reading{}, err
	}

	return models.Reading{
		Time:    ts,
		Power:   *m.Power,
		Current: m.Current,
		Voltage: m.Voltage,
		Energy:  m.Energy,
	}, nil
}

// isNull reports whether a field was absent or explicitly null
func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func parseTime(raw json.RawMessage, fallback time.Time) (time.Time, error) {
	if isNull(raw) {
		return fallback, nil
	}
	raw = bytes.TrimSpace(raw)

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
		}
		return t, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	sec := int64(n)
	return time.Unix(sec, int64((n-float64(sec))*1e9)).UTC(), nil
}
