package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// UnmarshalJSON accepts itemid and value as JSON strings or numbers, and
// clock as an integer or a numeric string, so both history.get records and
// hand-written numeric bodies decode.
func (s *Sample) UnmarshalJSON(b []byte) error {
	var raw struct {
		ItemID json.RawMessage `json:"itemid"`
		Value  json.RawMessage `json:"value"`
		Clock  json.RawMessage `json:"clock"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var out Sample
	var err error
	if out.ItemID, err = scalarText("itemid", raw.ItemID); err != nil {
		return err
	}
	if out.Value, err = scalarText("value", raw.Value); err != nil {
		return err
	}
	if out.Clock, err = clockValue(raw.Clock); err != nil {
		return err
	}
	*s = out
	return nil
}

// UnmarshalJSON accepts the same loose field shapes as Sample.
func (t *Trend) UnmarshalJSON(b []byte) error {
	var raw struct {
		ItemID   json.RawMessage `json:"itemid"`
		ValueMin json.RawMessage `json:"value_min"`
		ValueMax json.RawMessage `json:"value_max"`
		ValueAvg json.RawMessage `json:"value_avg"`
		Clock    json.RawMessage `json:"clock"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var out Trend
	fields := []struct {
		name string
		src  json.RawMessage
		dst  *string
	}{
		{"itemid", raw.ItemID, &out.ItemID},
		{"value_min", raw.ValueMin, &out.ValueMin},
		{"value_max", raw.ValueMax, &out.ValueMax},
		{"value_avg", raw.ValueAvg, &out.ValueAvg},
	}
	for _, f := range fields {
		v, err := scalarText(f.name, f.src)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	clock, err := clockValue(raw.Clock)
	if err != nil {
		return err
	}
	out.Clock = clock
	*t = out
	return nil
}

// scalarText returns the text of a JSON string or number. Missing and null
// fields decode to "". Number text is kept verbatim.
func scalarText(field string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%s: %w", field, err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%s: want string or number, got %s", field, raw)
	}
	return n.String(), nil
}

func clockValue(raw json.RawMessage) (int64, error) {
	text, err := scalarText("clock", raw)
	if err != nil || text == "" {
		return 0, err
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("clock: %q is not an integer", text)
	}
	return int64(f), nil
}
