package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Datapoint is one converted sample. It encodes as [value, timestampMs],
// the order downstream dashboards expect. NaN and infinities encode as null.
type Datapoint struct {
	Value       float64
	TimestampMs int64
}

// Timeseries is a labeled, ordered sequence of datapoints.
type Timeseries struct {
	Label      string      `json:"label"`
	Datapoints []Datapoint `json:"datapoints"`
}

// MarshalJSON encodes the point as a two-element array.
func (d Datapoint) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, '[')
	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
		buf = append(buf, "null"...)
	} else {
		buf = strconv.AppendFloat(buf, d.Value, 'f', -1, 64)
	}
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, d.TimestampMs, 10)
	buf = append(buf, ']')
	return buf, nil
}

// UnmarshalJSON decodes [value, timestampMs]. A null value decodes as NaN.
func (d *Datapoint) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("datapoint: expected 2 elements, got %d", len(pair))
	}

	if bytes.Equal(bytes.TrimSpace(pair[0]), []byte("null")) {
		d.Value = math.NaN()
	} else if err := json.Unmarshal(pair[0], &d.Value); err != nil {
		return fmt.Errorf("datapoint: value: %w", err)
	}
	if err := json.Unmarshal(pair[1], &d.TimestampMs); err != nil {
		return fmt.Errorf("datapoint: timestamp: %w", err)
	}
	return nil
}

// MarshalJSON keeps an empty datapoint list as [] rather than null.
func (ts Timeseries) MarshalJSON() ([]byte, error) {
	type alias Timeseries
	out := alias(ts)
	if out.Datapoints == nil {
		out.Datapoints = []Datapoint{}
	}
	return json.Marshal(out)
}
