// Package convert turns raw history and trend records into labeled
// timeseries.
package convert

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/tinytelemetry/zquery/internal/model"
)

// Record is any raw sample that belongs to one item.
type Record interface {
	ItemKey() string
}

// Convert groups records by item, labels each group from inv and maps every
// record through extract. Groups appear in first-seen order and records keep
// their input order within a group.
//
// The label is the item name, prefixed by "<host name>: " when addHostName is
// set. Records of items missing from inv are labeled with the raw item ID.
func Convert[R Record](records []R, addHostName bool, extract func(R) model.Datapoint, inv model.Inventory) []model.Timeseries {
	index := make(map[string]int)
	var keys []string
	var groups [][]R

	for _, r := range records {
		key := r.ItemKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			keys = append(keys, key)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}

	out := make([]model.Timeseries, 0, len(groups))
	for i, group := range groups {
		points := make([]model.Datapoint, len(group))
		for j, r := range group {
			points[j] = extract(r)
		}
		out = append(out, model.Timeseries{
			Label:      label(keys[i], addHostName, inv),
			Datapoints: points,
		})
	}
	return out
}

func label(itemID string, addHostName bool, inv model.Inventory) string {
	item, ok := inv.Item(itemID)
	if !ok {
		return itemID
	}
	if !addHostName {
		return item.Name
	}
	host, ok := inv.Host(item.HostID)
	if !ok {
		return item.Name
	}
	return host.Name + ": " + item.Name
}

// History converts history.get records.
func History(samples []model.Sample, addHostName bool, inv model.Inventory) []model.Timeseries {
	return Convert(samples, addHostName, HistoryPoint, inv)
}

// Trends converts trend.get records using the aggregate selected by vt.
func Trends(trends []model.Trend, addHostName bool, vt ValueType, inv model.Inventory) []model.Timeseries {
	return Convert(trends, addHostName, TrendPoint(vt), inv)
}

// HistoryPoint extracts the raw value and converts the clock to milliseconds.
func HistoryPoint(s model.Sample) model.Datapoint {
	return model.Datapoint{Value: ParseNumber(s.Value), TimestampMs: s.Clock * 1000}
}

// ValueType selects which aggregate of a trend record to use.
type ValueType string

const (
	ValueMin ValueType = "min"
	ValueMax ValueType = "max"
	ValueAvg ValueType = "avg"
)

// ParseValueType normalizes s. Anything other than min, max or avg yields avg.
func ParseValueType(s string) ValueType {
	switch vt := ValueType(strings.ToLower(strings.TrimSpace(s))); vt {
	case ValueMin, ValueMax, ValueAvg:
		return vt
	default:
		return ValueAvg
	}
}

// TrendPoint returns an extractor for the aggregate selected by vt.
// Unknown selectors use the average.
func TrendPoint(vt ValueType) func(model.Trend) model.Datapoint {
	return func(t model.Trend) model.Datapoint {
		var raw string
		switch vt {
		case ValueMin:
			raw = t.ValueMin
		case ValueMax:
			raw = t.ValueMax
		default:
			raw = t.ValueAvg
		}
		return model.Datapoint{Value: ParseNumber(raw), TimestampMs: t.Clock * 1000}
	}
}

// ParseNumber coerces a raw sample value the way a JavaScript Number() call
// would. Blank input is 0, "Infinity" keeps its sign, 0x/0o/0b prefixes
// select a radix, and anything else that is not a plain decimal literal is
// NaN. It never fails.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		if base := radixOf(s[1]); base != 0 {
			return parseRadix(s[2:], base)
		}
	}
	if !isDecimalLiteral(s) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return v
}

func radixOf(c byte) int {
	switch c {
	case 'x', 'X':
		return 16
	case 'o', 'O':
		return 8
	case 'b', 'B':
		return 2
	}
	return 0
}

// parseRadix reads unsigned digits in base. Values past uint64 are
// accumulated as floats.
func parseRadix(digits string, base int) float64 {
	n, err := strconv.ParseUint(digits, base, 64)
	if err == nil {
		return float64(n)
	}
	if !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	var v float64
	for _, c := range []byte(digits) {
		d, err := strconv.ParseUint(string(c), base, 8)
		if err != nil {
			return math.NaN()
		}
		v = v*float64(base) + float64(d)
	}
	return v
}

// isDecimalLiteral reports whether s is [+-]digits[.digits][e[+-]digits]
// with at least one mantissa digit on either side of the point. It rejects
// the extras strconv accepts, such as underscores, hex floats and inf/nan.
func isDecimalLiteral(s string) bool {
	i := 0
	if s[i] == '+' || s[i] == '-' {
		i++
	}
	mantissa := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		mantissa++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			mantissa++
		}
	}
	if mantissa == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
