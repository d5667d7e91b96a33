package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tinytelemetry/zquery/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(styled bool, headers ...string) *table.Table {
	t := table.New().Headers(headers...)
	if !styled {
		return t.Border(lipgloss.HiddenBorder())
	}
	return t.
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func renderItems(items []model.ResolvedItem, styled bool) string {
	if len(items) == 0 {
		return "no items matched"
	}
	t := newTable(styled, "HOST", "ITEM", "ITEM ID", "APPLICATIONS")
	for _, it := range items {
		t.Row(it.HostName, it.Name, it.ID, strings.Join(it.Applications, ","))
	}
	return t.String() + fmt.Sprintf("\n%d item(s)", len(items))
}

func renderSeries(series []model.Timeseries, styled bool) string {
	if len(series) == 0 {
		return "no series"
	}
	t := newTable(styled, "SERIES", "POINTS", "FIRST", "LAST", "LAST VALUE")
	for _, ts := range series {
		first, last, value := "-", "-", "-"
		if n := len(ts.Datapoints); n > 0 {
			first = formatMs(ts.Datapoints[0].TimestampMs)
			last = formatMs(ts.Datapoints[n-1].TimestampMs)
			value = formatValue(ts.Datapoints[n-1].Value)
		}
		t.Row(ts.Label, strconv.Itoa(len(ts.Datapoints)), first, last, value)
	}
	return t.String()
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "null"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
