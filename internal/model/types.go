package model

import "errors"

// Group is a host group from the inventory snapshot.
type Group struct {
	ID   string `json:"groupid" yaml:"groupid"`
	Name string `json:"name" yaml:"name"`
}

// Host is a monitored host. Groups lists the IDs of the groups it belongs to.
type Host struct {
	ID     string   `json:"hostid" yaml:"hostid"`
	Name   string   `json:"name" yaml:"name"`
	Groups []string `json:"groups" yaml:"groups"`
}

// Application groups items. Items lists the IDs of its member items.
type Application struct {
	ID    string   `json:"applicationid" yaml:"applicationid"`
	Name  string   `json:"name" yaml:"name"`
	Items []string `json:"items" yaml:"items"`
}

// Item is a single monitored metric owned by one host.
type Item struct {
	ID           string   `json:"itemid" yaml:"itemid"`
	Name         string   `json:"name" yaml:"name"`
	HostID       string   `json:"hostid" yaml:"hostid"`
	Applications []string `json:"applications" yaml:"applications"`
}

// ResolvedItem pairs an item with the name of the host it resolved through.
// It is produced per resolution and never written back into a snapshot.
type ResolvedItem struct {
	Item
	HostName string `json:"host"`
}

// Sample is a raw history record as returned by history.get.
// Value is kept as text; conversion coerces it to a number. The JSON
// decoder also takes numeric itemid/value and a string clock.
type Sample struct {
	ItemID string `json:"itemid"`
	Value  string `json:"value"`
	Clock  int64  `json:"clock"`
}

// ItemKey returns the item the sample belongs to.
func (s Sample) ItemKey() string { return s.ItemID }

// Trend is a pre-aggregated record as returned by trend.get. It decodes
// with the same field leniency as Sample.
type Trend struct {
	ItemID   string `json:"itemid"`
	ValueMin string `json:"value_min"`
	ValueMax string `json:"value_max"`
	ValueAvg string `json:"value_avg"`
	Clock    int64  `json:"clock"`
}

// ItemKey returns the item the trend record belongs to.
func (t Trend) ItemKey() string { return t.ItemID }

// Target holds the four raw filter strings of a query.
// A filter wrapped in slashes (/pattern/flags) is a pattern, anything else
// is compared literally. An empty Application means no application filter.
type Target struct {
	Group       string `json:"group"`
	Host        string `json:"host"`
	Application string `json:"application"`
	Item        string `json:"item"`
}

// Query modes.
const (
	ModeHistory = "history"
	ModeTrends  = "trends"
)

// ErrInvalidMode is returned for a query mode other than history or trends.
var ErrInvalidMode = errors.New("invalid query mode")

// QueryRequest is a full timeseries query: which items, which source and
// which time range (unix seconds, inclusive; zero means unbounded).
type QueryRequest struct {
	Target
	Mode        string `json:"mode"`
	ValueType   string `json:"value_type"`
	AddHostName bool   `json:"add_host_name"`
	From        int64  `json:"from"`
	To          int64  `json:"to"`
}
