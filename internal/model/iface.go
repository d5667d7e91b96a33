package model

// Inventory is a point-in-time, read-only view of groups, hosts,
// applications and items. Implementations must not change between calls
// made during a single resolve or convert.
type Inventory interface {
	Groups() []Group
	Hosts() []Host
	Applications() []Application
	Items() []Item
	Item(id string) (Item, bool)
	Host(id string) (Host, bool)
}

// SampleSource supplies raw history and trend records for a set of items.
type SampleSource interface {
	History(itemIDs []string, from, to int64) ([]Sample, error)
	Trends(itemIDs []string, from, to int64) ([]Trend, error)
}

// ReadAPI is the unified read contract for read surfaces (HTTP and socket RPC).
type ReadAPI interface {
	ResolveItems(target Target) ([]ResolvedItem, error)
	QueryTimeseries(req QueryRequest) ([]Timeseries, error)
}
