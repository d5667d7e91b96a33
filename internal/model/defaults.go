package model

import "time"

// Shared defaults used by the server binary and its components.
const (
	DefaultQueryTimeout     = 30 * time.Second
	DefaultHistoryRetention = 90 // days, 0 = disabled
	DefaultFilterCacheSize  = 256
	DefaultLogLevel         = "info"
)
