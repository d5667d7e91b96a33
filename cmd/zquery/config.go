package main

import (
	"time"

	"github.com/tinytelemetry/zquery/internal/model"
)

const (
	defaultBindHost         = "127.0.0.1"
	defaultAPIPort          = 3000
	defaultLogLevel         = model.DefaultLogLevel
	defaultQueryTimeout     = model.DefaultQueryTimeout
	defaultHistoryRetention = model.DefaultHistoryRetention // days, 0 = disabled
	defaultFilterCacheSize  = model.DefaultFilterCacheSize
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	LogLevel         string        `mapstructure:"log-level"`
	DBPath           string        `mapstructure:"db-path"`
	APIEnabled       bool          `mapstructure:"api-enabled"`
	APIPort          int           `mapstructure:"api-port"`
	APIAddr          string        `mapstructure:"api-addr"`
	MetricsEnabled   bool          `mapstructure:"metrics-enabled"`
	SocketEnabled    bool          `mapstructure:"socket-enabled"`
	SocketPath       string        `mapstructure:"socket-path"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout"`
	InventoryFile    string        `mapstructure:"inventory-file"`
	HistoryRetention int           `mapstructure:"history-retention"`
	FilterCacheSize  int           `mapstructure:"filter-cache-size"`
	ConfigPath       string        `mapstructure:"-"` // not from config file
}
