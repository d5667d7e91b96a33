// Package duckdb persists the inventory snapshot and raw history/trend
// samples in DuckDB and serves them back to the query layer.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/zquery/internal/duckdb/migrate"
	"github.com/tinytelemetry/zquery/internal/model"
)

// Store holds the inventory and sample tables.
// Writers hold mu exclusively, so a reader never sees half an inventory.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	dbPath  string
	timeout time.Duration
}

// Option adjusts a Store at construction.
type Option func(*Store)

// WithQueryTimeout bounds every statement the store runs. Non-positive
// values keep model.DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewStore opens the database at dbPath, or an in-memory one when dbPath is
// empty, and brings its schema up to date.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	s := &Store{dbPath: dbPath, timeout: model.DefaultQueryTimeout}
	for _, opt := range opts {
		opt(s)
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	s.db = db

	ctx, cancel := s.queryCtx()
	defer cancel()
	if _, err := migrate.NewRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openDB(dbPath string) (*sql.DB, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("duckdb: create data dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open %q: %w", dbPath, err)
	}
	return db, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the database file. Empty means in-memory.
func (s *Store) DBPath() string {
	return s.dbPath
}

// Timeout returns the per-statement deadline.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// countedTables lists the tables reported by TableRowCounts. Only these
// names are ever spliced into SQL.
var countedTables = []string{
	"inv_groups", "inv_hosts", "inv_applications", "inv_items", "history", "trends",
}

var rowCountQuery = func() string {
	parts := make([]string, len(countedTables))
	for i, table := range countedTables {
		parts[i] = fmt.Sprintf("SELECT '%s' AS name, COUNT(*) AS n FROM %s", table, table)
	}
	return strings.Join(parts, " UNION ALL ")
}()

// TableRowCounts returns the row count of every stored table.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	counts := make(map[string]int64, len(countedTables))
	err := scanRows(ctx, s.db, rowCountQuery, func(rows *sql.Rows) error {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return err
		}
		counts[name] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// withTx runs fn in one transaction while holding the write lock. The
// transaction commits only if fn returns nil.
func (s *Store) withTx(fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
