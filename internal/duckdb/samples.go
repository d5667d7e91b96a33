package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/zquery/internal/model"
)

// InsertHistory appends raw history records in a single transaction.
func (s *Store) InsertHistory(samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO history (itemid, clock, value) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range samples {
			if _, err := stmt.ExecContext(ctx, r.ItemID, r.Clock, r.Value); err != nil {
				return fmt.Errorf("duckdb: insert history (item=%s clock=%d): %w", r.ItemID, r.Clock, err)
			}
		}
		return nil
	})
}

// InsertTrends appends trend records in a single transaction.
func (s *Store) InsertTrends(trends []model.Trend) error {
	if len(trends) == 0 {
		return nil
	}
	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO trends (itemid, clock, value_min, value_max, value_avg) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range trends {
			if _, err := stmt.ExecContext(ctx, r.ItemID, r.Clock, r.ValueMin, r.ValueMax, r.ValueAvg); err != nil {
				return fmt.Errorf("duckdb: insert trend (item=%s clock=%d): %w", r.ItemID, r.Clock, err)
			}
		}
		return nil
	})
}

// sampleFilter builds the WHERE clause shared by History and Trends.
// from and to are inclusive unix seconds; zero leaves that side open.
func sampleFilter(itemIDs []string, from, to int64) (string, []interface{}) {
	placeholders := make([]string, len(itemIDs))
	args := make([]interface{}, 0, len(itemIDs)+2)
	for i, id := range itemIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	where := "WHERE itemid IN (" + strings.Join(placeholders, ", ") + ")"
	if from > 0 {
		where += " AND clock >= ?"
		args = append(args, from)
	}
	if to > 0 {
		where += " AND clock <= ?"
		args = append(args, to)
	}
	return where, args
}

// History returns history records of the given items ordered by clock,
// then by insertion order.
func (s *Store) History(itemIDs []string, from, to int64) ([]model.Sample, error) {
	if len(itemIDs) == 0 {
		return []model.Sample{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := sampleFilter(itemIDs, from, to)
	out := []model.Sample{}
	err := scanRows(ctx, s.db, "SELECT itemid, clock, COALESCE(value, '') FROM history "+where+" ORDER BY clock, seq",
		func(rows *sql.Rows) error {
			var r model.Sample
			if err := rows.Scan(&r.ItemID, &r.Clock, &r.Value); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		}, args...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Trends returns trend records of the given items ordered by clock,
// then by insertion order.
func (s *Store) Trends(itemIDs []string, from, to int64) ([]model.Trend, error) {
	if len(itemIDs) == 0 {
		return []model.Trend{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := sampleFilter(itemIDs, from, to)
	out := []model.Trend{}
	query := "SELECT itemid, clock, COALESCE(value_min, ''), COALESCE(value_max, ''), COALESCE(value_avg, '') FROM trends " +
		where + " ORDER BY clock, seq"
	err := scanRows(ctx, s.db, query, func(rows *sql.Rows) error {
		var r model.Trend
		if err := rows.Scan(&r.ItemID, &r.Clock, &r.ValueMin, &r.ValueMax, &r.ValueAvg); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBefore removes history and trend records with a clock older than
// cutoff and returns the number of rows deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	var total int64
	err := s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		for _, table := range []string{"history", "trends"} {
			res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE clock < ?", cutoff.Unix())
			if err != nil {
				return fmt.Errorf("duckdb: expire %s: %w", table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
