package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tinytelemetry/zquery/internal/inventory"
	"github.com/tinytelemetry/zquery/internal/model"
)

var inventoryTables = []string{
	"inv_groups", "inv_hosts", "inv_host_groups",
	"inv_applications", "inv_application_items",
	"inv_items", "inv_item_applications",
}

// ReplaceInventory swaps the stored inventory for inv in one transaction.
// Entity order is preserved so LoadInventory returns the same ordering.
func (s *Store) ReplaceInventory(inv model.Inventory) error {
	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		for _, table := range inventoryTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("duckdb: clear %s: %w", table, err)
			}
		}

		for i, g := range inv.Groups() {
			if _, err := tx.ExecContext(ctx, "INSERT INTO inv_groups (groupid, name, pos) VALUES (?, ?, ?)", g.ID, g.Name, i); err != nil {
				return fmt.Errorf("duckdb: insert group %s: %w", g.ID, err)
			}
		}
		for i, h := range inv.Hosts() {
			if _, err := tx.ExecContext(ctx, "INSERT INTO inv_hosts (hostid, name, pos) VALUES (?, ?, ?)", h.ID, h.Name, i); err != nil {
				return fmt.Errorf("duckdb: insert host %s: %w", h.ID, err)
			}
			if err := insertLinks(ctx, tx, "INSERT INTO inv_host_groups (hostid, groupid, pos) VALUES (?, ?, ?)", h.ID, h.Groups); err != nil {
				return err
			}
		}
		for i, a := range inv.Applications() {
			if _, err := tx.ExecContext(ctx, "INSERT INTO inv_applications (applicationid, name, pos) VALUES (?, ?, ?)", a.ID, a.Name, i); err != nil {
				return fmt.Errorf("duckdb: insert application %s: %w", a.ID, err)
			}
			if err := insertLinks(ctx, tx, "INSERT INTO inv_application_items (applicationid, itemid, pos) VALUES (?, ?, ?)", a.ID, a.Items); err != nil {
				return err
			}
		}
		for i, it := range inv.Items() {
			if _, err := tx.ExecContext(ctx, "INSERT INTO inv_items (itemid, name, hostid, pos) VALUES (?, ?, ?, ?)", it.ID, it.Name, it.HostID, i); err != nil {
				return fmt.Errorf("duckdb: insert item %s: %w", it.ID, err)
			}
			if err := insertLinks(ctx, tx, "INSERT INTO inv_item_applications (itemid, applicationid, pos) VALUES (?, ?, ?)", it.ID, it.Applications); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertLinks(ctx context.Context, tx *sql.Tx, stmt, owner string, ids []string) error {
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, stmt, owner, id, i); err != nil {
			return fmt.Errorf("duckdb: link %s -> %s: %w", owner, id, err)
		}
	}
	return nil
}

// LoadInventory reads the stored inventory into an immutable snapshot.
// All tables are read under one read lock, so the snapshot is never torn
// by a concurrent ReplaceInventory.
func (s *Store) LoadInventory() (*inventory.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	hostGroups, err := loadLinks(ctx, s.db, "SELECT hostid, groupid FROM inv_host_groups ORDER BY hostid, pos")
	if err != nil {
		return nil, err
	}
	appItems, err := loadLinks(ctx, s.db, "SELECT applicationid, itemid FROM inv_application_items ORDER BY applicationid, pos")
	if err != nil {
		return nil, err
	}
	itemApps, err := loadLinks(ctx, s.db, "SELECT itemid, applicationid FROM inv_item_applications ORDER BY itemid, pos")
	if err != nil {
		return nil, err
	}

	var groups []model.Group
	err = scanRows(ctx, s.db, "SELECT groupid, name FROM inv_groups ORDER BY pos", func(rows *sql.Rows) error {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return err
		}
		groups = append(groups, g)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var hosts []model.Host
	err = scanRows(ctx, s.db, "SELECT hostid, name FROM inv_hosts ORDER BY pos", func(rows *sql.Rows) error {
		var h model.Host
		if err := rows.Scan(&h.ID, &h.Name); err != nil {
			return err
		}
		h.Groups = hostGroups[h.ID]
		hosts = append(hosts, h)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var apps []model.Application
	err = scanRows(ctx, s.db, "SELECT applicationid, name FROM inv_applications ORDER BY pos", func(rows *sql.Rows) error {
		var a model.Application
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return err
		}
		a.Items = appItems[a.ID]
		apps = append(apps, a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var items []model.Item
	err = scanRows(ctx, s.db, "SELECT itemid, name, hostid FROM inv_items ORDER BY pos", func(rows *sql.Rows) error {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.HostID); err != nil {
			return err
		}
		it.Applications = itemApps[it.ID]
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return inventory.New(groups, hosts, apps, items)
}

func loadLinks(ctx context.Context, db *sql.DB, query string) (map[string][]string, error) {
	links := make(map[string][]string)
	err := scanRows(ctx, db, query, func(rows *sql.Rows) error {
		var owner, id string
		if err := rows.Scan(&owner, &id); err != nil {
			return err
		}
		links[owner] = append(links[owner], id)
		return nil
	})
	return links, err
}

func scanRows(ctx context.Context, db *sql.DB, query string, fn func(*sql.Rows) error, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("duckdb: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return fmt.Errorf("duckdb: scan: %w", err)
		}
	}
	return rows.Err()
}
