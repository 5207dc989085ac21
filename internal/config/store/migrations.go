package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
)

type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{1, "settings_updated_at_index", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS settings_updated_at ON settings(instance_name, updated_at)`)
		return err
	}},
	{2, "bundle_roots_json", migrateBundleRootsToJSON},
}

// applyMigrations runs every migration newer than the recorded version, each
// in its own transaction.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, `SELECT IFNULL(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("config: read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("config: begin migration %d: %w", m.version, err)
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("config: migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("config: record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("config: commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// migrateBundleRootsToJSON rewrites bundle roots stored as a path-list
// string into the JSON array form.
func migrateBundleRootsToJSON(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT instance_name, value FROM settings WHERE key = ?`, KeyBundleRoots)
	if err != nil {
		return err
	}
	type legacy struct{ instance, value string }
	var pending []legacy
	for rows.Next() {
		instance, value, err := scanStringPair(rows)
		if err != nil {
			rows.Close()
			return err
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" && !strings.HasPrefix(trimmed, "[") {
			pending = append(pending, legacy{instance, trimmed})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, row := range pending {
		var roots []string
		for _, part := range filepath.SplitList(row.value) {
			if part = strings.TrimSpace(part); part != "" {
				roots = append(roots, part)
			}
		}
		encoded, err := encodeJSONString(roots)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE settings SET value = ?, updated_at = CURRENT_TIMESTAMP
			WHERE instance_name = ? AND key = ?
		`, encoded, row.instance, KeyBundleRoots); err != nil {
			return err
		}
	}
	return nil
}
