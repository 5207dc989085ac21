package store

import (
	"context"
	"database/sql"
	"fmt"
)

// seedDefaults registers the instance and inserts default settings that are
// not present yet. Existing values are never overwritten.
func seedDefaults(ctx context.Context, db *sql.DB, instanceName string) error {
	values, err := bridgeValues(DefaultBridgeSettings())
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("config: begin seed transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO instances (name)
		VALUES (?)
		ON CONFLICT(name) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
	`, instanceName); err != nil {
		tx.Rollback()
		return fmt.Errorf("config: seed instance: %w", err)
	}

	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (instance_name, key, value, updated_at)
			VALUES (?, ?, ?, STRFTIME('%Y-%m-%dT%H:%M:%fZ', 'now'))
			ON CONFLICT(instance_name, key) DO NOTHING
		`, instanceName, key, value); err != nil {
			tx.Rollback()
			return fmt.Errorf("config: seed setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("config: commit seed transaction: %w", err)
	}

	return nil
}
