package store

import (
	"context"
	"database/sql"
	"time"
)

// ChangeEvent reports that settings were modified since the last poll.
type ChangeEvent struct {
	UpdatedAt string
	Settings  BridgeSettings
}

// Watch polls the settings table for changes and emits the reloaded settings
// on the returned channel. The caller must cancel ctx to terminate the
// watcher. The provided interval is clamped to a minimum of 500ms.
func (s *Store) Watch(ctx context.Context, interval time.Duration) (<-chan ChangeEvent, error) {
	if s == nil {
		return nil, sql.ErrConnDone
	}

	if interval <= 0 {
		interval = time.Second
	}
	if interval < 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}

	out := make(chan ChangeEvent, 1)

	initial, err := s.lastUpdate(ctx)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(out)

		last := initial
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				next, err := s.lastUpdate(ctx)
				if err != nil || next == last {
					continue
				}
				cfg, err := s.LoadBridgeSettings(ctx)
				if err != nil {
					continue
				}
				last = next
				select {
				case out <- ChangeEvent{UpdatedAt: next, Settings: cfg}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) lastUpdate(ctx context.Context) (string, error) {
	var marker string
	err := s.db.QueryRowContext(ctx, `
        SELECT IFNULL(MAX(updated_at), '')
        FROM settings
        WHERE instance_name = ?
    `, s.instanceName).Scan(&marker)
	return marker, err
}
