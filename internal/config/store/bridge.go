package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hmibridge/hmibridge/internal/validate"
)

// Setting keys persisted in the settings table.
const (
	KeyListenAddr     = "bridge.listen_addr"
	KeyMaxFrameBytes  = "bridge.max_frame_bytes"
	KeyWriteTimeout   = "bridge.write_timeout"
	KeyBundleRoots    = "plugins.bundle_roots"
	KeyPluginCache    = "plugins.cache_path"
	KeyPedalboardsDir = "pedalboards.dir"
	KeyEventFeedAddr  = "eventfeed.addr"
)

// BridgeSettings is the typed view of the daemon settings.
type BridgeSettings struct {
	ListenAddr     string        `yaml:"listen_addr" json:"listen_addr"`
	MaxFrameBytes  int           `yaml:"max_frame_bytes" json:"max_frame_bytes"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	BundleRoots    []string      `yaml:"bundle_roots" json:"bundle_roots"`
	PluginCache    string        `yaml:"plugin_cache,omitempty" json:"plugin_cache,omitempty"`
	PedalboardsDir string        `yaml:"pedalboards_dir" json:"pedalboards_dir"`
	EventFeedAddr  string        `yaml:"event_feed_addr" json:"event_feed_addr"`
}

// DefaultBridgeSettings returns the values seeded into a new store.
func DefaultBridgeSettings() BridgeSettings {
	return BridgeSettings{
		ListenAddr:     ":9898",
		MaxFrameBytes:  64 * 1024,
		WriteTimeout:   5 * time.Second,
		BundleRoots:    []string{"~/.lv2", "/usr/lib/lv2"},
		PedalboardsDir: "~/.pedalboards",
		EventFeedAddr:  "127.0.0.1:9899",
	}
}

// Validate reports the first unusable value.
func (b BridgeSettings) Validate() error {
	switch {
	case strings.TrimSpace(b.ListenAddr) == "":
		return fmt.Errorf("config: %s must not be empty", KeyListenAddr)
	case b.MaxFrameBytes <= 0:
		return fmt.Errorf("config: %s must be positive", KeyMaxFrameBytes)
	case b.WriteTimeout <= 0:
		return fmt.Errorf("config: %s must be positive", KeyWriteTimeout)
	}
	if err := validate.ListenAddr(b.ListenAddr); err != nil {
		return fmt.Errorf("config: %s: %w", KeyListenAddr, err)
	}
	if b.EventFeedAddr != "" {
		if err := validate.ListenAddr(b.EventFeedAddr); err != nil {
			return fmt.Errorf("config: %s: %w", KeyEventFeedAddr, err)
		}
	}
	return nil
}

type settingField struct {
	get func(BridgeSettings) (string, error)
	set func(*BridgeSettings, string) error
}

var bridgeFields = map[string]settingField{
	KeyListenAddr: {
		get: func(b BridgeSettings) (string, error) { return b.ListenAddr, nil },
		set: func(b *BridgeSettings, v string) error { b.ListenAddr = strings.TrimSpace(v); return nil },
	},
	KeyMaxFrameBytes: {
		get: func(b BridgeSettings) (string, error) { return strconv.Itoa(b.MaxFrameBytes), nil },
		set: func(b *BridgeSettings, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			b.MaxFrameBytes = n
			return nil
		},
	},
	KeyWriteTimeout: {
		get: func(b BridgeSettings) (string, error) { return b.WriteTimeout.String(), nil },
		set: func(b *BridgeSettings, v string) error {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			b.WriteTimeout = d
			return nil
		},
	},
	KeyBundleRoots: {
		get: func(b BridgeSettings) (string, error) { return encodeJSONString(b.BundleRoots) },
		set: func(b *BridgeSettings, v string) error {
			if trimmed := strings.TrimSpace(v); trimmed != "" && !strings.HasPrefix(trimmed, "[") {
				// accept a comma separated list from the command line
				var roots []string
				for _, part := range strings.Split(trimmed, ",") {
					if part = strings.TrimSpace(part); part != "" {
						roots = append(roots, part)
					}
				}
				b.BundleRoots = roots
				return nil
			}
			roots, err := DecodeJSON[[]string](sql.NullString{String: v, Valid: true})
			if err != nil {
				return err
			}
			b.BundleRoots = roots
			return nil
		},
	},
	KeyPluginCache: {
		get: func(b BridgeSettings) (string, error) { return b.PluginCache, nil },
		set: func(b *BridgeSettings, v string) error { b.PluginCache = strings.TrimSpace(v); return nil },
	},
	KeyPedalboardsDir: {
		get: func(b BridgeSettings) (string, error) { return b.PedalboardsDir, nil },
		set: func(b *BridgeSettings, v string) error { b.PedalboardsDir = strings.TrimSpace(v); return nil },
	},
	KeyEventFeedAddr: {
		get: func(b BridgeSettings) (string, error) { return b.EventFeedAddr, nil },
		set: func(b *BridgeSettings, v string) error { b.EventFeedAddr = strings.TrimSpace(v); return nil },
	},
}

// SettingKeys lists the keys understood by the bridge, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(bridgeFields))
	for key := range bridgeFields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func bridgeValues(b BridgeSettings) (map[string]string, error) {
	values := make(map[string]string, len(bridgeFields))
	for key, field := range bridgeFields {
		v, err := field.get(b)
		if err != nil {
			return nil, fmt.Errorf("config: encode %s: %w", key, err)
		}
		values[key] = v
	}
	return values, nil
}

// LoadBridgeSettings returns the stored settings layered over the defaults.
func (s *Store) LoadBridgeSettings(ctx context.Context) (BridgeSettings, error) {
	raw, err := s.LoadSettings(ctx, SettingKeys()...)
	if err != nil {
		return BridgeSettings{}, err
	}

	cfg := DefaultBridgeSettings()
	for key, value := range raw {
		if err := bridgeFields[key].set(&cfg, value); err != nil {
			return BridgeSettings{}, fmt.Errorf("config: parse %s: %w", key, err)
		}
	}
	return cfg, nil
}

// SaveBridgeSettings validates and persists every bridge setting.
func (s *Store) SaveBridgeSettings(ctx context.Context, cfg BridgeSettings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	values, err := bridgeValues(cfg)
	if err != nil {
		return err
	}
	return s.SaveSettings(ctx, values)
}

// SetValue parses value for key, validates the resulting settings and
// stores the single key. Unknown keys yield NotFoundError.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	field, ok := bridgeFields[key]
	if !ok {
		return NotFoundError{Entity: "setting", Key: key}
	}

	cfg, err := s.LoadBridgeSettings(ctx)
	if err != nil {
		return err
	}
	if err := field.set(&cfg, value); err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	encoded, err := field.get(cfg)
	if err != nil {
		return fmt.Errorf("config: encode %s: %w", key, err)
	}
	return s.SaveSettings(ctx, map[string]string{key: encoded})
}
