package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
)

// DiskFormatVersion is bumped whenever PluginDescription gains a field that
// older documents cannot provide.
const DiskFormatVersion = 1

type diskDocument struct {
	Version int                           `json:"version"`
	Plugins map[string]*PluginDescription `json:"plugins"`
}

// DiskStore persists the plugin metadata map as one JSON document.
type DiskStore struct {
	path string
}

// NewDiskStore returns a store backed by the file at path.
func NewDiskStore(path string) *DiskStore {
	return &DiskStore{path: path}
}

// Path returns the backing file location.
func (s *DiskStore) Path() string { return s.path }

// Load reads the persisted map. A missing, unreadable, corrupt or
// out-of-date document yields an empty map; the problem is logged.
func (s *DiskStore) Load() map[string]*PluginDescription {
	out := make(map[string]*PluginDescription)
	if s == nil || s.path == "" {
		return out
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[Plugins] disk cache read %s: %v", s.path, err)
		}
		return out
	}

	var doc diskDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("[Plugins] disk cache %s is corrupt, ignoring: %v", s.path, err)
		return out
	}
	if doc.Version != DiskFormatVersion {
		log.Printf("[Plugins] disk cache %s has version %d, want %d; ignoring", s.path, doc.Version, DiskFormatVersion)
		return out
	}

	for uri, desc := range doc.Plugins {
		if desc == nil || desc.Bundle == "" {
			continue
		}
		if desc.URI == "" {
			desc.URI = uri
		}
		out[uri] = desc
	}
	return out
}

// Save writes the whole map atomically through a temporary file.
func (s *DiskStore) Save(plugins map[string]*PluginDescription) error {
	if s == nil || s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(diskDocument{Version: DiskFormatVersion, Plugins: plugins}, "", "  ")
	if err != nil {
		return fmt.Errorf("plugins: marshal disk cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("plugins: ensure cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".plugins-*.json")
	if err != nil {
		return fmt.Errorf("plugins: create temp cache: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("plugins: write temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("plugins: close temp cache: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("plugins: replace disk cache: %w", err)
	}
	return nil
}

// Delete removes the document. A missing file is not an error.
func (s *DiskStore) Delete() error {
	if s == nil || s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("plugins: delete disk cache: %w", err)
	}
	return nil
}
