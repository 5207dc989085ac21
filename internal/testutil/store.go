// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	configstore "github.com/hmibridge/hmibridge/internal/config/store"
)

// OpenStore opens a settings store for instance in a temporary directory
// and closes it when the test ends.
func OpenStore(t *testing.T, instance string) *configstore.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "config.db")
	store, err := configstore.Open(configstore.Options{InstanceName: instance, DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
