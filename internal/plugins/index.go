package plugins

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/hmibridge/hmibridge/internal/ttl"
)

const manifestFile = "manifest.ttl"

// BuildIndex maps plugin identifiers to bundle directories by reading only
// the manifest of every immediate subdirectory of roots. Earlier roots take
// precedence; missing roots and unreadable manifests are skipped.
func BuildIndex(roots []string) map[string]string {
	index := make(map[string]string)
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Printf("[Plugins] skip bundle root %s: %v", root, err)
			}
			continue
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			bundle := filepath.Join(root, entry.Name())
			for _, uri := range manifestPlugins(bundle) {
				if _, exists := index[uri]; !exists {
					index[uri] = bundle
				}
			}
		}
	}
	return index
}

func manifestPlugins(bundle string) []string {
	path := filepath.Join(bundle, manifestFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	g, err := ttl.ParseFile(path)
	if err != nil {
		log.Printf("[Plugins] skip bundle %s: %v", bundle, err)
		return nil
	}
	var uris []string
	for _, subj := range g.SubjectsOfType(ttl.LV2Plugin) {
		if subj.Kind == ttl.KindIRI {
			uris = append(uris, subj.Value)
		}
	}
	return uris
}
