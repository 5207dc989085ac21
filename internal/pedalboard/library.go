package pedalboard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hmibridge/hmibridge/internal/ttl"
)

const bundleSuffix = ".pedalboard"

// Entry is one pedalboard bundle in the library, indexed in host order.
type Entry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Path  string `json:"path"`
}

// Library enumerates the pedalboards under a root directory in the same
// order the host does: sorted lexicographically by path.
type Library struct {
	root     string
	resolver Resolver
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(root string, resolver Resolver) *Library {
	return &Library{root: root, resolver: resolver}
}

// Root returns the library directory.
func (l *Library) Root() string { return l.root }

// List returns the pedalboard bundles. A missing root is empty.
func (l *Library) List() ([]Entry, error) {
	dirents, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("pedalboard: read library %s: %w", l.root, err)
	}

	var paths []string
	for _, d := range dirents {
		if d.IsDir() && strings.HasSuffix(d.Name(), bundleSuffix) {
			paths = append(paths, filepath.Join(l.root, d.Name()))
		}
	}
	sort.Strings(paths)

	entries := make([]Entry, 0, len(paths))
	for i, p := range paths {
		entries = append(entries, Entry{
			Index: i,
			Name:  strings.TrimSuffix(filepath.Base(p), bundleSuffix),
			Path:  p,
		})
	}
	return entries, nil
}

// Open loads a pedalboard by reference: its index in List order, a bundle
// path, a file:// IRI of the bundle, or the bundle's base name.
func (l *Library) Open(ctx context.Context, ref string) (*Pedalboard, error) {
	entry, err := l.Find(ref)
	if err != nil {
		return nil, err
	}
	return Load(ctx, entry.Path, l.resolver)
}

// Find resolves ref to a library entry.
func (l *Library) Find(ref string) (Entry, error) {
	entries, err := l.List()
	if err != nil {
		return Entry{}, err
	}
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx < 0 || idx >= len(entries) {
			return Entry{}, fmt.Errorf("pedalboard: index %d out of range (%d pedalboards)", idx, len(entries))
		}
		return entries[idx], nil
	}

	target := strings.TrimRight(ref, "/")
	if path, ok := ttl.FilePath(target); ok {
		target = path
	}
	for _, e := range entries {
		if e.Path == target || e.Name == target || filepath.Base(e.Path) == target {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("pedalboard: %q not found in %s", ref, l.root)
}

// Tracker follows the pedalboard currently loaded on the host and keeps its
// resolved pedal list up to date with live changes.
type Tracker struct {
	library *Library

	mu      sync.RWMutex
	current *Pedalboard
	index   int
}

// NewTracker returns a tracker with no pedalboard loaded.
func NewTracker(library *Library) *Tracker {
	return &Tracker{library: library, index: -1}
}

// Current returns the loaded pedalboard and its index, or nil.
func (t *Tracker) Current() (*Pedalboard, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.index
}

// Loaded switches to the pedalboard named by identifier, falling back to
// index when the identifier is empty or unknown. The pedal list is
// resolved immediately so live deltas have something to apply to.
func (t *Tracker) Loaded(ctx context.Context, index int, identifier string) (*Pedalboard, error) {
	var (
		pb  *Pedalboard
		err error
	)
	if identifier != "" {
		pb, err = t.library.Open(ctx, identifier)
	}
	if pb == nil {
		pb, err = t.library.Open(ctx, strconv.Itoa(index))
	}
	if err != nil {
		return nil, err
	}
	if _, err := pb.Pedals(ctx); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.current, t.index = pb, index
	t.mu.Unlock()
	return pb, nil
}

// Cleared forgets the current pedalboard.
func (t *Tracker) Cleared() {
	t.mu.Lock()
	t.current, t.index = nil, -1
	t.mu.Unlock()
}

// ApplyControlValue forwards to the current pedalboard.
func (t *Tracker) ApplyControlValue(position int, symbol string, value float64) bool {
	pb, _ := t.Current()
	return pb != nil && pb.ApplyControlValue(position, symbol, value)
}

// ApplyFilePath forwards to the current pedalboard.
func (t *Tracker) ApplyFilePath(instance, paramURI, path string) bool {
	pb, _ := t.Current()
	return pb != nil && pb.ApplyFilePath(instance, paramURI, path)
}
