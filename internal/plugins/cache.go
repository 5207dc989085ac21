package plugins

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Options configures a Cache.
type Options struct {
	// Roots are the bundle directories, in precedence order.
	Roots []string
	// Store persists extracted descriptions. Nil disables persistence.
	Store *DiskStore
}

// Stats reports cache activity counters.
type Stats struct {
	ScanCount   int64 `json:"scan_count"`
	Extractions int64 `json:"extractions"`
	Entries     int   `json:"entries"`
}

// Cache resolves plugin identifiers to descriptions, extracting on first
// use and persisting the whole map in the background.
type Cache struct {
	roots []string
	store *DiskStore

	mu      sync.RWMutex
	plugins map[string]*PluginDescription
	index   map[string]string

	// buildMu serialises the one-time disk load and bundle scan so that
	// concurrent first lookups wait instead of scanning twice.
	buildMu    sync.Mutex
	diskLoaded bool
	scanned    bool

	scanCount   atomic.Int64
	extractions atomic.Int64

	// persistMu orders Flush's snapshot and save against Refresh's delete
	// so a stale snapshot never lands after the document is removed.
	persistMu     sync.Mutex
	afterSnapshot func()

	dirty   atomic.Bool
	persist chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCache constructs an empty cache.
func NewCache(opts Options) *Cache {
	return &Cache{
		roots:   append([]string(nil), opts.Roots...),
		store:   opts.Store,
		plugins: make(map[string]*PluginDescription),
		index:   make(map[string]string),
		persist: make(chan struct{}, 1),
	}
}

// Get returns the description of uri. The second result is false when no
// installed bundle provides the plugin.
func (c *Cache) Get(ctx context.Context, uri string) (*PluginDescription, bool) {
	if desc, ok := c.lookup(uri); ok {
		return desc, true
	}
	if err := ctx.Err(); err != nil {
		return nil, false
	}

	bundle, ok := c.resolve(uri)
	if desc, hit := c.lookup(uri); hit {
		return desc, true
	}
	if !ok {
		log.Printf("[Plugins] unknown plugin %s", uri)
		return nil, false
	}

	desc := Extract(uri, bundle)
	c.extractions.Add(1)

	c.mu.Lock()
	if existing, ok := c.plugins[uri]; ok {
		c.mu.Unlock()
		return existing, true
	}
	c.plugins[uri] = desc
	c.mu.Unlock()

	c.schedulePersist()
	return desc, true
}

func (c *Cache) lookup(uri string) (*PluginDescription, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	desc, ok := c.plugins[uri]
	return desc, ok
}

// resolve finds the bundle of uri, loading the disk document on first use
// and scanning bundle roots at most once.
func (c *Cache) resolve(uri string) (string, bool) {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	if !c.diskLoaded {
		c.diskLoaded = true
		seeded := c.store.Load()
		c.mu.Lock()
		for id, desc := range seeded {
			if _, ok := c.plugins[id]; !ok {
				c.plugins[id] = desc
			}
			if _, ok := c.index[id]; !ok {
				c.index[id] = desc.Bundle
			}
		}
		c.mu.Unlock()
		if len(seeded) > 0 {
			log.Printf("[Plugins] loaded %d cached plugin descriptions", len(seeded))
		}
	}

	c.mu.RLock()
	bundle, ok := c.index[uri]
	c.mu.RUnlock()
	if ok || c.scanned {
		return bundle, ok
	}

	c.scanned = true
	c.scanCount.Add(1)
	found := BuildIndex(c.roots)
	log.Printf("[Plugins] indexed %d plugins across %d roots", len(found), len(c.roots))

	c.mu.Lock()
	for id, dir := range found {
		c.index[id] = dir
	}
	bundle, ok = c.index[uri]
	c.mu.Unlock()
	return bundle, ok
}

// Refresh empties the cache and deletes the disk document; the next Get
// rebuilds the index from scratch.
func (c *Cache) Refresh() error {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.plugins = make(map[string]*PluginDescription)
	c.index = make(map[string]string)
	c.mu.Unlock()

	c.diskLoaded = false
	c.scanned = false
	c.dirty.Store(false)

	if err := c.store.Delete(); err != nil {
		return err
	}
	log.Printf("[Plugins] cache cleared")
	return nil
}

// Stats returns a snapshot of the activity counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.plugins)
	c.mu.RUnlock()
	return Stats{
		ScanCount:   c.scanCount.Load(),
		Extractions: c.extractions.Load(),
		Entries:     entries,
	}
}

func (c *Cache) schedulePersist() {
	if c.store == nil {
		return
	}
	c.dirty.Store(true)
	select {
	case c.persist <- struct{}{}:
	default:
	}
}

// Flush writes the current map to disk if it changed since the last write.
func (c *Cache) Flush() error {
	if c.store == nil {
		return nil
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if !c.dirty.Swap(false) {
		return nil
	}
	c.mu.RLock()
	snapshot := make(map[string]*PluginDescription, len(c.plugins))
	for id, desc := range c.plugins {
		snapshot[id] = desc
	}
	c.mu.RUnlock()
	if c.afterSnapshot != nil {
		c.afterSnapshot()
	}

	if err := c.store.Save(snapshot); err != nil {
		c.dirty.Store(true)
		return err
	}
	return nil
}

// Start launches the background writer.
func (c *Cache) Start(ctx context.Context) error {
	if c.done != nil {
		return fmt.Errorf("plugins: cache already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.writer(runCtx)
	return nil
}

func (c *Cache) writer(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.persist:
			if err := c.Flush(); err != nil {
				log.Printf("[Plugins] persist disk cache: %v", err)
			}
		}
	}
}

// Shutdown stops the writer and flushes pending changes.
func (c *Cache) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := c.Flush(); err != nil {
		log.Printf("[Plugins] persist disk cache: %v", err)
	}
	return nil
}
