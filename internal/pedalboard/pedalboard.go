// Package pedalboard resolves saved pedalboards into ordered pedal instances
// with their live parameter values.
package pedalboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hmibridge/hmibridge/internal/plugins"
	"github.com/hmibridge/hmibridge/internal/ttl"
)

// ErrNoGraph is returned when a pedalboard manifest names no instance graph.
var ErrNoGraph = errors.New("pedalboard: manifest declares no graph")

// Resolver looks up plugin metadata. *plugins.Cache satisfies it.
type Resolver interface {
	Get(ctx context.Context, uri string) (*plugins.PluginDescription, bool)
}

// PedalInstance is one plugin instance of a pedalboard. Plugin is nil when
// the plugin is not installed.
type PedalInstance struct {
	Name      string                     `json:"name"`
	PluginURI string                     `json:"plugin_uri"`
	Number    int                        `json:"number"`
	Enabled   bool                       `json:"enabled"`
	Values    map[string]float64         `json:"values"`
	FilePaths map[string]string          `json:"file_paths"`
	Plugin    *plugins.PluginDescription `json:"-"`
}

// Value returns the current value of a control, falling back to the
// plugin default.
func (p *PedalInstance) Value(symbol string) (float64, bool) {
	if v, ok := p.Values[symbol]; ok {
		return v, true
	}
	if c, ok := p.Plugin.Control(symbol); ok {
		return c.Default, true
	}
	return 0, false
}

// Files returns the plugin's file parameters with current paths filled in.
func (p *PedalInstance) Files() []plugins.FileParameter {
	if p.Plugin == nil {
		return nil
	}
	out := make([]plugins.FileParameter, 0, len(p.Plugin.Files))
	for _, f := range p.Plugin.Files {
		f.Path = p.FilePaths[f.URI]
		out = append(out, f)
	}
	return out
}

// Pedalboard is a saved pedalboard bundle. Its pedal list is parsed and
// resolved on first use and kept until the pedalboard is discarded.
type Pedalboard struct {
	Name string
	Path string

	graphFile string
	resolver  Resolver

	mu       sync.Mutex
	pedals   []*PedalInstance
	resolved bool
}

// Load reads the pedalboard manifest at dir. The instance graph is parsed
// lazily by Pedals.
func Load(ctx context.Context, dir string, resolver Resolver) (*Pedalboard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("pedalboard: resolve %s: %w", dir, err)
	}
	manifest, err := ttl.ParseFile(filepath.Join(abs, "manifest.ttl"))
	if err != nil {
		return nil, fmt.Errorf("pedalboard: %w", err)
	}

	graphFile, ok := mainGraphFile(manifest)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGraph, abs)
	}

	pb := &Pedalboard{
		Path:      abs,
		graphFile: graphFile,
		resolver:  resolver,
	}
	pb.Name = manifestName(manifest)
	if pb.Name == "" {
		pb.Name = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}
	return pb, nil
}

func mainGraphFile(manifest *ttl.Graph) (string, bool) {
	var candidates []ttl.Term
	candidates = append(candidates, manifest.SubjectsOfType(ttl.ModPedalPedalboard)...)
	candidates = append(candidates, manifest.SubjectsOfType(ttl.IngenGraph)...)
	for _, subj := range candidates {
		if ref := manifest.Object(subj, ttl.RDFSSeeAlso); !ref.IsZero() {
			if path, ok := ttl.FilePath(ref.Value); ok {
				return path, true
			}
		}
		if path, ok := ttl.FilePath(subj.Value); ok && strings.HasSuffix(path, ".ttl") {
			return path, true
		}
	}
	return "", false
}

func manifestName(manifest *ttl.Graph) string {
	for _, subj := range manifest.SubjectsOfType(ttl.ModPedalPedalboard) {
		if name := manifest.Text(subj, ttl.DOAPName); name != "" {
			return name
		}
	}
	return ""
}

// Pedals returns the pedal instances ordered by instance number. The list is
// computed once; later calls return the same instances, including any
// deltas applied since. ApplyControlValue and ApplyFilePath keep writing to
// the returned instances' maps, so readers running alongside live updates
// must use Snapshot or ControlValue instead.
func (pb *Pedalboard) Pedals(ctx context.Context) ([]*PedalInstance, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.resolveLocked(ctx)
}

// Snapshot resolves the pedals like Pedals and returns copies whose Values
// and FilePaths are detached from later updates.
func (pb *Pedalboard) Snapshot(ctx context.Context) ([]*PedalInstance, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pedals, err := pb.resolveLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*PedalInstance, 0, len(pedals))
	for _, p := range pedals {
		c := *p
		c.Values = make(map[string]float64, len(p.Values))
		for k, v := range p.Values {
			c.Values[k] = v
		}
		c.FilePaths = make(map[string]string, len(p.FilePaths))
		for k, v := range p.FilePaths {
			c.FilePaths[k] = v
		}
		out = append(out, &c)
	}
	return out, nil
}

// ControlValue returns the current value of symbol on the pedal at ordinal
// position, falling back to the plugin default. It reports false before the
// pedals are resolved.
func (pb *Pedalboard) ControlValue(position int, symbol string) (float64, bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.resolved || position < 0 || position >= len(pb.pedals) {
		return 0, false
	}
	return pb.pedals[position].Value(symbol)
}

func (pb *Pedalboard) resolveLocked(ctx context.Context) ([]*PedalInstance, error) {
	if pb.resolved {
		return pb.pedals, nil
	}

	graph, err := ttl.ParseFile(pb.graphFile)
	if err != nil {
		return nil, fmt.Errorf("pedalboard: %s: %w", pb.Name, err)
	}
	if name := graphName(graph); name != "" {
		pb.Name = name
	}

	pedals := instancesOf(graph, pb.Path)
	for _, p := range pedals {
		paths, err := readStateFile(StateFilePath(pb.Path, p.Number))
		if err != nil {
			log.Printf("[Pedalboard] %s: state for %s: %v", pb.Name, p.Name, err)
		}
		for uri, path := range paths {
			p.FilePaths[uri] = path
		}
		if pb.resolver != nil {
			if desc, ok := pb.resolver.Get(ctx, p.PluginURI); ok {
				p.Plugin = desc
			}
		}
	}

	pb.pedals = pedals
	pb.resolved = true
	return pb.pedals, nil
}

func graphName(g *ttl.Graph) string {
	for _, subj := range g.SubjectsOfType(ttl.IngenGraph) {
		if name := g.Text(subj, ttl.DOAPName); name != "" {
			return name
		}
	}
	return ""
}

// instancesOf returns the blocks of g sorted by instance number, matching
// the order in which the host enumerates them.
func instancesOf(g *ttl.Graph, dir string) []*PedalInstance {
	base := ttl.DirBase(dir)

	var pedals []*PedalInstance
	for _, block := range g.SubjectsOfType(ttl.IngenBlock) {
		proto := g.Object(block, ttl.LV2Prototype)
		if proto.Kind != ttl.KindIRI || proto.Value == "" {
			continue
		}
		p := &PedalInstance{
			Name:      strings.TrimPrefix(block.Value, base),
			PluginURI: proto.Value,
			Enabled:   true,
			Values:    make(map[string]float64),
			FilePaths: make(map[string]string),
		}
		if n, ok := g.Object(block, ttl.ModPedalInstanceNumber).Int(); ok {
			p.Number = n
		}
		if enabled, ok := g.Object(block, ttl.IngenEnabled).Bool(); ok {
			p.Enabled = enabled
		}
		pedals = append(pedals, p)
	}

	byPrefix := make(map[string]*PedalInstance, len(pedals))
	for _, p := range pedals {
		byPrefix[base+p.Name+"/"] = p
	}
	for _, t := range g.Triples() {
		if t.Predicate.Value != ttl.IngenValue || t.Subject.Kind != ttl.KindIRI {
			continue
		}
		idx := strings.LastIndex(t.Subject.Value, "/")
		if idx < 0 {
			continue
		}
		p, ok := byPrefix[t.Subject.Value[:idx+1]]
		if !ok {
			continue
		}
		if v, ok := t.Object.Float(); ok {
			p.Values[t.Subject.Value[idx+1:]] = v
		}
	}

	sort.SliceStable(pedals, func(i, j int) bool { return pedals[i].Number < pedals[j].Number })
	return pedals
}

// ApplyControlValue records a new value for the pedal at ordinal position.
// It reports false when the pedal list has not been resolved or the
// position is out of range.
func (pb *Pedalboard) ApplyControlValue(position int, symbol string, value float64) bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.resolved || position < 0 || position >= len(pb.pedals) {
		return false
	}
	pb.pedals[position].Values[symbol] = value
	return true
}

// ApplyFilePath records a new file for a pedal addressed by instance name or
// by ordinal position rendered as decimal text.
func (pb *Pedalboard) ApplyFilePath(instance, paramURI, path string) bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.resolved {
		return false
	}
	p := pb.findLocked(instance)
	if p == nil {
		return false
	}
	p.FilePaths[paramURI] = path
	return true
}

func (pb *Pedalboard) findLocked(instance string) *PedalInstance {
	name := strings.TrimPrefix(instance, "/graph/")
	for _, p := range pb.pedals {
		if p.Name == name {
			return p
		}
	}
	if position, err := strconv.Atoi(instance); err == nil && position >= 0 && position < len(pb.pedals) {
		return pb.pedals[position]
	}
	return nil
}
