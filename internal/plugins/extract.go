package plugins

import (
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/hmibridge/hmibridge/internal/ttl"
)

// GUI description files, singular first.
var guiFiles = []string{"modgui.ttl", "modguis.ttl"}

// graphSet parses each bundle file at most once per extraction.
type graphSet struct {
	bundle string
	graphs map[string]*ttl.Graph
}

func (s *graphSet) load(path string) *ttl.Graph {
	if g, ok := s.graphs[path]; ok {
		return g
	}
	var g *ttl.Graph
	if _, err := os.Stat(path); err == nil {
		parsed, err := ttl.ParseFile(path)
		if err != nil {
			log.Printf("[Plugins] %s: %v", s.bundle, err)
		} else {
			g = parsed
		}
	}
	s.graphs[path] = g
	return g
}

// Extract builds the description of plugin uri from the bundle directory.
// It never fails: unreadable files are logged and skipped, and the label
// falls back to the identifier's trailing fragment.
func Extract(uri, bundle string) *PluginDescription {
	desc := &PluginDescription{
		URI:      uri,
		Bundle:   bundle,
		Controls: []ControlParameter{},
		Files:    []FileParameter{},
	}
	set := &graphSet{bundle: bundle, graphs: make(map[string]*ttl.Graph)}
	plugin := ttl.IRI(uri)

	for _, name := range guiFiles {
		if desc.Label != "" && desc.Thumbnail != "" {
			break
		}
		applyGUI(desc, set.load(filepath.Join(bundle, name)), plugin)
	}

	manifest := set.load(filepath.Join(bundle, manifestFile))

	// Plugin data lives in the files the manifest points at, plus the
	// manifest itself for bundles that keep everything in one file.
	data := ttl.NewGraph()
	if manifest != nil {
		for _, ref := range manifest.Objects(plugin, ttl.RDFSSeeAlso) {
			path, ok := ttl.FilePath(ref.Value)
			if !ok || filepath.Base(path) == manifestFile {
				continue
			}
			data.Merge(set.load(path))
		}
	}

	if desc.Label == "" || desc.Thumbnail == "" {
		applyGUI(desc, data, plugin)
	}
	if desc.Label == "" {
		applyGUI(desc, manifest, plugin)
	}

	data.Merge(manifest)

	if desc.Label == "" {
		desc.Label = data.Text(plugin, ttl.DOAPName)
	}
	if desc.Label == "" {
		desc.Label = data.Text(plugin, ttl.LV2Name)
	}
	if desc.Label == "" {
		desc.Label = plugin.Fragment()
	}
	if desc.Label == "" {
		desc.Label = uri
	}

	desc.Controls = extractControls(data, plugin)
	desc.Files = extractFiles(data, plugin)
	return desc
}

// applyGUI fills unset GUI fields from the modgui block attached to plugin.
// Blocks belonging to other plugins in the same graph are never consulted.
func applyGUI(desc *PluginDescription, g *ttl.Graph, plugin ttl.Term) {
	if g == nil {
		return
	}
	for _, gui := range g.Objects(plugin, ttl.ModGUIGui) {
		if desc.Label == "" {
			desc.Label = g.Text(gui, ttl.ModGUILabel)
		}
		if desc.Brand == "" {
			desc.Brand = g.Text(gui, ttl.ModGUIBrand)
		}
		if desc.Thumbnail == "" {
			desc.Thumbnail = assetPath(g.Object(gui, ttl.ModGUIThumbnail))
		}
		if desc.Screenshot == "" {
			desc.Screenshot = assetPath(g.Object(gui, ttl.ModGUIScreenshot))
		}
	}
}

func assetPath(t ttl.Term) string {
	if t.IsZero() {
		return ""
	}
	if path, ok := ttl.FilePath(t.Value); ok {
		return path
	}
	return t.Value
}

func extractControls(g *ttl.Graph, plugin ttl.Term) []ControlParameter {
	type indexed struct {
		index int
		param ControlParameter
	}
	var ports []indexed

	for _, port := range g.Objects(plugin, ttl.LV2Port) {
		if !g.HasType(port, ttl.LV2ControlPort) {
			continue
		}
		symbol := g.Text(port, ttl.LV2Symbol)
		if symbol == "" {
			continue
		}

		p := ControlParameter{
			Symbol:  symbol,
			Name:    g.Text(port, ttl.LV2Name),
			Minimum: floatOr(g.Object(port, ttl.LV2Minimum), 0),
			Maximum: floatOr(g.Object(port, ttl.LV2Maximum), 1),
			Default: floatOr(g.Object(port, ttl.LV2Default), 0),
			Output:  g.HasType(port, ttl.LV2OutputPort),
		}
		if p.Name == "" {
			p.Name = symbol
		}
		for _, prop := range g.Objects(port, ttl.LV2PortProperty) {
			switch prop.Value {
			case ttl.LV2Toggled:
				p.Toggle = true
			case ttl.LV2Integer:
				p.Integer = true
			case ttl.PPropsTrigger:
				p.Trigger = true
			case ttl.LV2Enumeration:
				p.Enumeration = true
			}
		}
		if p.Enumeration {
			p.ScalePoints = scalePoints(g, port)
		}

		idx := math.MaxInt
		if v, ok := g.Object(port, ttl.LV2Index).Int(); ok {
			idx = v
		}
		ports = append(ports, indexed{index: idx, param: p})
	}

	sort.SliceStable(ports, func(i, j int) bool { return ports[i].index < ports[j].index })
	out := make([]ControlParameter, 0, len(ports))
	for _, p := range ports {
		out = append(out, p.param)
	}
	return out
}

// scalePoints returns the enumeration points ascending by value; points
// with equal values keep their declaration order.
func scalePoints(g *ttl.Graph, port ttl.Term) []ScalePoint {
	var points []ScalePoint
	for _, sp := range g.Objects(port, ttl.LV2ScalePoint) {
		value, ok := g.Object(sp, ttl.RDFValue).Float()
		if !ok {
			continue
		}
		points = append(points, ScalePoint{Label: g.Text(sp, ttl.RDFSLabel), Value: value})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Value < points[j].Value })
	return points
}

func extractFiles(g *ttl.Graph, plugin ttl.Term) []FileParameter {
	out := []FileParameter{}
	for _, param := range g.Objects(plugin, ttl.PatchWritable) {
		rng := g.Object(param, ttl.RDFSRange)
		if rng.Kind != ttl.KindIRI || rng.Value != ttl.AtomPath {
			continue
		}
		label := g.Text(param, ttl.RDFSLabel)
		if label == "" {
			label = param.Fragment()
		}
		out = append(out, FileParameter{
			URI:       param.Value,
			Label:     label,
			FileTypes: fileTypesOf(g.Objects(param, ttl.ModFileTypes)),
		})
	}
	return out
}

func floatOr(t ttl.Term, fallback float64) float64 {
	if v, ok := t.Float(); ok {
		return v
	}
	return fallback
}
