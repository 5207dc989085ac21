// Package ttl loads Turtle documents into a small in-memory triple graph and
// offers the lookups needed to walk LV2 bundle and pedalboard metadata.
package ttl

import (
	"strconv"
	"strings"
)

// Kind distinguishes the three RDF term shapes.
type Kind int

const (
	KindIRI Kind = iota
	KindBlank
	KindLiteral
)

// Term is an RDF node. Value holds the IRI, blank label or lexical form.
type Term struct {
	Kind     Kind
	Value    string
	Datatype string
}

// IRI builds an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Literal builds a plain literal term.
func Literal(v string) Term { return Term{Kind: KindLiteral, Value: v} }

// IsZero reports whether t is the zero Term, returned for missing values.
func (t Term) IsZero() bool { return t == Term{} }

func (t Term) String() string { return t.Value }

// Float parses a numeric literal.
func (t Term) Float() (float64, bool) {
	if t.Kind != KindLiteral {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Int parses an integer literal, accepting integral decimals such as "3.0".
func (t Term) Int() (int, bool) {
	f, ok := t.Float()
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// Bool parses a boolean literal. Numeric 0/1 are accepted as well.
func (t Term) Bool() (bool, bool) {
	if t.Kind != KindLiteral {
		return false, false
	}
	switch strings.TrimSpace(t.Value) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

// Fragment returns the part of an IRI after the last '#' or '/'.
func (t Term) Fragment() string {
	v := strings.TrimRight(t.Value, "/#")
	if i := strings.LastIndexAny(v, "#/"); i >= 0 {
		return v[i+1:]
	}
	return v
}

// Triple is one statement of a graph.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

type spKey struct {
	s Term
	p string
}

// Graph is an insertion-ordered set of triples indexed by subject and
// predicate. A Graph is not safe for concurrent mutation.
type Graph struct {
	triples []Triple
	bySP    map[spKey][]Term
	byPO    map[spKey][]Term
	seen    map[Triple]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		bySP: make(map[spKey][]Term),
		byPO: make(map[spKey][]Term),
		seen: make(map[Triple]struct{}),
	}
}

// Add inserts a triple, ignoring duplicates.
func (g *Graph) Add(t Triple) {
	if _, dup := g.seen[t]; dup {
		return
	}
	g.seen[t] = struct{}{}
	g.triples = append(g.triples, t)
	sp := spKey{s: t.Subject, p: t.Predicate.Value}
	g.bySP[sp] = append(g.bySP[sp], t.Object)
	po := spKey{s: t.Object, p: t.Predicate.Value}
	g.byPO[po] = append(g.byPO[po], t.Subject)
}

// Merge adds every triple of other.
func (g *Graph) Merge(other *Graph) {
	if other == nil {
		return
	}
	for _, t := range other.triples {
		g.Add(t)
	}
}

// Len returns the number of triples.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns the triples in insertion order.
func (g *Graph) Triples() []Triple { return g.triples }

// Objects returns all objects of (s, p) in insertion order.
func (g *Graph) Objects(s Term, p string) []Term {
	return g.bySP[spKey{s: s, p: p}]
}

// Object returns the first object of (s, p), or the zero Term.
func (g *Graph) Object(s Term, p string) Term {
	if objs := g.Objects(s, p); len(objs) > 0 {
		return objs[0]
	}
	return Term{}
}

// Subjects returns all subjects having p with object o.
func (g *Graph) Subjects(p string, o Term) []Term {
	return g.byPO[spKey{s: o, p: p}]
}

// SubjectsOfType returns every subject declared with rdf:type class.
func (g *Graph) SubjectsOfType(class string) []Term {
	return g.Subjects(RDFType, IRI(class))
}

// HasType reports whether s is declared with rdf:type class.
func (g *Graph) HasType(s Term, class string) bool {
	for _, o := range g.Objects(s, RDFType) {
		if o.Kind == KindIRI && o.Value == class {
			return true
		}
	}
	return false
}

// Text returns the lexical value of the first object of (s, p), or "".
func (g *Graph) Text(s Term, p string) string {
	return g.Object(s, p).Value
}
