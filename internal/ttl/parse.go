package ttl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/knakk/rdf"
)

// ParseError wraps a decoding failure with the document it came from.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ttl: parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a Turtle document. Relative IRIs resolve against base.
// Blank nodes are scoped to base so graphs from different documents can be
// merged without label collisions.
func Parse(r io.Reader, base string) (*Graph, error) {
	return parse(r, base, base)
}

func parse(r io.Reader, base, scope string) (*Graph, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Source: base, Err: err}
	}
	dec := rdf.NewTripleDecoder(bytes.NewReader(padLineBreaks(src)), rdf.Turtle)
	if base != "" {
		iri, err := rdf.NewIRI(base)
		if err != nil {
			return nil, &ParseError{Source: base, Err: err}
		}
		if err := dec.SetOption(rdf.Base, iri); err != nil {
			return nil, &ParseError{Source: base, Err: err}
		}
	}

	g := NewGraph()
	for {
		tr, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return g, nil
		}
		if err != nil {
			return nil, &ParseError{Source: base, Err: err}
		}
		g.Add(Triple{
			Subject:   convert(tr.Subj, scope),
			Predicate: convert(tr.Pred, scope),
			Object:    convert(tr.Obj, scope),
		})
	}
}

// padLineBreaks puts a space in front of every tab and line break outside
// IRIs, strings and comments. The decoder only accepts a space or
// punctuation after a numeric literal, so "lv2:default 0.5" at the end of a
// line would otherwise fail. Line numbers are unchanged.
func padLineBreaks(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/16)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '\\':
			out = append(out, c)
			if i+1 < len(src) {
				i++
				out = append(out, src[i])
			}
		case '\t', '\r', '\n':
			out = append(out, ' ', c)
		case '<':
			end := bytes.IndexByte(src[i:], '>')
			if end < 0 {
				return append(out, src[i:]...)
			}
			out = append(out, src[i:i+end+1]...)
			i += end
		case '#':
			end := bytes.IndexByte(src[i:], '\n')
			if end < 0 {
				return append(out, src[i:]...)
			}
			// the newline is handled by the next iteration
			out = append(out, src[i:i+end]...)
			i += end - 1
		case '"', '\'':
			n := stringLen(src[i:], c)
			out = append(out, src[i:i+n]...)
			i += n - 1
		default:
			out = append(out, c)
		}
	}
	return out
}

// stringLen returns the length of the string literal at the start of s,
// quotes included. Unterminated literals run to the end of s.
func stringLen(s []byte, quote byte) int {
	delim := []byte{quote}
	if len(s) >= 3 && s[1] == quote && s[2] == quote {
		delim = []byte{quote, quote, quote}
	}
	for i := len(delim); i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if bytes.HasPrefix(s[i:], delim) {
			return i + len(delim)
		}
		if len(delim) == 1 && s[i] == '\n' {
			return i
		}
	}
	return len(s)
}

// ParseFile decodes the Turtle file at path with the file's directory as base.
func ParseFile(path string) (*Graph, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("ttl: resolve %s: %w", path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("ttl: open %s: %w", abs, err)
	}
	defer f.Close()
	return parse(f, DirBase(filepath.Dir(abs)), FileIRI(abs)+"#")
}

// DirBase returns the base IRI for documents inside dir.
func DirBase(dir string) string {
	return FileIRI(dir) + "/"
}

// FileIRI returns the file:// IRI of an absolute path.
func FileIRI(path string) string {
	return "file://" + filepath.ToSlash(filepath.Clean(path))
}

// FilePath maps a file:// IRI back to a local path. It reports false for
// other schemes.
func FilePath(iri string) (string, bool) {
	rest, ok := strings.CutPrefix(iri, "file://")
	if !ok {
		return "", false
	}
	if unescaped, err := url.PathUnescape(rest); err == nil {
		rest = unescaped
	}
	return filepath.FromSlash(rest), true
}

func convert(t rdf.Term, scope string) Term {
	switch v := t.(type) {
	case rdf.IRI:
		return IRI(v.String())
	case rdf.Blank:
		return Term{Kind: KindBlank, Value: scope + v.String()}
	case rdf.Literal:
		return Term{Kind: KindLiteral, Value: v.String(), Datatype: v.DataType.String()}
	default:
		return Term{Kind: KindLiteral, Value: t.String()}
	}
}
