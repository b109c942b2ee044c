// --- START OF FINAL REVISED FILE pkg/converter/record/record.go ---
package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// --- Error Variables ---

// ErrMalformedRecord indicates source content a parser cannot turn into a record.
var ErrMalformedRecord = errors.New("malformed record")

// ErrUnknownFormat indicates no parser is registered under the requested format name.
var ErrUnknownFormat = errors.New("unknown record format")

// Record is one normalized bibliographic record.
// ID, OriginFile, Source and Publisher are stamped by the chunk converter;
// parsers fill the payload fields. Fields the schema does not name go to Extra.
type Record struct {
	ID         uint64            `json:"id" yaml:"id"`
	OriginFile string            `json:"originFile" yaml:"originFile"`
	Source     string            `json:"source,omitempty" yaml:"source,omitempty"`
	Publisher  string            `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	ExternalID string            `json:"externalId,omitempty" yaml:"externalId,omitempty"`
	Title      string            `json:"title,omitempty" yaml:"title,omitempty"`
	Authors    []string          `json:"authors,omitempty" yaml:"authors,omitempty"`
	Journal    string            `json:"journal,omitempty" yaml:"journal,omitempty"`
	Year       int               `json:"year,omitempty" yaml:"year,omitempty"`
	DOI        string            `json:"doi,omitempty" yaml:"doi,omitempty"`
	Abstract   string            `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// fieldAlias ties a source field name to a typed Record field.
// Lower rank wins when several aliases of one field are present.
type fieldAlias struct {
	field string
	rank  int
}

// fieldAliases maps lowercased source names to typed fields.
var fieldAliases = map[string]fieldAlias{
	"externalid":  {"externalId", 0},
	"external_id": {"externalId", 1},
	"pmid":        {"externalId", 2},
	"accession":   {"externalId", 3},
	"id":          {"externalId", 4},
	"title":       {"title", 0},
	"authors":     {"authors", 0},
	"author":      {"authors", 1},
	"journal":     {"journal", 0},
	"venue":       {"journal", 1},
	"year":        {"year", 0},
	"doi":         {"doi", 0},
	"abstract":    {"abstract", 0},
}

func normalizeFieldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SetField assigns a named source field. Names are matched case-insensitively
// against the typed fields; anything else lands in Extra.
func (r *Record) SetField(name, value string) error {
	value = strings.TrimSpace(value)
	key := normalizeFieldName(name)
	if key == "" {
		return nil
	}
	switch fieldAliases[key].field {
	case "externalId":
		r.ExternalID = value
	case "title":
		r.Title = value
	case "authors":
		r.Authors = splitAuthors(value)
	case "journal":
		r.Journal = value
	case "year":
		if value == "" {
			r.Year = 0
			return nil
		}
		var y int
		if _, err := fmt.Sscanf(value, "%d", &y); err != nil {
			return fmt.Errorf("%w: year %q is not a number", ErrMalformedRecord, value)
		}
		r.Year = y
	case "doi":
		r.DOI = value
	case "abstract":
		r.Abstract = value
	default:
		r.setExtra(name, value)
	}
	return nil
}

func (r *Record) setExtra(name, value string) {
	if r.Extra == nil {
		r.Extra = make(map[string]string)
	}
	r.Extra[name] = strings.TrimSpace(value)
}

// Field is one named value read from a source record.
type Field struct {
	Name  string
	Value string
}

// FromFields builds a record from source fields. The result does not depend on
// the order of fields: aliases are applied by rank, then by name, and the first
// non-empty alias fills its typed field. Other aliases of a filled field are kept
// in Extra under their source name.
func FromFields(fields []Field) (Record, error) {
	ordered := make([]Field, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := aliasRank(ordered[i].Name), aliasRank(ordered[j].Name)
		if ri != rj {
			return ri < rj
		}
		return ordered[i].Name < ordered[j].Name
	})

	var rec Record
	filled := make(map[string]bool)
	for _, f := range ordered {
		alias, known := fieldAliases[normalizeFieldName(f.Name)]
		if known {
			if filled[alias.field] {
				rec.setExtra(f.Name, f.Value)
				continue
			}
			if strings.TrimSpace(f.Value) != "" {
				filled[alias.field] = true
			}
		}
		if err := rec.SetField(f.Name, f.Value); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

func aliasRank(name string) int {
	if a, ok := fieldAliases[normalizeFieldName(name)]; ok {
		return a.rank
	}
	return len(fieldAliases)
}

func splitAuthors(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ";")
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			authors = append(authors, p)
		}
	}
	return authors
}

// EmitFunc receives parsed records in source order. Returning an error stops parsing.
type EmitFunc func(rec Record) error

// Parser turns one decoded source stream into records.
// Parse must return an error wrapping ErrMalformedRecord on bad input and
// must stop at the first error returned by emit.
type Parser interface {
	Name() string
	Parse(ctx context.Context, r io.Reader, emit EmitFunc) error
}

// Registry maps format names to parsers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Default returns a registry holding the built-in jsonl and tsv parsers.
func Default() *Registry {
	reg := NewRegistry()
	reg.Register(JSONLParser{})
	reg.Register(TSVParser{})
	return reg
}

// Register adds or replaces the parser under its Name.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[strings.ToLower(p.Name())] = p
}

// Lookup returns the parser registered for format.
func (r *Registry) Lookup(format string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return p, nil
}

// Names lists registered formats in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.parsers))
	for n := range r.parsers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// --- END OF FINAL REVISED FILE pkg/converter/record/record.go ---
