package gazetteer

import (
	"log/slog"
	"sort"

	"github.com/paulmach/orb"
)

// Municipality is one polygon of the authoritative geographic source.
type Municipality struct {
	Name       string         `json:"name"`
	CantonCode string         `json:"canton_code,omitempty"`
	CantonName string         `json:"canton_name,omitempty"`
	BFSNumber  string         `json:"bfs_number,omitempty"`
	Properties map[string]any `json:"-"`
	Geometry   orb.Geometry   `json:"-"`

	normalized string
}

// NormalizedName returns the match key computed when the index was built.
func (m *Municipality) NormalizedName() string {
	return m.normalized
}

// Index is the read-only set of municipalities loaded at startup.
// Records are shared by pointer with the matcher and the dataset builder.
type Index struct {
	names        []string
	byName       map[string]*Municipality
	byNormalized map[string]*Municipality
	normalize    Normalizer
	source       string
}

// NewIndex builds an index from municipality records. The first record seen
// for a canonical name wins; later duplicates (multi-part features in some
// extracts) are ignored. A nil normalizer means NormalizeAlnum.
func NewIndex(records []Municipality, normalize Normalizer) *Index {
	if normalize == nil {
		normalize = NormalizeAlnum
	}
	x := &Index{
		byName:       make(map[string]*Municipality, len(records)),
		byNormalized: make(map[string]*Municipality, len(records)),
		normalize:    normalize,
	}

	var duplicates, collisions int
	for i := range records {
		rec := records[i]
		if rec.Name == "" {
			continue
		}
		if _, exists := x.byName[rec.Name]; exists {
			duplicates++
			continue
		}
		rec.normalized = normalize(rec.Name)
		m := &rec
		x.byName[rec.Name] = m
		x.names = append(x.names, rec.Name)
	}
	sort.Strings(x.names)

	// Sorted pass so that a normalized-key collision resolves the same way
	// on every load.
	for _, name := range x.names {
		m := x.byName[name]
		if m.normalized == "" {
			continue
		}
		if _, exists := x.byNormalized[m.normalized]; exists {
			collisions++
			continue
		}
		x.byNormalized[m.normalized] = m
	}

	if duplicates > 0 || collisions > 0 {
		slog.Warn("municipality index built with conflicts",
			"duplicates", duplicates, "normalized_collisions", collisions)
	}
	return x
}

// Names returns the canonical names in lexicographic order.
// The slice must not be modified.
func (x *Index) Names() []string {
	return x.names
}

// Len returns the number of distinct municipalities.
func (x *Index) Len() int {
	return len(x.names)
}

// Record returns the municipality with the given canonical name.
func (x *Index) Record(name string) (*Municipality, bool) {
	m, ok := x.byName[name]
	return m, ok
}

// RecordByNormalizedName looks a municipality up by its match key.
func (x *Index) RecordByNormalizedName(normalized string) (*Municipality, bool) {
	m, ok := x.byNormalized[normalized]
	return m, ok
}

// Normalize applies the index's normalizer to free text.
func (x *Index) Normalize(s string) string {
	return x.normalize(s)
}
