package dataset

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
)

// Store holds the currently published dataset and serves read queries.
// A reload swaps the whole dataset; readers never see a mix of two runs.
type Store struct {
	mu       sync.RWMutex
	ds       *Dataset
	features map[string]*geojson.Feature
	dir      string
}

// NewStore creates an empty store backed by dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads the dataset from the store's directory.
func (s *Store) Load() error {
	ds, err := Load(s.dir)
	if err != nil {
		return fmt.Errorf("load dataset %s: %w", s.dir, err)
	}
	s.Set(ds)
	return nil
}

// Reload re-reads the dataset from disk (hot reload).
func (s *Store) Reload() error {
	return s.Load()
}

// Set publishes ds without touching the disk.
func (s *Store) Set(ds *Dataset) {
	features := make(map[string]*geojson.Feature)
	if ds.Geo != nil {
		for _, f := range ds.Geo.Features {
			if id, ok := f.ID.(string); ok {
				features[id] = f
			}
		}
	}

	s.mu.Lock()
	s.ds = ds
	s.features = features
	s.mu.Unlock()
}

// Current returns the published dataset, nil before the first load.
func (s *Store) Current() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

// Loaded reports whether a dataset is published.
func (s *Store) Loaded() bool {
	return s.Current() != nil
}

// Metadata returns the metadata of the published dataset.
func (s *Store) Metadata() (Metadata, bool) {
	ds := s.Current()
	if ds == nil {
		return Metadata{}, false
	}
	return ds.Metadata, true
}

// Stale reports whether the published dataset is missing or older than maxAge.
func (s *Store) Stale(now time.Time, maxAge time.Duration) bool {
	md, ok := s.Metadata()
	return !ok || md.Stale(now, maxAge)
}

// Search returns events in presentation order whose band, location or venue
// contains query. A non-empty municipality restricts the search to that
// municipality's events. limit <= 0 means no limit.
func (s *Store) Search(query, municipality string, limit int) []gig.Event {
	ds := s.Current()
	if ds == nil {
		return []gig.Event{}
	}

	source := ds.Events
	if municipality != "" {
		source = ds.Municipalities.Events(municipality)
	}

	out := []gig.Event{}
	for _, e := range source {
		if !e.Matches(query) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// MunicipalityDetail is one municipality with its events and reduced geometry.
type MunicipalityDetail struct {
	Name    string           `json:"name"`
	Events  []gig.Event      `json:"events"`
	Feature *geojson.Feature `json:"feature,omitempty"`
}

// Municipality returns the events and feature of one municipality.
// Lookup is exact first, then case-insensitive.
func (s *Store) Municipality(name string) (*MunicipalityDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ds == nil {
		return nil, false
	}

	events := s.ds.Municipalities.Events(name)
	if events == nil {
		for _, n := range s.ds.Municipalities.Names() {
			if strings.EqualFold(n, name) {
				name, events = n, s.ds.Municipalities.Events(n)
				break
			}
		}
	}
	if events == nil {
		return nil, false
	}
	return &MunicipalityDetail{Name: name, Events: events, Feature: s.features[name]}, true
}

// Summary is the public view of one municipality in the listing.
type Summary struct {
	Name       string     `json:"name"`
	Events     int        `json:"events"`
	FirstEvent *time.Time `json:"first_event,omitempty"`
}

// Summaries lists municipalities with events, sorted by name.
func (s *Store) Summaries() []Summary {
	ds := s.Current()
	if ds == nil {
		return []Summary{}
	}

	out := make([]Summary, 0, ds.Municipalities.Len())
	for _, name := range ds.Municipalities.Names() {
		events := ds.Municipalities.Events(name)
		sum := Summary{Name: name, Events: len(events)}
		for _, e := range events {
			if e.ParsedDate != nil && (sum.FirstEvent == nil || e.ParsedDate.Before(*sum.FirstEvent)) {
				sum.FirstEvent = e.ParsedDate
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
