package dataset

import (
	"encoding/json"
	"sort"

	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
)

// Municipalities maps a municipality's canonical name to its events.
// Every key has at least one event; municipalities without events are absent.
// Keys remember the order in which they were first seen.
type Municipalities struct {
	keys   []string
	events map[string][]gig.Event
}

func newMunicipalities() *Municipalities {
	return &Municipalities{events: make(map[string][]gig.Event)}
}

func (m *Municipalities) add(name string, e gig.Event) {
	if _, ok := m.events[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.events[name] = append(m.events[name], e)
}

// Names returns the municipality names in first-seen order.
func (m *Municipalities) Names() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Events returns the events of one municipality, nil when it has none.
func (m *Municipalities) Events(name string) []gig.Event {
	if m == nil {
		return nil
	}
	return m.events[name]
}

// Len returns the number of municipalities with events.
func (m *Municipalities) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// EventCount returns the number of events across all municipalities.
func (m *Municipalities) EventCount() int {
	n := 0
	for _, k := range m.Names() {
		n += len(m.events[k])
	}
	return n
}

// MarshalJSON encodes the mapping as a JSON object keyed by name.
func (m *Municipalities) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.events)
}

// UnmarshalJSON decodes a JSON object keyed by name. Names are restored in
// sorted order since JSON objects carry none; empty lists are dropped.
func (m *Municipalities) UnmarshalJSON(data []byte) error {
	var raw map[string][]gig.Event
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	names := make([]string, 0, len(raw))
	for name, events := range raw {
		if len(events) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	*m = Municipalities{keys: names, events: make(map[string][]gig.Event, len(names))}
	for _, name := range names {
		m.events[name] = raw[name]
	}
	return nil
}

// Unmatched is the set of raw location texts that named no municipality.
type Unmatched map[string]struct{}

// Sorted returns the locations in lexicographic order.
func (u Unmatched) Sorted() []string {
	out := make([]string, 0, len(u))
	for loc := range u {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Aggregate groups events by the municipality their location names. Events
// with an empty location are skipped; the raw location of every other event
// that matches nothing goes into the Unmatched set. Events keep their arrival
// order within a municipality.
func Aggregate(events []gig.Event, idx *gazetteer.Index) (*Municipalities, Unmatched) {
	out := newMunicipalities()
	unmatched := make(Unmatched)

	for _, e := range events {
		if e.Location == "" {
			continue
		}
		name, ok := idx.Match(e.Location)
		if !ok {
			unmatched[e.Location] = struct{}{}
			continue
		}
		out.add(name, e)
	}
	return out, unmatched
}
