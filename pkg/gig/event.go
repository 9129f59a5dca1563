// Package gig turns raw performance records from the mx3 API into immutable
// events and defines their presentation order.
package gig

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BandURLPrefix is the public band page on mx3.
const BandURLPrefix = "https://mx3.ch/bands/"

// Raw is one performance record as decoded from the API.
type Raw map[string]any

// Event is a live-music event. It is never modified once built.
type Event struct {
	Date           string     `json:"date,omitempty"`
	ParsedDate     *time.Time `json:"parsed_date,omitempty"`
	BandName       string     `json:"band_name"`
	BandID         int64      `json:"band_id,omitempty"`
	Venue          string     `json:"venue,omitempty"`
	Location       string     `json:"location"`
	Region         string     `json:"canton,omitempty"`
	BandImageThumb string     `json:"band_image_thumb,omitempty"`
	Categories     []string   `json:"band_categories"`
	BandURL        string     `json:"mx3_url,omitempty"`
	EventName      string     `json:"event_name,omitempty"`
	VenueURL       string     `json:"venue_url,omitempty"`
}

// FromRaw builds an Event from an API record fetched for region. The second
// result is false when the record carried a date that could not be parsed;
// the event is still returned, with ParsedDate nil.
func FromRaw(raw Raw, region string) (Event, bool) {
	band, _ := raw["band"].(map[string]any)

	e := Event{
		Date:           pickStr(raw, "date"),
		BandName:       pickStr(raw, "band_name"),
		BandID:         pickInt(band, "id"),
		Venue:          pickStr(raw, "stage_name"),
		Location:       rawLocation(raw),
		Region:         region,
		BandImageThumb: pickStr(band, "url_for_image_thumb"),
		Categories:     categoryNames(band),
		EventName:      pickStr(raw, "name"),
		VenueURL:       pickStr(raw, "location_url"),
	}
	if e.Region == "" {
		e.Region = pickStr(raw, "canton")
	}
	if e.BandID != 0 {
		e.BandURL = BandURLPrefix + strconv.FormatInt(e.BandID, 10)
	}

	if e.Date == "" {
		return e, true
	}
	t, err := ParseDate(e.Date)
	if err != nil {
		return e, false
	}
	e.ParsedDate = &t
	return e, true
}

// dateLayouts are the timestamp shapes seen in the API, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses an ISO 8601 timestamp. Times without an offset are taken
// as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", s)
}

// Less orders by date (events without a date last) then by band name.
func Less(a, b Event) bool {
	switch {
	case a.ParsedDate == nil && b.ParsedDate == nil:
	case a.ParsedDate == nil:
		return false
	case b.ParsedDate == nil:
		return true
	case !a.ParsedDate.Equal(*b.ParsedDate):
		return a.ParsedDate.Before(*b.ParsedDate)
	}
	return a.BandName < b.BandName
}

// Sorted returns a copy of events in presentation order. Events with equal
// keys keep their relative order.
func Sorted(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Matches reports whether query occurs, case-insensitively, in the band
// name, the location or the venue. An empty query matches everything.
func (e Event) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(e.BandName), q) ||
		strings.Contains(strings.ToLower(e.Location), q) ||
		strings.Contains(strings.ToLower(e.Venue), q)
}

func pickStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// rawLocation keeps the location exactly as sent; it is reported verbatim
// when no municipality matches.
func rawLocation(raw Raw) string {
	s, _ := raw["location"].(string)
	return s
}

func pickInt(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	}
	return 0
}

func categoryNames(band map[string]any) []string {
	items, _ := band["categories"].([]any)
	names := make([]string, 0, len(items))
	for _, it := range items {
		if c, ok := it.(map[string]any); ok {
			if name := pickStr(c, "name"); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
