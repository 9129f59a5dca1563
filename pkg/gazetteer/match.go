package gazetteer

import "strings"

// Match finds the municipality named inside a free-text location such as
// "Zürich Roxy Bar". Every municipality whose match key is a substring of the
// location's match key is a candidate; the longest key wins so that
// "Sankt Gallen" beats "Gallen". Equal lengths keep the first candidate in
// Names() order.
//
// It returns the canonical name, or false when the location is empty or
// names no municipality.
func (x *Index) Match(location string) (string, bool) {
	if location == "" || x == nil || len(x.names) == 0 {
		return "", false
	}
	key := x.normalize(location)
	if key == "" {
		return "", false
	}

	best := ""
	bestLen := 0
	for _, name := range x.names {
		n := x.byName[name].normalized
		if n == "" || len(n) <= bestLen {
			continue
		}
		if strings.Contains(key, n) {
			best = name
			bestLen = len(n)
		}
	}
	return best, bestLen > 0
}
