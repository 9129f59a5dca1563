package gazetteer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer reduces a name or free-text location to its match key.
type Normalizer func(string) string

// keepAlnum drops every rune that is not a lowercase ASCII letter or digit.
// Whitespace goes too, so "sankt gallen" and "sanktgallen" compare equal.
var keepAlnum = runes.Remove(runes.Predicate(func(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}))

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeAlnum lowercases s and keeps only ASCII letters and digits.
// Accented letters are dropped, not folded: "Zürich" becomes "zrich".
// Location texts from the API carry the same loss, so both sides still meet.
func NormalizeAlnum(s string) string {
	if s == "" {
		return ""
	}
	result, _, _ := transform.String(keepAlnum, strings.ToLower(s))
	return result
}

// NormalizeAlnumFold strips accents before applying NormalizeAlnum
// ("Zürich" -> "zurich").
func NormalizeAlnumFold(s string) string {
	if s == "" {
		return ""
	}
	folded, _, _ := transform.String(foldAccents, s)
	return NormalizeAlnum(folded)
}

// GetNormalizer returns the normalizer for the given mode.
// Default is alnum.
func GetNormalizer(mode string) Normalizer {
	switch mode {
	case "alnum_fold":
		return NormalizeAlnumFold
	default:
		return NormalizeAlnum
	}
}
