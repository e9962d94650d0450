// Package cardname provides the canonical normalization used to compare card names
// coming from OCR, the vision model, cube lists and the catalog.
package cardname

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases name, folds diacritics ("Lim-Dûl" → "limdul"),
// strips punctuation and symbols, and collapses whitespace.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	// cases.Caser keeps state and is not safe for concurrent use
	folded = cases.Fold().String(folded)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		case r == '/':
			// split cards ("Fire // Ice") keep their halves apart
			space = true
		default:
			// punctuation and symbols are dropped without introducing a gap
		}
	}
	return b.String()
}

// Key builds the cache key for a name plus an optional set hint.
func Key(name, setHint string) string {
	n := Normalize(name)
	set := strings.ToLower(strings.TrimSpace(setHint))
	if set == "" {
		return n
	}
	return n + "|" + set
}

// Equal reports whether two names are identical after normalization.
func Equal(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}
