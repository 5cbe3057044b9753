// Package textnorm folds free text for accent- and case-insensitive
// comparison of service types and areas ("Ménage" matches "menage").
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips combining marks and collapses inner whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// Equal compares two strings after folding.
func Equal(a, b string) bool { return Fold(a) == Fold(b) }

// Matcher returns a predicate that is true for strings equal to want after
// folding. want is folded once.
func Matcher(want string) func(string) bool {
	w := Fold(want)
	return func(s string) bool { return Fold(s) == w }
}

// ContainsAny reports whether any non-empty term occurs in text, both folded.
func ContainsAny(text string, terms ...string) bool {
	folded := Fold(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(folded, Fold(term)) {
			return true
		}
	}
	return false
}
