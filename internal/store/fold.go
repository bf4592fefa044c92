package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName normalises an entry name for indexing and querying: Unicode case
// folding (ß becomes ss), accents removed, every run of non-letter/non-digit
// characters collapsed to one space.
func FoldName(s string) string {
	s = cases.Fold().String(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.M)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}
