package registry

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key folds a free-text identifier into its comparison form: decomposed,
// stripped of combining marks, upper-cased, with whitespace collapsed.
func Key(input string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, input)
	if err != nil {
		folded = input
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}
