package landmarks

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Čelist" -> "Celist").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeKey turns a measurement name returned by a model into a snake_case
// ASCII key, so "Jaw Width" and "jaw-width" both become "jaw_width".
// Camel case is split as well ("noseLength" -> "nose_length").
func NormalizeKey(name string) string {
	name = RemoveDiacritics(strings.TrimSpace(name))

	var b strings.Builder
	pendingSep := false
	var prev rune
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				pendingSep = true
			}
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
		prev = r
	}
	return b.String()
}
