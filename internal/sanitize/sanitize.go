// Package sanitize bounds free-text input before it is persisted.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Text strips control characters (keeping newlines and tabs), trims
// surrounding whitespace, and truncates to maxRunes. maxRunes <= 0 means
// no length cap.
func Text(input string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())
	if maxRunes > 0 && utf8.RuneCountInString(out) > maxRunes {
		runes := []rune(out)
		out = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return out
}
