package generator

import (
	"strings"
	"unicode"
)

// Bounds holds the min/max character bounds for one generated field
type Bounds struct {
	MinLength int
	MaxLength int
}

const ellipsis = "…"

// quote characters commonly wrapped around model output
const quoteChars = "\"'“”‘’«»"

// Normalize cleans a generated value and enforces length bounds.
// The steps run in a fixed order: strip wrapping quotes, strip markup
// markers, reject below the minimum, truncate above the maximum at the
// last whitespace boundary before the limit. An empty return value means
// the field should be skipped.
func Normalize(value string, bounds Bounds) string {
	s := strings.TrimSpace(value)
	s = stripWrappingQuotes(s)
	s = stripMarkup(s)
	s = strings.TrimSpace(s)

	if bounds.MinLength > 0 && len([]rune(s)) < bounds.MinLength {
		return ""
	}

	if bounds.MaxLength > 0 {
		s = truncate(s, bounds.MaxLength)
	}

	return s
}

// stripWrappingQuotes removes matching quote characters wrapping the value
func stripWrappingQuotes(s string) string {
	for {
		runes := []rune(s)
		if len(runes) < 2 {
			return s
		}

		first, last := runes[0], runes[len(runes)-1]
		if !strings.ContainsRune(quoteChars, first) || !strings.ContainsRune(quoteChars, last) {
			return s
		}

		s = strings.TrimSpace(string(runes[1 : len(runes)-1]))
	}
}

// stripMarkup removes markdown emphasis and heading markers the
// generation service sometimes leaks into plain-text fields
func stripMarkup(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.ReplaceAll(s, "`", "")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, "# ")
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most max runes, breaking at the last whitespace
// boundary before the limit and appending an ellipsis. When no boundary
// exists far enough into the string a hard cut is used instead.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	// Leave room for the ellipsis marker
	cut := max - 1

	boundary := -1
	for i := cut; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			boundary = i
			break
		}
	}

	// A boundary too close to the start would throw away most of the
	// value; fall back to a hard cut in that case.
	if boundary > max/2 {
		cut = boundary
	}

	return strings.TrimRight(string(runes[:cut]), " \t\n") + ellipsis
}
