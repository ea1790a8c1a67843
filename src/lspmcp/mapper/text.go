package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Snippet returns the 1-based inclusive line range widened by context lines on each side,
// clamped to the text, with every line prefixed by its number.
func Snippet(lines []string, start, end, context int) string {
	if len(lines) == 0 || start < 1 || start > len(lines) {
		return ""
	}
	if end < start {
		end = start
	}
	from := max(1, start-context)
	to := min(len(lines), end+context)

	width := len(strconv.Itoa(to))
	var b strings.Builder
	for n := from; n <= to; n++ {
		fmt.Fprintf(&b, "%*d| %s\n", width, n, lines[n-1])
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// FileLines returns lines start-prefix through end+suffix (1-based, inclusive) joined by newlines.
// The widened range is clamped to the text, but the requested range itself must lie within it.
func FileLines(lines []string, start, end, prefix, suffix int) (string, error) {
	if start < 1 || end < start {
		return "", fmt.Errorf("invalid line range %d-%d", start, end)
	}
	if start > len(lines) {
		return "", fmt.Errorf("line %d is past the end of the file (%d lines)", start, len(lines))
	}
	from := max(1, start-max(prefix, 0))
	to := min(len(lines), end+max(suffix, 0))
	return strings.Join(lines[from-1:to], "\n"), nil
}

// SymbolColumn finds symbol on a line and returns its 1-based rune column.
// An occurrence delimited as a whole identifier is preferred over one embedded in a longer name.
func SymbolColumn(line, symbol string) (int, bool) {
	if symbol == "" {
		return 0, false
	}

	first := -1
	for from := 0; from <= len(line); {
		i := strings.Index(line[from:], symbol)
		if i < 0 {
			break
		}
		at := from + i
		if first < 0 {
			first = at
		}
		if isBoundary(line, at, at+len(symbol)) {
			return utf8.RuneCountInString(line[:at]) + 1, true
		}
		from = at + 1
	}
	if first < 0 {
		return 0, false
	}
	return utf8.RuneCountInString(line[:first]) + 1, true
}

func isBoundary(line string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(line[:start])
		if isIdent(r) {
			return false
		}
	}
	if end < len(line) {
		r, _ := utf8.DecodeRuneInString(line[end:])
		if isIdent(r) {
			return false
		}
	}
	return true
}

func isIdent(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
