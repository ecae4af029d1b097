package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Clean prepares a single line for the G2P engine: the line is composed to
// NFC, every rune that is neither a word rune nor whitespace is dropped, and
// whitespace runs collapse to a single space with the edges trimmed.
//
// Word runes are letters, combining marks, numbers and the underscore.
// Clean is idempotent.
func Clean(line string) string {
	line = norm.NFC.String(line)
	line = strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, line)

	return strings.Join(strings.Fields(line), " ")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r)
}
