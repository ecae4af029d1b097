// Package tone moves tone markers in phonemized lines so that each one
// directly follows the vowel of its syllable.
package tone

import (
	"strings"
	"unicode/utf8"
)

// WordBoundary separates words in phonemized lines.
const WordBoundary = "WORD_BOUNDARY"

const (
	syllabicBelow = '\u0329'
	syllabicAbove = '\u030d'
)

var vowels = map[rune]struct{}{}

func init() {
	for _, r := range "aeiouyɑɐɒæɛɜɞəɘɵɨʉɪʏʊɯɤʌɔøœɶɚɝɿʅɷ" {
		vowels[r] = struct{}{}
	}
}

// IsMarker reports whether r is a Chao tone letter or a tone digit.
func IsMarker(r rune) bool {
	return (r >= '\u02e5' && r <= '\u02e9') || (r >= '0' && r <= '9')
}

func isMarkerToken(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !IsMarker(r) {
			return false
		}
	}
	return true
}

func isVowelToken(tok string) bool {
	r, _ := utf8.DecodeRuneInString(tok)
	if _, ok := vowels[r]; ok {
		return true
	}
	return strings.ContainsRune(tok, syllabicBelow) || strings.ContainsRune(tok, syllabicAbove)
}

// splitGlued separates a tone suffix glued onto a phone, so "a˥˩" becomes
// "a" and "˥˩".
func splitGlued(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		cut := len(tok)
		for cut > 0 {
			r, size := utf8.DecodeLastRuneInString(tok[:cut])
			if !IsMarker(r) {
				break
			}
			cut -= size
		}
		if cut == 0 || cut == len(tok) {
			out = append(out, tok)
			continue
		}
		out = append(out, tok[:cut], tok[cut:])
	}
	return out
}

// MoveMarkersAfterVowel rewrites a space-separated phone line so that every
// tone marker sits right after the last vowel of the syllable it closes. A
// syllable spans from the previous marker, or the start of the word, up to
// the marker itself. Markers in syllables without a vowel stay put.
func MoveMarkersAfterVowel(line string) string {
	tokens := splitGlued(strings.Fields(line))
	if len(tokens) == 0 {
		return line
	}

	start := 0
	for i := 0; i < len(tokens); i++ {
		switch {
		case tokens[i] == WordBoundary:
			start = i + 1
		case isMarkerToken(tokens[i]):
			moveBack(tokens, start, i)
			start = i + 1
		}
	}

	return strings.Join(tokens, " ")
}

// moveBack relocates the marker at index at to just after the last vowel in
// tokens[from:at].
func moveBack(tokens []string, from, at int) {
	v := -1
	for j := at - 1; j >= from; j-- {
		if isVowelToken(tokens[j]) {
			v = j
			break
		}
	}
	if v < 0 || v == at-1 {
		return
	}
	marker := tokens[at]
	copy(tokens[v+2:at+1], tokens[v+1:at])
	tokens[v+1] = marker
}
