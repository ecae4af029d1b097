package text

import "unicode"

// SplitSyllables splits a romanized word right after every digit, the tone
// number that closes each syllable in Jyutping-style input. Any Unicode
// decimal digit counts, so full-width tone numbers split too. An underscore
// also ends a syllable and is dropped. Empty chunks are dropped. Trailing
// letters that are not closed by a digit form a last chunk of their own, so a
// word without any digit comes back as a single chunk.
func SplitSyllables(word string) []string {
	var syllables []string
	start := 0

	for i, r := range word {
		switch {
		case r == '_':
			if i > start {
				syllables = append(syllables, word[start:i])
			}
			start = i + 1
		case unicode.IsDigit(r):
			end := i + len(string(r))
			syllables = append(syllables, word[start:end])
			start = end
		}
	}

	if start < len(word) {
		syllables = append(syllables, word[start:])
	}

	return syllables
}
