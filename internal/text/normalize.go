package text

import (
	"errors"
	"strings"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize prepares raw input text for phonemization. It drops a leading
// byte order mark, normalizes line endings to \n and rejects empty or
// whitespace-only input. Surrounding whitespace is kept so every input line,
// blank or not, still has an output line.
func Normalize(s string) (string, error) {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = normalizeLineEndings(s)

	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// SplitLines breaks a document into lines after normalizing CRLF and bare CR
// to LF. A single trailing newline does not produce an extra empty line, but
// blank lines inside the document are kept so callers can map output back
// onto input line numbers.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}

	s = normalizeLineEndings(s)
	s = strings.TrimSuffix(s, "\n")

	return strings.Split(s, "\n")
}

func normalizeLineEndings(s string) string {
	// CRLF → LF, then bare CR → LF.
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
