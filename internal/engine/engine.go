// Package engine talks to the grapheme-to-phoneme engine that does the
// actual transcription. The only production implementation drives epitran
// through a long-lived Python worker.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by calls made after the engine shut down.
	ErrClosed = errors.New("engine closed")
	// ErrUnavailable means the engine could not be started.
	ErrUnavailable = errors.New("engine unavailable")
)

// TransOptions controls a single transliteration call.
type TransOptions struct {
	// Delimiter separates phones in the output. Empty selects the engine default.
	Delimiter string
	NormPunc  bool
	Ligatures bool
}

// Engine transliterates text into delimited phones.
type Engine interface {
	Transliterate(ctx context.Context, text string, opts TransOptions) (string, error)
	Close() error
}

// Err reports whether e has stopped for good. Engines that can die on their
// own expose an Err method; any other engine is taken to be healthy.
func Err(e Engine) error {
	if h, ok := e.(interface{ Err() error }); ok {
		return h.Err()
	}
	return nil
}
