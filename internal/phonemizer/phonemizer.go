// Package phonemizer turns lines of text into phoneme tokens with epitran and
// repairs known defects in epitran's output.
//
// An Adapter is bound to one language for its whole life. The language is
// validated once, in New; Phonemize never fails as a whole. A line the
// engine cannot handle comes back as an empty string.
package phonemizer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/example/go-g2pfold/internal/engine"
	"github.com/example/go-g2pfold/internal/folding"
	"github.com/example/go-g2pfold/internal/languages"
	"github.com/example/go-g2pfold/internal/text"
	"github.com/example/go-g2pfold/internal/tone"
)

const (
	// PhoneBoundary is the delimiter requested from the engine between phones.
	// It never appears in Phonemize output.
	PhoneBoundary = "PHONE_BOUNDARY"
	// WordBoundary marks word edges when word boundaries are kept.
	WordBoundary = tone.WordBoundary

	backendName = "epitran"
)

// Options are the per-adapter settings.
type Options struct {
	Language           string
	KeepWordBoundaries bool
	Verbose            bool
	UseFolding         bool
	// EngineOptions are forwarded to the engine constructor untouched.
	EngineOptions map[string]any
}

// DefaultOptions returns the options used when only a language is given:
// word boundaries kept and folding enabled.
func DefaultOptions(language string) Options {
	return Options{
		Language:           language,
		KeepWordBoundaries: true,
		UseFolding:         true,
	}
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type settings struct {
	registry     *languages.Registry
	env          languages.Env
	tables       *folding.Tables
	engine       engine.Engine
	python       string
	engineStderr io.Writer
	logger       *slog.Logger
}

// Option configures collaborators of an Adapter.
type Option func(*settings)

// WithRegistry replaces the embedded language allow-list.
func WithRegistry(r *languages.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithEnv sets the environment used for language checks.
func WithEnv(env languages.Env) Option {
	return func(s *settings) { s.env = env }
}

// WithFolding replaces the embedded folding tables.
func WithFolding(ts folding.Tables) Option {
	return func(s *settings) { s.tables = &ts }
}

// WithEngine supplies a ready engine instead of starting an epitran worker.
// The adapter takes ownership and closes it in Close.
func WithEngine(e engine.Engine) Option {
	return func(s *settings) { s.engine = e }
}

// WithPython selects the interpreter for the epitran worker.
func WithPython(python string) Option {
	return func(s *settings) { s.python = python }
}

// WithEngineStderr forwards the worker's stderr to w.
func WithEngineStderr(w io.Writer) Option {
	return func(s *settings) { s.engineStderr = w }
}

// WithLogger sets the logger. Without it, Verbose selects a debug-level
// logger on stderr and otherwise slog.Default is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// ---------------------------------------------------------------------------
// Adapter
// ---------------------------------------------------------------------------

// Adapter phonemizes lines for a single language. It is not safe for
// concurrent use; serialize calls or use one Adapter per goroutine.
type Adapter struct {
	language           string
	keepWordBoundaries bool
	useFolding         bool
	tables             folding.Tables
	engine             engine.Engine
	log                *slog.Logger
}

// New validates opts.Language against the allow-list and the local
// environment, then builds the engine. Errors match
// languages.ErrUnsupportedLanguage, languages.ErrMissingResource or
// languages.ErrMissingDependency when validation fails.
func New(ctx context.Context, opts Options, fns ...Option) (*Adapter, error) {
	s := settings{}
	for _, fn := range fns {
		fn(&s)
	}
	if s.registry == nil {
		s.registry = languages.Default()
	}
	log := s.logger
	if log == nil {
		if opts.Verbose {
			log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			log = slog.Default()
		}
	}
	env := s.env
	if env.Logger == nil {
		env.Logger = log
	}
	if env.CEDICTPath == "" {
		env.CEDICTPath = languages.DefaultCEDICTPath
	}

	if err := s.registry.Check(ctx, opts.Language, env); err != nil {
		return nil, err
	}

	a := &Adapter{
		language:           opts.Language,
		keepWordBoundaries: opts.KeepWordBoundaries,
		useFolding:         opts.UseFolding,
		log:                log,
	}

	if opts.UseFolding {
		if s.tables != nil {
			a.tables = *s.tables
		} else {
			ts, err := folding.Default()
			if err != nil {
				return nil, fmt.Errorf("load folding tables: %w", err)
			}
			a.tables = ts
		}
	}

	a.engine = s.engine
	if a.engine == nil {
		cfg := engine.Config{
			Python:    s.python,
			Language:  opts.Language,
			Tones:     true,
			Ligatures: false,
			Options:   opts.EngineOptions,
			Stderr:    s.engineStderr,
		}
		if languages.RequiresCEDICT(opts.Language) {
			cfg.CEDICTPath = env.CEDICTPath
		}
		e, err := engine.StartEpitran(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("start %s engine for %s: %w", backendName, opts.Language, err)
		}
		a.engine = e
	}

	return a, nil
}

// Language returns the code the adapter was built for.
func (a *Adapter) Language() string { return a.language }

// Close releases the engine.
func (a *Adapter) Close() error { return a.engine.Close() }

// Err returns a non-nil error once the engine has stopped. Lines phonemized
// after that are "" because the engine is gone, not because the input could
// not be converted, so callers should rebuild the Adapter.
func (a *Adapter) Err() error { return engine.Err(a.engine) }

// lineResult is the outcome for one input line. A failed line keeps its
// slot so output stays aligned with input.
type lineResult struct {
	text string
	err  error
}

// Phonemize converts each line independently. The result has one entry per
// input line, in order; lines the engine could not convert are "". If the
// engine stops mid-batch the remaining lines are "" too and Err reports it.
func (a *Adapter) Phonemize(ctx context.Context, lines []string) []string {
	a.log.Debug("phonemizing", slog.String("backend", backendName), slog.String("language", a.language),
		slog.Int("lines", len(lines)))

	results := make([]lineResult, len(lines))
	for i, line := range lines {
		if err := a.Err(); err != nil {
			a.log.Debug("engine stopped, skipping remaining lines", slog.Int("line", i),
				slog.String("error", err.Error()))
			break
		}
		out, err := a.phonemizeLine(ctx, line)
		results[i] = lineResult{text: out, err: err}
	}

	out := make([]string, len(results))
	for i, r := range results {
		if r.err != nil {
			a.log.Debug("line could not be phonemized", slog.Int("line", i), slog.String("error", r.err.Error()))
			continue
		}
		out[i] = r.text
	}

	if !a.useFolding {
		a.log.Debug("skipping folding post-processing, using uncorrected engine output")
		return out
	}
	return a.postProcess(out)
}

func (a *Adapter) phonemizeLine(ctx context.Context, line string) (string, error) {
	line = text.Clean(line)
	if line == "" {
		return "", nil
	}
	if a.language == languages.CodeCantoneseLatin {
		return a.phonemizeBySyllable(ctx, line)
	}

	out, err := a.engine.Transliterate(ctx, line+" ", engine.TransOptions{Delimiter: PhoneBoundary})
	if err != nil {
		return "", err
	}
	return a.rewriteBoundaries(out), nil
}

// rewriteBoundaries turns the phone delimiter that precedes a word gap into a
// word boundary (or drops it), then spaces out the remaining phones.
func (a *Adapter) rewriteBoundaries(s string) string {
	wordGap := ""
	if a.keepWordBoundaries {
		wordGap = " " + WordBoundary
	}
	s = strings.ReplaceAll(s, PhoneBoundary+" ", wordGap)
	s = strings.ReplaceAll(s, WordBoundary+" "+WordBoundary, WordBoundary)
	return strings.ReplaceAll(s, PhoneBoundary, " ")
}

// phonemizeBySyllable sends each syllable of each word to the engine on its
// own. Epitran only honours Cantonese tone numbers at the end of its input,
// so whole words would lose every tone but the last.
func (a *Adapter) phonemizeBySyllable(ctx context.Context, line string) (string, error) {
	suffix := " "
	if a.keepWordBoundaries {
		suffix = " " + WordBoundary
	}

	words := strings.Fields(line)
	out := make([]string, 0, len(words))
	for _, word := range words {
		syllables := text.SplitSyllables(word)
		phones := make([]string, 0, len(syllables))
		for _, syl := range syllables {
			p, err := a.engine.Transliterate(ctx, syl, engine.TransOptions{})
			if err != nil {
				return "", fmt.Errorf("syllable %q: %w", syl, err)
			}
			phones = append(phones, strings.TrimSpace(p))
		}
		out = append(out, strings.TrimSpace(strings.Join(phones, " "))+suffix)
	}
	return strings.Join(out, " "), nil
}

func (a *Adapter) postProcess(lines []string) []string {
	if _, ok := a.tables.For(a.language); ok {
		a.log.Debug("applying folding table", slog.String("language", a.language))
	} else {
		a.log.Debug("no folding table for language", slog.String("language", a.language))
	}
	tonal := languages.IsTonal(a.language)

	for i, line := range lines {
		if line == "" || line == " " {
			continue
		}
		line = a.tables.Fold(a.language, line)
		if tonal {
			line = tone.MoveMarkersAfterVowel(line)
		}
		lines[i] = line
	}
	return lines
}
