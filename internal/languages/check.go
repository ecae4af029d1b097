package languages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// DefaultCEDICTPath is where the CC-CEDICT file is expected when no other
// path is configured.
const DefaultCEDICTPath = "data/cedict_ts.u8"

// DefaultLexLookup is the Flite lexicon tool looked up on PATH.
const DefaultLexLookup = "lex_lookup"

const (
	cedictURL   = "https://www.mdbg.net/chinese/dictionary?page=cedict"
	fliteURL    = "https://github.com/dmort27/epitran#installation-of-flite-for-english-g2p"
	probeLexArg = "hello"
)

var (
	// ErrUnsupportedLanguage matches *UnsupportedLanguageError.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrMissingResource matches *MissingResourceError.
	ErrMissingResource = errors.New("missing resource")
	// ErrMissingDependency matches *MissingDependencyError.
	ErrMissingDependency = errors.New("missing dependency")
)

// UnsupportedLanguageError reports a code that is not on the allow-list.
type UnsupportedLanguageError struct {
	Code string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("language code %q is not supported by the epitran backend", e.Code)
}

func (e *UnsupportedLanguageError) Is(target error) bool { return target == ErrUnsupportedLanguage }

// MissingResourceError reports a data file that must exist on disk.
type MissingResourceError struct {
	Code string
	Path string
	Hint string
}

func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("language %q: required file %s not found: %s", e.Code, e.Path, e.Hint)
}

func (e *MissingResourceError) Is(target error) bool { return target == ErrMissingResource }

// MissingDependencyError reports an external tool that is absent or broken.
type MissingDependencyError struct {
	Code string
	Tool string
	Hint string
	Err  error
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("language %q: %s is not usable (%v): %s", e.Code, e.Tool, e.Err, e.Hint)
}

func (e *MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }

func (e *MissingDependencyError) Unwrap() error { return e.Err }

// ProbeFunc runs exe with args and returns an error if it is missing or
// exits unsuccessfully.
type ProbeFunc func(ctx context.Context, exe string, args ...string) error

// Env describes the local environment a language check runs against.
// Zero values select the defaults.
type Env struct {
	CEDICTPath string
	LexLookup  string
	Probe      ProbeFunc
	Logger     *slog.Logger
}

func (e Env) withDefaults() Env {
	if e.CEDICTPath == "" {
		e.CEDICTPath = DefaultCEDICTPath
	}
	if e.LexLookup == "" {
		e.LexLookup = DefaultLexLookup
	}
	if e.Probe == nil {
		e.Probe = RunProbe
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	return e
}

// ProbeLexLookup runs the configured lex_lookup once on a sample word.
func (e Env) ProbeLexLookup(ctx context.Context) error {
	e = e.withDefaults()
	return e.Probe(ctx, e.LexLookup, probeLexArg)
}

// Check validates that code can be used in env. It returns nil, or an error
// matching one of ErrUnsupportedLanguage, ErrMissingResource or
// ErrMissingDependency.
func (r *Registry) Check(ctx context.Context, code string, env Env) error {
	if !r.Supported(code) {
		return &UnsupportedLanguageError{Code: code}
	}
	env = env.withDefaults()

	switch {
	case RequiresCEDICT(code):
		if _, err := os.Stat(env.CEDICTPath); err != nil {
			hint := fmt.Sprintf("download the CC-CEDICT file from %s and place it in %s",
				cedictURL, filepath.Dir(env.CEDICTPath))
			env.Logger.Error("CEDICT not found", slog.String("path", env.CEDICTPath), slog.String("hint", hint))
			return &MissingResourceError{Code: code, Path: env.CEDICTPath, Hint: hint}
		}
		env.Logger.Debug("CEDICT found", slog.String("path", env.CEDICTPath))
	case RequiresLexLookup(code):
		if err := env.ProbeLexLookup(ctx); err != nil {
			hint := fmt.Sprintf("install Flite and ensure %s is on PATH, see %s", env.LexLookup, fliteURL)
			env.Logger.Error("epitran requires Flite", slog.String("tool", env.LexLookup), slog.String("error", err.Error()))
			return &MissingDependencyError{Code: code, Tool: env.LexLookup, Hint: hint, Err: err}
		}
	}

	return nil
}

// RunProbe executes exe with args, discarding its output.
func RunProbe(ctx context.Context, exe string, args ...string) error {
	path, err := exec.LookPath(exe)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w", exe, args, err)
	}
	return nil
}
