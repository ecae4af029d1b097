// Package doctor provides environment preflight checks for g2pfold.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/example/go-g2pfold/internal/languages"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

var (
	passMark = color.New(color.FgGreen).Sprint(PassMark)
	failMark = color.New(color.FgRed, color.Bold).Sprint(FailMark)
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// ProbeFunc returns an error if an external tool is unusable.
type ProbeFunc func() error

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// PythonVersion returns the Python version string (e.g. "3.11.4").
	PythonVersion VersionFunc
	// SkipPython skips the Python version check.
	SkipPython bool
	// EpitranVersion returns the version of the importable epitran package.
	EpitranVersion VersionFunc
	// SkipEpitran skips the epitran import check.
	SkipEpitran bool
	// Language is the configured language code; empty skips language checks.
	Language string
	// Supported reports allow-list membership for Language.
	Supported func(code string) bool
	// CEDICTPath is verified on disk when Language transcribes Mandarin.
	CEDICTPath string
	// LexLookup probes Flite's lex_lookup when Language is English.
	LexLookup ProbeFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- Python version ---------------------------------------------------
	if cfg.SkipPython {
		fmt.Fprintf(w, "%s python version: skipped\n", passMark)
	} else {
		pyVer, err := cfg.PythonVersion()
		if err != nil {
			res.fail(fmt.Sprintf("python version: %v", err))
			fmt.Fprintf(w, "%s python version: not found (%v)\n", failMark, err)
		} else if pyErr := checkPythonVersion(pyVer); pyErr != nil {
			res.fail(fmt.Sprintf("python version: %v", pyErr))
			fmt.Fprintf(w, "%s python version %s: %v\n", failMark, pyVer, pyErr)
		} else {
			fmt.Fprintf(w, "%s python version: %s\n", passMark, pyVer)
		}
	}

	// ---- epitran package --------------------------------------------------
	if cfg.SkipEpitran {
		fmt.Fprintf(w, "%s epitran package: skipped\n", passMark)
	} else {
		ver, err := cfg.EpitranVersion()
		if err != nil {
			res.fail(fmt.Sprintf("epitran package: %v", err))
			fmt.Fprintf(w, "%s epitran package: not importable (%v)\n", failMark, err)
		} else {
			fmt.Fprintf(w, "%s epitran package: %s\n", passMark, ver)
		}
	}

	if cfg.Language == "" {
		fmt.Fprintf(w, "%s language: skipped (none configured)\n", passMark)
		return res
	}

	// ---- language allow-list ----------------------------------------------
	if cfg.Supported != nil && !cfg.Supported(cfg.Language) {
		res.fail(fmt.Sprintf("language %q: not supported", cfg.Language))
		fmt.Fprintf(w, "%s language %s: not supported\n", failMark, cfg.Language)
		return res
	}
	fmt.Fprintf(w, "%s language: %s\n", passMark, cfg.Language)

	// ---- CC-CEDICT --------------------------------------------------------
	if languages.RequiresCEDICT(cfg.Language) {
		path := cfg.CEDICTPath
		if path == "" {
			path = languages.DefaultCEDICTPath
		}
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("cedict file %q: %v", path, err))
			fmt.Fprintf(w, "%s cedict file %s: not found\n", failMark, path)
		} else {
			fmt.Fprintf(w, "%s cedict file: %s\n", passMark, path)
		}
	}

	// ---- Flite lex_lookup -------------------------------------------------
	if languages.RequiresLexLookup(cfg.Language) && cfg.LexLookup != nil {
		if err := cfg.LexLookup(); err != nil {
			res.fail(fmt.Sprintf("lex_lookup: %v", err))
			fmt.Fprintf(w, "%s lex_lookup: not usable (%v)\n", failMark, err)
		} else {
			fmt.Fprintf(w, "%s lex_lookup: ok\n", passMark)
		}
	}

	return res
}

// checkPythonVersion returns an error if ver is outside [3.8, 4).
// ver is expected to be a string like "3.11.4".
func checkPythonVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 3 {
		return fmt.Errorf("requires Python 3, got %d", major)
	}
	if minor < 8 {
		return fmt.Errorf("requires Python >=3.8, got 3.%d", minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
