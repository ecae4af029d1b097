// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    python := testutil.RequireEpitran(t)
//	    testutil.RequireLexLookup(t)
//	    ...
//	}
package testutil

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"
)

const pythonEnv = "G2PFOLD_ENGINE_PYTHON"

// RequireEpitran skips the test unless a Python interpreter that can import
// epitran is available. The interpreter is taken from G2PFOLD_ENGINE_PYTHON,
// falling back to python3 on PATH. It returns the interpreter path.
func RequireEpitran(tb testing.TB) string {
	tb.Helper()

	python := os.Getenv(pythonEnv)
	if python == "" {
		python = "python3"
	}

	path, err := exec.LookPath(python)
	if err != nil {
		tb.Skipf("python interpreter not available (%q not in PATH); set %s to override", python, pythonEnv)
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, path, "-c", "import epitran").Run(); err != nil {
		tb.Skipf("epitran is not importable with %s: %v", path, err)
		return ""
	}

	return path
}

// RequireLexLookup skips the test if Flite's lex_lookup is not on PATH.
func RequireLexLookup(tb testing.TB) {
	tb.Helper()

	if _, err := exec.LookPath("lex_lookup"); err != nil {
		tb.Skip("lex_lookup not available; install Flite to run English integration tests")
	}
}
