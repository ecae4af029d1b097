package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DetectPython returns the first of python3 and python found on PATH, or
// "python3" when neither is.
func DetectPython() string {
	for _, bin := range []string{"python3", "python"} {
		if _, err := exec.LookPath(bin); err == nil {
			return bin
		}
	}
	return "python3"
}

// PythonVersion runs `<python> --version` and returns e.g. "3.11.4".
func PythonVersion(ctx context.Context, python string) (string, error) {
	if python == "" {
		python = DetectPython()
	}
	out, err := exec.CommandContext(ctx, python, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version failed: %w", python, err)
	}
	// Output is e.g. "Python 3.11.4\n"
	raw := strings.TrimPrefix(strings.TrimSpace(string(out)), "Python ")
	if raw == "" {
		return "", errors.New("empty python version output")
	}
	return raw, nil
}

// EpitranVersion imports epitran with python and returns its version.
func EpitranVersion(ctx context.Context, python string) (string, error) {
	if python == "" {
		python = DetectPython()
	}
	const probe = "import epitran; print(getattr(epitran, '__version__', 'unknown'))"
	out, err := exec.CommandContext(ctx, python, "-c", probe).Output()
	if err != nil {
		return "", fmt.Errorf("python cannot import epitran (pip install epitran): %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
