// Package folding applies ordered literal substitutions that correct known
// errors in epitran output.
//
// Tables are sequences, not maps: a later pair may see text produced by an
// earlier one, so declaration order is part of a table's meaning.
package folding

import (
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed folding.yaml
var defaultFolding []byte

// Pair replaces every occurrence of From with To.
type Pair struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Table is an ordered list of substitutions.
type Table []Pair

// Apply runs every pair once, in order, as a literal replace-all.
func (t Table) Apply(line string) string {
	for _, p := range t {
		line = strings.ReplaceAll(line, p.From, p.To)
	}
	return line
}

// Tables holds the universal table and the per-language tables.
type Tables struct {
	All       Table            `yaml:"all"`
	Languages map[string]Table `yaml:"languages"`
}

// For returns the language-specific table for code.
func (ts Tables) For(code string) (Table, bool) {
	t, ok := ts.Languages[code]
	return t, ok
}

// Fold applies the universal table and then, if one exists, the table for
// code. The language table sees the line padded with a space on each side
// so entries can anchor on word edges; the padding is trimmed afterwards.
// Empty and single-space lines are returned unchanged.
func (ts Tables) Fold(code, line string) string {
	if line == "" || line == " " {
		return line
	}
	line = ts.All.Apply(line)
	if t, ok := ts.For(code); ok {
		line = strings.TrimSpace(t.Apply(" " + line + " "))
	}
	return line
}

// Load decodes folding tables from YAML.
func Load(r io.Reader) (Tables, error) {
	var ts Tables
	if err := yaml.NewDecoder(r).Decode(&ts); err != nil {
		return Tables{}, fmt.Errorf("decode folding tables: %w", err)
	}
	if err := ts.validate(); err != nil {
		return Tables{}, err
	}
	return ts, nil
}

func (ts Tables) validate() error {
	for i, p := range ts.All {
		if p.From == "" {
			return fmt.Errorf("folding table %q: entry %d has empty from", "all", i)
		}
	}
	for code, t := range ts.Languages {
		for i, p := range t {
			if p.From == "" {
				return fmt.Errorf("folding table %q: entry %d has empty from", code, i)
			}
		}
	}
	return nil
}

var defaultTables = sync.OnceValues(func() (Tables, error) {
	return Load(strings.NewReader(string(defaultFolding)))
})

// Default returns the embedded folding tables. Callers must treat the result
// as read-only; it is shared by every phonemizer in the process.
func Default() (Tables, error) { return defaultTables() }
