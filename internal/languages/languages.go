// Package languages holds the allow-list of epitran language codes and the
// environment checks some of them need before an engine can be built.
package languages

import (
	_ "embed"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var defaultLanguages []byte

const (
	// CodeEnglish needs the Flite lex_lookup tool.
	CodeEnglish = "eng-Latn"
	// CodeCantoneseLatin is phonemized one syllable at a time.
	CodeCantoneseLatin = "yue-Latn"

	mandarinPrefix = "cmn-"
)

var tonalCodes = []string{"cmn-Hans", "cmn-Hant", "cmn-Latn", CodeCantoneseLatin}

// Registry is an immutable set of supported language codes.
type Registry struct {
	codes []string
	set   map[string]struct{}
}

type listFile struct {
	Languages []string `yaml:"languages"`
}

// NewRegistry builds a registry from codes. Blank entries are ignored and
// duplicates collapse.
func NewRegistry(codes []string) *Registry {
	r := &Registry{set: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := r.set[c]; dup {
			continue
		}
		r.set[c] = struct{}{}
		r.codes = append(r.codes, c)
	}
	slices.Sort(r.codes)
	return r
}

// Load decodes a YAML document of the form `languages: [code, ...]`.
func Load(rd io.Reader) (*Registry, error) {
	var f listFile
	if err := yaml.NewDecoder(rd).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode language list: %w", err)
	}
	if len(f.Languages) == 0 {
		return nil, fmt.Errorf("language list is empty")
	}
	return NewRegistry(f.Languages), nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	var f listFile
	if err := yaml.Unmarshal(defaultLanguages, &f); err != nil {
		panic(fmt.Sprintf("languages: embedded list is invalid: %v", err))
	}
	return NewRegistry(f.Languages)
})

// Default returns the registry built from the embedded language list.
func Default() *Registry { return defaultRegistry() }

// Supported reports whether code is on the allow-list.
func (r *Registry) Supported(code string) bool {
	_, ok := r.set[code]
	return ok
}

// Codes returns the sorted list of supported codes.
func (r *Registry) Codes() []string {
	return append([]string(nil), r.codes...)
}

// RequiresCEDICT reports whether code transcribes Mandarin and therefore
// needs the CC-CEDICT dictionary.
func RequiresCEDICT(code string) bool {
	return strings.Contains(code, mandarinPrefix)
}

// RequiresLexLookup reports whether code relies on Flite's lex_lookup.
func RequiresLexLookup(code string) bool {
	return code == CodeEnglish
}

// IsTonal reports whether tone markers in code's output are repositioned
// after the syllable vowel.
func IsTonal(code string) bool {
	return slices.Contains(tonalCodes, code)
}

// SupportMessage describes where the language list comes from.
func SupportMessage() string {
	var b strings.Builder
	b.WriteString("The epitran backend uses the epitran library, which supports multiple backends.\n")
	b.WriteString("For a list of supported languages, see https://github.com/dmort27/epitran#language-support\n")
	return b.String()
}
