package phonemizer

import (
	"context"
	"fmt"
	"os"

	"github.com/example/go-g2pfold/internal/config"
	"github.com/example/go-g2pfold/internal/folding"
	"github.com/example/go-g2pfold/internal/languages"
)

// OptionsFromConfig returns the adapter options described by cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Language:           cfg.Phonemizer.Language,
		KeepWordBoundaries: cfg.Phonemizer.KeepWordBoundaries,
		Verbose:            cfg.Phonemizer.Verbose,
		UseFolding:         cfg.Phonemizer.UseFolding,
		EngineOptions:      cfg.Engine.Options,
	}
}

// RegistryFromConfig returns the language list at cfg.Paths.LanguagesPath,
// or the embedded one when no path is set.
func RegistryFromConfig(cfg config.Config) (*languages.Registry, error) {
	if cfg.Paths.LanguagesPath == "" {
		return languages.Default(), nil
	}
	f, err := os.Open(cfg.Paths.LanguagesPath)
	if err != nil {
		return nil, fmt.Errorf("open language list: %w", err)
	}
	defer f.Close()

	return languages.Load(f)
}

// TablesFromConfig returns the folding tables at cfg.Paths.FoldingPath, or
// the embedded ones when no path is set.
func TablesFromConfig(cfg config.Config) (folding.Tables, error) {
	if cfg.Paths.FoldingPath == "" {
		return folding.Default()
	}
	f, err := os.Open(cfg.Paths.FoldingPath)
	if err != nil {
		return folding.Tables{}, fmt.Errorf("open folding tables: %w", err)
	}
	defer f.Close()

	return folding.Load(f)
}

// ConfigOptions resolves the collaborators named in cfg into Options for New.
func ConfigOptions(cfg config.Config) ([]Option, error) {
	reg, err := RegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	tables, err := TablesFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return []Option{
		WithRegistry(reg),
		WithFolding(tables),
		WithPython(cfg.Engine.Python),
		WithEnv(languages.Env{
			CEDICTPath: cfg.Paths.CEDICTPath,
			LexLookup:  cfg.Engine.LexLookup,
		}),
	}, nil
}

// FromConfig builds an Adapter for opts using the paths and engine settings
// in cfg. Extra options are applied last and win.
func FromConfig(ctx context.Context, cfg config.Config, opts Options, fns ...Option) (*Adapter, error) {
	base, err := ConfigOptions(cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, opts, append(base, fns...)...)
}
