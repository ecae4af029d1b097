package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/go-g2pfold/internal/config"
	"github.com/example/go-g2pfold/internal/doctor"
	"github.com/example/go-g2pfold/internal/engine"
	"github.com/example/go-g2pfold/internal/languages"
	"github.com/example/go-g2pfold/internal/phonemizer"
	"github.com/spf13/cobra"
)

const doctorProbeTimeout = 30 * time.Second

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and language checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), doctorProbeTimeout)
			defer cancel()

			dcfg, err := doctorConfig(ctx, cfg)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "python: %s\n", pythonFor(cfg))

			result := doctor.Run(dcfg, w)
			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(w, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

func pythonFor(cfg config.Config) string {
	if cfg.Engine.Python != "" {
		return cfg.Engine.Python
	}
	return engine.DetectPython()
}

// doctorConfig wires the real probes for cfg into a doctor.Config.
func doctorConfig(ctx context.Context, cfg config.Config) (doctor.Config, error) {
	reg, err := phonemizer.RegistryFromConfig(cfg)
	if err != nil {
		return doctor.Config{}, err
	}
	python := pythonFor(cfg)
	env := languages.Env{CEDICTPath: cfg.Paths.CEDICTPath, LexLookup: cfg.Engine.LexLookup}

	return doctor.Config{
		PythonVersion: func() (string, error) {
			return engine.PythonVersion(ctx, python)
		},
		EpitranVersion: func() (string, error) {
			return engine.EpitranVersion(ctx, python)
		},
		Language:   cfg.Phonemizer.Language,
		Supported:  reg.Supported,
		CEDICTPath: cfg.Paths.CEDICTPath,
		LexLookup: func() error {
			return env.ProbeLexLookup(ctx)
		},
	}, nil
}
