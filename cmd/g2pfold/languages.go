package main

import (
	"fmt"

	"github.com/example/go-g2pfold/internal/languages"
	"github.com/example/go-g2pfold/internal/phonemizer"
	"github.com/spf13/cobra"
)

func newLanguagesCmd() *cobra.Command {
	var codesOnly bool

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List supported language codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			reg, err := phonemizer.RegistryFromConfig(cfg)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !codesOnly {
				if _, err := fmt.Fprint(w, languages.SupportMessage()); err != nil {
					return err
				}
			}
			for _, code := range reg.Codes() {
				if _, err := fmt.Fprintln(w, code); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&codesOnly, "codes", false, "Print only the language codes")

	return cmd
}
