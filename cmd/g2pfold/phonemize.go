package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/go-g2pfold/internal/config"
	"github.com/example/go-g2pfold/internal/languages"
	"github.com/example/go-g2pfold/internal/phonemizer"
	textpkg "github.com/example/go-g2pfold/internal/text"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// linePhonemizer is the part of *phonemizer.Adapter the command uses.
type linePhonemizer interface {
	Phonemize(ctx context.Context, lines []string) []string
	Err() error
	Close() error
}

type adapterFactory func(ctx context.Context) (linePhonemizer, error)

func newPhonemizeCmd() *cobra.Command {
	var text string
	var out string
	var outDir string
	var jobs int
	var engineOpts []string

	cmd := &cobra.Command{
		Use:   "phonemize [files...]",
		Short: "Convert text lines to phoneme tokens",
		Long: "Converts each input line to space-separated phone tokens. Input is read from\n" +
			"--text, from the given files, or from stdin. Lines that cannot be converted\n" +
			"are written as empty lines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			opts, err := phonemizeOptions(cfg, engineOpts)
			if err != nil {
				return err
			}
			factory := func(ctx context.Context) (linePhonemizer, error) {
				a, err := phonemizer.FromConfig(ctx, cfg, opts, phonemizer.WithEngineStderr(cmd.ErrOrStderr()))
				if err != nil {
					return nil, mapPhonemizeError(err)
				}
				return a, nil
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if len(args) == 0 || text != "" {
				input, err := readPhonemizeText(text, cmd.InOrStdin())
				if err != nil {
					return err
				}
				lines, err := phonemizeOnce(ctx, factory, textpkg.SplitLines(input))
				if err != nil {
					return err
				}
				return writeLines(out, lines, cmd.OutOrStdout())
			}

			return phonemizeFiles(ctx, factory, phonemizeFilesOptions{
				Files:  args,
				Jobs:   jobs,
				Out:    out,
				OutDir: outDir,
				Stdout: cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to phonemize (if empty, read files or stdin)")
	cmd.Flags().StringVar(&out, "out", "-", "Output path ('-' for stdout)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Write one output file per input file into this directory")
	cmd.Flags().IntVar(&jobs, "jobs", 1, "Number of files phonemized in parallel")
	cmd.Flags().StringArrayVar(&engineOpts, "engine-opt", nil, "Extra epitran constructor option in key=value form (repeatable)")

	return cmd
}

func phonemizeOptions(cfg config.Config, engineOpts []string) (phonemizer.Options, error) {
	opts := phonemizer.OptionsFromConfig(cfg)
	if opts.Language == "" {
		return phonemizer.Options{}, errors.New("a language is required; set --language or G2PFOLD_LANGUAGE")
	}
	extra, err := parseEngineOptions(engineOpts)
	if err != nil {
		return phonemizer.Options{}, err
	}
	if len(extra) > 0 {
		merged := make(map[string]any, len(opts.EngineOptions)+len(extra))
		for k, v := range opts.EngineOptions {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		opts.EngineOptions = merged
	}
	return opts, nil
}

// parseEngineOptions parses key=value items. Integers and booleans are
// decoded, in that order; anything else stays a string.
func parseEngineOptions(items []string) (map[string]any, error) {
	out := make(map[string]any, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --engine-opt %q (want key=value)", item)
		}
		value = strings.TrimSpace(value)
		if n, err := strconv.Atoi(value); err == nil {
			out[key] = n
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
			continue
		}
		out[key] = value
	}
	return out, nil
}

func readPhonemizeText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input, err := textpkg.Normalize(string(b))
	if err != nil {
		return "", fmt.Errorf("either provide --text, pass files, or pipe text on stdin: %w", err)
	}
	return input, nil
}

func phonemizeOnce(ctx context.Context, factory adapterFactory, lines []string) ([]string, error) {
	a, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	out := a.Phonemize(ctx, lines)
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("engine stopped: %w", err)
	}
	return out, nil
}

type phonemizeFilesOptions struct {
	Files  []string
	Jobs   int
	Out    string
	OutDir string
	Stdout io.Writer
}

// phonemizeFiles converts every file with up to Jobs workers. Each worker
// owns one adapter. Results are written in input order.
func phonemizeFiles(ctx context.Context, factory adapterFactory, opts phonemizeFilesOptions) error {
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(opts.Files) {
		jobs = len(opts.Files)
	}

	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	results := make([][]string, len(opts.Files))
	work := make(chan int)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for i := range opts.Files {
			select {
			case work <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for range jobs {
		g.Go(func() error {
			a, err := factory(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			for i := range work {
				path := opts.Files[i]
				b, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				lines := a.Phonemize(ctx, textpkg.SplitLines(string(b)))
				if err := a.Err(); err != nil {
					return fmt.Errorf("phonemize %s: engine stopped: %w", path, err)
				}
				if opts.OutDir != "" {
					if err := writeLines(outputPath(opts.OutDir, path), lines, nil); err != nil {
						return err
					}
					continue
				}
				results[i] = lines
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if opts.OutDir != "" {
		return nil
	}

	var all []string
	for _, lines := range results {
		all = append(all, lines...)
	}
	return writeLines(opts.Out, all, opts.Stdout)
}

// outputPath maps an input file to its output in dir: "a/b.txt" becomes
// "dir/b.phon".
func outputPath(dir, input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+".phon")
}

func writeLines(outPath string, lines []string, stdout io.Writer) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if outPath == "-" || outPath == "" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := io.WriteString(stdout, b.String())
		return err
	}
	return os.WriteFile(outPath, []byte(b.String()), 0o644)
}

func mapPhonemizeError(err error) error {
	switch {
	case errors.Is(err, languages.ErrUnsupportedLanguage):
		return fmt.Errorf("%w; run `g2pfold languages` for the supported codes", err)
	case errors.Is(err, languages.ErrMissingResource), errors.Is(err, languages.ErrMissingDependency):
		return fmt.Errorf("%w; run `g2pfold doctor` to check the environment", err)
	default:
		return err
	}
}
