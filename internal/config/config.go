package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-g2pfold/internal/languages"
)

type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Phonemizer PhonemizerConfig `mapstructure:"phonemizer"`
	Server     ServerConfig     `mapstructure:"server"`
	LogLevel   string           `mapstructure:"log_level"`
}

type PathsConfig struct {
	CEDICTPath string `mapstructure:"cedict_path"`
	// FoldingPath and LanguagesPath replace the embedded tables when set.
	FoldingPath   string `mapstructure:"folding_path"`
	LanguagesPath string `mapstructure:"languages_path"`
}

type EngineConfig struct {
	Python    string         `mapstructure:"python"`
	LexLookup string         `mapstructure:"lex_lookup"`
	Options   map[string]any `mapstructure:"options"`
}

type PhonemizerConfig struct {
	Language           string `mapstructure:"language"`
	KeepWordBoundaries bool   `mapstructure:"keep_word_boundaries"`
	UseFolding         bool   `mapstructure:"use_folding"`
	Verbose            bool   `mapstructure:"verbose"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxLines        int    `mapstructure:"max_lines"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			CEDICTPath:    languages.DefaultCEDICTPath,
			FoldingPath:   "",
			LanguagesPath: "",
		},
		Engine: EngineConfig{
			Python:    "",
			LexLookup: languages.DefaultLexLookup,
		},
		Phonemizer: PhonemizerConfig{
			Language:           "",
			KeepWordBoundaries: true,
			UseFolding:         true,
			Verbose:            false,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxLines:        1000,
			MaxTextBytes:    1 << 20,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each registered flag to its config key.
var flagKeys = map[string]string{
	"cedict-path":          "paths.cedict_path",
	"folding-path":         "paths.folding_path",
	"languages-path":       "paths.languages_path",
	"python":               "engine.python",
	"lex-lookup":           "engine.lex_lookup",
	"language":             "phonemizer.language",
	"keep-word-boundaries": "phonemizer.keep_word_boundaries",
	"use-folding":          "phonemizer.use_folding",
	"verbose":              "phonemizer.verbose",
	"server-listen-addr":   "server.listen_addr",
	"workers":              "server.workers",
	"max-lines":            "server.max_lines",
	"max-text-bytes":       "server.max_text_bytes",
	"request-timeout":      "server.request_timeout",
	"shutdown-timeout":     "server.shutdown_timeout",
	"log-level":            "log_level",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("cedict-path", defaults.Paths.CEDICTPath, "Path to the CC-CEDICT dictionary (Mandarin only)")
	fs.String("folding-path", defaults.Paths.FoldingPath, "YAML file replacing the built-in folding tables")
	fs.String("languages-path", defaults.Paths.LanguagesPath, "YAML file replacing the built-in language list")
	fs.String("python", defaults.Engine.Python, "Python interpreter with epitran installed (default: python3 on PATH)")
	fs.String("lex-lookup", defaults.Engine.LexLookup, "Flite lex_lookup executable (English only)")
	fs.StringP("language", "l", defaults.Phonemizer.Language, "Epitran language code, e.g. deu-Latn")
	fs.Bool("keep-word-boundaries", defaults.Phonemizer.KeepWordBoundaries, "Emit WORD_BOUNDARY tokens between words")
	fs.Bool("use-folding", defaults.Phonemizer.UseFolding, "Apply folding corrections to engine output")
	fs.BoolP("verbose", "v", defaults.Phonemizer.Verbose, "Log phonemizer debug output")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent phonemize requests")
	fs.Int("max-lines", defaults.Server.MaxLines, "Max lines per phonemize request")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Max total text bytes per phonemize request")
	fs.Int("request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("G2PFOLD")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("phonemizer.language", "G2PFOLD_PHONEMIZER_LANGUAGE", "G2PFOLD_LANGUAGE"); err != nil {
		return Config{}, fmt.Errorf("bind language env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("g2pfold")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.cedict_path", c.Paths.CEDICTPath)
	v.SetDefault("paths.folding_path", c.Paths.FoldingPath)
	v.SetDefault("paths.languages_path", c.Paths.LanguagesPath)
	v.SetDefault("engine.python", c.Engine.Python)
	v.SetDefault("engine.lex_lookup", c.Engine.LexLookup)
	v.SetDefault("engine.options", c.Engine.Options)
	v.SetDefault("phonemizer.language", c.Phonemizer.Language)
	v.SetDefault("phonemizer.keep_word_boundaries", c.Phonemizer.KeepWordBoundaries)
	v.SetDefault("phonemizer.use_folding", c.Phonemizer.UseFolding)
	v.SetDefault("phonemizer.verbose", c.Phonemizer.Verbose)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_lines", c.Server.MaxLines)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}
