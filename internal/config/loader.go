package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidGenerationProviders lists known text-generation backend names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidGenerationProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq",
	"llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.FFmpegPath == "" {
		cfg.Audio.FFmpegPath = "ffmpeg"
	}
	if cfg.Audio.DataDir == "" {
		cfg.Audio.DataDir = "data"
	}
	if cfg.Audio.ToolTimeoutSeconds <= 0 {
		cfg.Audio.ToolTimeoutSeconds = 60
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	if cfg.Generation.Name != "" {
		if !slices.Contains(ValidGenerationProviders, cfg.Generation.Name) {
			slog.Warn("unknown generation provider name, may be a typo or third-party backend",
				"name", cfg.Generation.Name,
				"known", ValidGenerationProviders,
			)
		}
		if cfg.Generation.Model == "" {
			errs = append(errs, fmt.Errorf("generation.model is required when generation.name is set"))
		}
	} else {
		slog.Warn("no generation provider configured; corpus generation endpoints will be unavailable")
	}

	if cfg.Corpus.SeedDir != "" {
		if info, err := os.Stat(cfg.Corpus.SeedDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("corpus.seed_dir %q is not a readable directory", cfg.Corpus.SeedDir))
		}
	}

	return errors.Join(errs...)
}
