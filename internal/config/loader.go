package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Speech
	if cfg.Speech.Mode != "" && !cfg.Speech.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("speech.mode %q is invalid; valid values: websocket, console", cfg.Speech.Mode))
	}
	if cfg.Speech.NoInputTimeout < 0 {
		errs = append(errs, fmt.Errorf("speech.no_input_timeout %s must not be negative", cfg.Speech.NoInputTimeout))
	}
	if cfg.Speech.CompleteTimeout < 0 {
		errs = append(errs, fmt.Errorf("speech.complete_timeout %s must not be negative", cfg.Speech.CompleteTimeout))
	}
	if cfg.Speech.Mode == SpeechConsole && len(cfg.Speech.AllowedOrigins) > 0 {
		slog.Warn("speech.allowed_origins has no effect in console mode")
	}

	// Dialogue
	if cfg.Dialogue.FeedbackTimeout < 0 {
		errs = append(errs, fmt.Errorf("dialogue.feedback_timeout %s must not be negative", cfg.Dialogue.FeedbackTimeout))
	}
	if err := cfg.Dialogue.Prompts.Prompts().WithDefaults().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dialogue.prompts: %w", err))
	}

	return errors.Join(errs...)
}
