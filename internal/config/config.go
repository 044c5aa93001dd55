// Package config provides the configuration schema, loader, watcher, and
// speech service registry for moomindm.
package config

import (
	"crypto/sha256"
	"log/slog"
	"time"

	"github.com/MrWong99/moomindm/pkg/dialogue"
	"github.com/MrWong99/moomindm/pkg/speech"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto a [slog.Level]. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SpeechMode selects the speech service implementation.
type SpeechMode string

const (
	// SpeechWebSocket relays speech to the browser page over /speech.
	SpeechWebSocket SpeechMode = "websocket"

	// SpeechConsole reads utterances from stdin and prints speech to stdout.
	SpeechConsole SpeechMode = "console"
)

// IsValid reports whether m is a recognised speech mode.
func (m SpeechMode) IsValid() bool {
	return m == SpeechWebSocket || m == SpeechConsole
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultLogLevel       = LogInfo
	DefaultSpeechMode     = SpeechWebSocket
	DefaultNoInputTimeout = 5 * time.Second
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Speech   SpeechConfig   `yaml:"speech"`
	Dialogue DialogueConfig `yaml:"dialogue"`

	// grammarDigest is the SHA-256 of the grammar file contents as seen by
	// the [Watcher]. Zero when there is no grammar file or it was unreadable.
	grammarDigest [sha256.Size]byte
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS. Browsers only
// grant microphone access to pages served from localhost or over HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// SpeechConfig selects and tunes the speech service.
type SpeechConfig struct {
	// Mode selects the implementation registered in the [Registry].
	Mode SpeechMode `yaml:"mode"`

	// Locale is the BCP-47 language tag for synthesis and recognition.
	Locale string `yaml:"locale"`

	// Voice is the synthesis voice identifier.
	Voice string `yaml:"voice"`

	// NoInputTimeout is how long a listen waits for speech.
	NoInputTimeout time.Duration `yaml:"no_input_timeout"`

	// CompleteTimeout is the silence after speech that ends an utterance.
	// Zero lets the speech service decide.
	CompleteTimeout time.Duration `yaml:"complete_timeout"`

	// AllowedOrigins lists extra host patterns allowed to open the speech
	// WebSocket from another origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Settings converts the config into [speech.Settings].
func (s SpeechConfig) Settings() speech.Settings {
	return speech.Settings{
		Locale:          s.Locale,
		Voice:           s.Voice,
		NoInputTimeout:  s.NoInputTimeout,
		CompleteTimeout: s.CompleteTimeout,
	}
}

// DialogueConfig tunes the dialogue.
type DialogueConfig struct {
	// FeedbackTimeout bounds the wait after "You just said ...".
	// Zero selects dialogue.DefaultFeedbackTimeout.
	FeedbackTimeout time.Duration `yaml:"feedback_timeout"`

	// GrammarFile is an optional YAML grammar merged over the built-in one.
	GrammarFile string `yaml:"grammar_file"`

	// Prompts overrides the built-in wording. Empty fields keep the default.
	Prompts PromptsConfig `yaml:"prompts"`
}

// PromptsConfig is the YAML form of [dialogue.Prompts].
type PromptsConfig struct {
	Welcome       string `yaml:"welcome"`
	Person        string `yaml:"person"`
	Day           string `yaml:"day"`
	Time          string `yaml:"time"`
	Confirmation  string `yaml:"confirmation"`
	NoInput       string `yaml:"no_input"`
	Heard         string `yaml:"heard"`
	NotUnderstood string `yaml:"not_understood"`
	Closing       string `yaml:"closing"`
}

// Prompts converts the config into [dialogue.Prompts].
func (p PromptsConfig) Prompts() dialogue.Prompts {
	return dialogue.Prompts{
		Welcome:       p.Welcome,
		Person:        p.Person,
		Day:           p.Day,
		Time:          p.Time,
		Confirmation:  p.Confirmation,
		NoInput:       p.NoInput,
		Heard:         p.Heard,
		NotUnderstood: p.NotUnderstood,
		Closing:       p.Closing,
	}
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}

	def := speech.DefaultSettings()
	if c.Speech.Mode == "" {
		c.Speech.Mode = DefaultSpeechMode
	}
	if c.Speech.Locale == "" {
		c.Speech.Locale = def.Locale
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = def.Voice
	}
	if c.Speech.NoInputTimeout == 0 {
		c.Speech.NoInputTimeout = DefaultNoInputTimeout
	}

	if c.Dialogue.FeedbackTimeout == 0 {
		c.Dialogue.FeedbackTimeout = dialogue.DefaultFeedbackTimeout
	}
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
