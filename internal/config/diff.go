package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DialogueChanged is true when any dialogue setting changed, including
	// the contents of the grammar file. These apply at the next conversation
	// start.
	DialogueChanged        bool
	GrammarFileChanged     bool
	PromptsChanged         bool
	FeedbackTimeoutChanged bool

	// RestartRequired lists changed fields that only take effect after a
	// restart (listen address, TLS, speech settings).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Dialogue
	d.GrammarFileChanged = old.Dialogue.GrammarFile != new.Dialogue.GrammarFile ||
		old.grammarDigest != new.grammarDigest
	d.PromptsChanged = old.Dialogue.Prompts != new.Dialogue.Prompts
	d.FeedbackTimeoutChanged = old.Dialogue.FeedbackTimeout != new.Dialogue.FeedbackTimeout
	d.DialogueChanged = d.GrammarFileChanged || d.PromptsChanged || d.FeedbackTimeoutChanged

	// Restart-only fields
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Speech.Mode != new.Speech.Mode {
		d.RestartRequired = append(d.RestartRequired, "speech.mode")
	}
	if old.Speech.Settings() != new.Speech.Settings() {
		d.RestartRequired = append(d.RestartRequired, "speech.settings")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
