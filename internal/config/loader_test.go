package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/moomindm/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: bananas\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name:    "bad speech mode",
			yaml:    "speech:\n  mode: telephone\n",
			wantErr: []string{"speech.mode", "telephone"},
		},
		{
			name:    "negative timeouts",
			yaml:    "speech:\n  no_input_timeout: -1s\n  complete_timeout: -2s\ndialogue:\n  feedback_timeout: -3s\n",
			wantErr: []string{"speech.no_input_timeout", "speech.complete_timeout", "dialogue.feedback_timeout"},
		},
		{
			name:    "unknown prompt placeholder",
			yaml:    "dialogue:\n  prompts:\n    confirmation: \"Meet {persn}?\"\n",
			wantErr: []string{"dialogue.prompts", "persn"},
		},
		{
			name:    "incomplete tls",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: []string{"server.tls"},
		},
		{
			name:    "bad duration",
			yaml:    "speech:\n  no_input_timeout: soon\n",
			wantErr: []string{"decode yaml"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.ListenAddr = ""
	cfg.Server.LogLevel = "loud"
	cfg.Speech.Mode = "smoke-signals"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"listen_addr", "log_level", "speech.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.Default()); err != nil {
		t.Errorf("Validate(Default()) = %v", err)
	}
}
