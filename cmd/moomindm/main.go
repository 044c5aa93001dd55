// Command moomindm serves the Moominvalley picnic dialogue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/moomindm/internal/app"
	"github.com/MrWong99/moomindm/internal/config"
	"github.com/MrWong99/moomindm/internal/observe"
	"github.com/MrWong99/moomindm/pkg/speech"
	"github.com/MrWong99/moomindm/pkg/speech/console"
	"github.com/MrWong99/moomindm/pkg/speech/wsbridge"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mode := flag.String("speech", "", "override speech.mode (websocket or console)")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "moomindm: config file %q not found, using built-in defaults\n", *configPath)
		cfg = config.Default()
		*watch = false
	case err != nil:
		fmt.Fprintf(os.Stderr, "moomindm: %v\n", err)
		return 1
	}
	if *mode != "" {
		cfg.Speech.Mode = config.SpeechMode(*mode)
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "moomindm: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(&level))

	slog.Info("moomindm starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Speech service ────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinSpeech(reg)

	svc, err := reg.CreateSpeech(cfg.Speech)
	if err != nil {
		slog.Error("failed to create speech service", "mode", cfg.Speech.Mode, "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{app.WithLevelVar(&level)}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath, 0))
	}
	application, err := app.New(ctx, cfg, svc, opts...)
	if err != nil {
		_ = svc.Close()
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// ── Speech wiring ─────────────────────────────────────────────────────────────

// registerBuiltinSpeech wires the speech services that ship with moomindm
// into reg.
func registerBuiltinSpeech(reg *config.Registry) {
	reg.RegisterSpeech(config.SpeechWebSocket, func(sc config.SpeechConfig) (speech.Service, error) {
		return wsbridge.New(
			wsbridge.WithSettings(sc.Settings()),
			wsbridge.WithOriginPatterns(sc.AllowedOrigins...),
		), nil
	})

	reg.RegisterSpeech(config.SpeechConsole, func(sc config.SpeechConfig) (speech.Service, error) {
		return console.New(os.Stdin, os.Stdout, console.WithSettings(sc.Settings())), nil
	})

	for _, m := range reg.Modes() {
		slog.Debug("registered speech mode", "mode", m)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	grammarFile := cfg.Dialogue.GrammarFile
	if grammarFile == "" {
		grammarFile = "(built-in)"
	}
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        moomindm - startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Speech mode", string(cfg.Speech.Mode))
	printRow("Locale", cfg.Speech.Locale)
	printRow("Voice", cfg.Speech.Voice)
	printRow("No-input", cfg.Speech.NoInputTimeout.String())
	printRow("Feedback", cfg.Dialogue.FeedbackTimeout.String())
	printRow("Grammar", grammarFile)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	fmt.Printf("║  %-12s    : %-19s ║\n", label, truncate(value, 19))
}

// truncate shortens s to at most width runes, marking the cut with an
// ellipsis.
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
