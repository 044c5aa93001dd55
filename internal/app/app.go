// Package app wires the moomindm subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the dialogue machine,
// the session, and the HTTP surface; Run serves HTTP and drives the session
// loop until the context ends; Shutdown releases everything in order.
//
// For testing, inject a listener and other collaborators via functional
// options (WithListener, WithMetrics, etc.).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/moomindm/internal/config"
	"github.com/MrWong99/moomindm/internal/health"
	"github.com/MrWong99/moomindm/internal/observe"
	"github.com/MrWong99/moomindm/internal/session"
	"github.com/MrWong99/moomindm/internal/web"
	"github.com/MrWong99/moomindm/pkg/dialogue"
	"github.com/MrWong99/moomindm/pkg/grammar"
	"github.com/MrWong99/moomindm/pkg/speech"
	"github.com/MrWong99/moomindm/pkg/speech/wsbridge"
	"golang.org/x/sync/errgroup"
)

// ErrSessionStopped is returned by Run when the session loop ends before the
// context does, which happens when the speech service shuts down.
var ErrSessionStopped = errors.New("app: session loop stopped")

// serverShutdownTimeout bounds the graceful HTTP shutdown inside Run.
const serverShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg    *config.Config
	speech speech.Service

	metrics    *observe.Metrics
	level      *slog.LevelVar
	listener   net.Listener
	configPath string
	interval   time.Duration

	// Subsystems, initialised in New and torn down in Shutdown.
	bridge  *wsbridge.Bridge
	session *session.Session
	pusher  *web.Pusher
	watcher *config.Watcher
	server  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records metrics on m instead of observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets configuration reloads change the log level through lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithListener serves HTTP on ln instead of listening on
// cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithConfigWatch reloads the config file at path while running. An
// interval of zero keeps the watcher default.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.interval = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App around the speech service svc, which main.go builds via
// the config registry. The App takes ownership of svc and closes it in
// Shutdown. When svc is a [*wsbridge.Bridge] it is also mounted at /speech.
func New(ctx context.Context, cfg *config.Config, svc speech.Service, opts ...Option) (*App, error) {
	if svc == nil {
		return nil, errors.New("app: speech service is required")
	}
	a := &App{
		cfg:    cfg,
		speech: svc,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, svc.Close)
	if b, ok := svc.(*wsbridge.Bridge); ok {
		a.bridge = b
	}

	// ── 1. Dialogue machine + session ────────────────────────────────────
	machine, err := BuildMachine(cfg.Dialogue)
	if err != nil {
		return nil, fmt.Errorf("app: build dialogue: %w", err)
	}
	a.session, err = session.New(session.Config{
		Machine: machine,
		Speech:  svc,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create session: %w", err)
	}

	// ── 2. Display push to the browser ───────────────────────────────────
	if a.bridge != nil {
		a.pusher = web.NewPusher(a.bridge)
		a.session.Subscribe(a.pusher.Push)
	}

	// ── 3. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		var wopts []config.WatcherOption
		if a.interval > 0 {
			wopts = append(wopts, config.WithInterval(a.interval))
		}
		w, err := config.NewWatcher(a.configPath, a.onConfigChange, wopts...)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	slog.Info("app initialised",
		"speech_mode", cfg.Speech.Mode,
		"grammar_file", cfg.Dialogue.GrammarFile,
		"feedback_timeout", cfg.Dialogue.FeedbackTimeout,
	)
	return a, nil
}

// BuildMachine creates the dialogue machine described by dc. A configured
// grammar file is merged over the built-in grammar.
func BuildMachine(dc config.DialogueConfig) (*dialogue.Machine, error) {
	g := grammar.Default()
	if dc.GrammarFile != "" {
		extra, err := grammar.Load(dc.GrammarFile)
		if err != nil {
			return nil, err
		}
		g = grammar.Merge(g, extra)
	}
	return dialogue.NewMachine(dialogue.Config{
		Grammar:         g,
		Prompts:         dc.Prompts.Prompts(),
		FeedbackTimeout: dc.FeedbackTimeout,
	})
}

// routes builds the HTTP handler tree.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	checkers := []health.Checker{
		health.Condition("dialogue", func() bool {
			return a.session.Snapshot().State != dialogue.StatePreparing
		}, "speech service has not reported ready"),
	}
	var speechHandler http.Handler
	if a.bridge != nil {
		checkers = append(checkers, health.Condition("speech", a.bridge.Connected, "no speech client connected"))
		speechHandler = a.bridge
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", observe.MetricsHandler())
	web.New(a.session, speechHandler).Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

// Session returns the dialogue session.
func (a *App) Session() *session.Session { return a.session }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, drives the session loop, and watches the config file
// until ctx is cancelled. It then returns ctx.Err(). If the session loop or
// the HTTP server stops on its own, Run stops the rest and returns the cause.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.session.Run(gctx); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return ErrSessionStopped
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serverShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown", "err", err)
			_ = a.server.Close()
		}
		return nil
	})

	if a.pusher != nil {
		g.Go(func() error { return a.pusher.Run(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	slog.Info("app running", "speech_mode", a.cfg.Speech.Mode)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// onConfigChange applies a reloaded config. The log level changes at once,
// dialogue changes at the next conversation start, and everything else is
// only reported.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.DialogueChanged {
		m, err := BuildMachine(new.Dialogue)
		if err != nil {
			slog.Warn("reloaded dialogue config rejected; keeping the current one", "err", err)
		} else {
			a.session.Reconfigure(m)
			slog.Info("dialogue config reloaded; applies to the next conversation",
				"grammar_changed", d.GrammarFileChanged,
				"prompts_changed", d.PromptsChanged,
				"feedback_timeout_changed", d.FeedbackTimeoutChanged,
			)
		}
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	for _, field := range d.RestartRequired {
		slog.Warn("config change requires a restart to take effect", "field", field)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
