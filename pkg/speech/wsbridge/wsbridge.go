// Package wsbridge implements speech.Service by relaying commands to a browser
// over a WebSocket. The browser page performs synthesis and recognition with
// its own speech APIs and reports back with JSON event frames:
//
//	→ {"type":"speak","utterance":"Who would you like to meet with?","tag":4}
//	← {"type":"speech_finished","tag":4}
//	→ {"type":"listen","tag":5}
//	← {"type":"recognized","text":"Sniff","confidence":0.92,"tag":5}
//
// Only one browser client is served at a time; a newer connection supersedes
// the older one.
package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/moomindm/pkg/speech"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrNotConnected is returned by Send when no browser client is connected.
var ErrNotConnected = errors.New("wsbridge: no speech client connected")

const (
	defaultWriteTimeout = 5 * time.Second
	eventBuffer         = 64
	frameDisplay        = "display"
)

// Option is a functional option for configuring the Bridge.
type Option func(*Bridge)

// WithSettings sets the speech settings sent to the client with every
// prepare command.
func WithSettings(s speech.Settings) Option {
	return func(b *Bridge) {
		b.settings = s
	}
}

// WithOriginPatterns sets the host patterns allowed to connect from another
// origin. See websocket.AcceptOptions.OriginPatterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(b *Bridge) {
		b.originPatterns = patterns
	}
}

// WithWriteTimeout bounds how long a single frame write may take.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.writeTimeout = d
	}
}

// settingsFrame is the wire form of speech.Settings.
type settingsFrame struct {
	Locale            string `json:"locale"`
	Voice             string `json:"voice"`
	NoInputTimeoutMS  int64  `json:"no_input_timeout_ms"`
	CompleteTimeoutMS int64  `json:"complete_timeout_ms,omitempty"`
}

// frame is an outgoing message.
type frame struct {
	Type      string         `json:"type"`
	Utterance string         `json:"utterance,omitempty"`
	Tag       uint64         `json:"tag,omitempty"`
	Settings  *settingsFrame `json:"settings,omitempty"`
	Display   any            `json:"display,omitempty"`
}

// client is one accepted browser connection.
type client struct {
	id   uint64
	conn *websocket.Conn
}

// Bridge is an http.Handler that accepts the speech client and a
// speech.Service that drives it.
type Bridge struct {
	settings       speech.Settings
	originPatterns []string
	writeTimeout   time.Duration

	events chan speech.Event
	done   chan struct{}

	mu         sync.Mutex
	client     *client
	nextID     uint64
	closed     bool
	prepared   bool
	prepareTag uint64
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New returns a Bridge with no client connected.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		settings:     speech.DefaultSettings(),
		writeTimeout: defaultWriteTimeout,
		events:       make(chan speech.Event, eventBuffer),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Connected reports whether a browser client is currently attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil
}

// Send relays cmd to the connected client. A prepare command is remembered
// and replayed to every client that connects later, so it succeeds even when
// no client is attached yet. Other commands return [ErrNotConnected] in that
// case.
func (b *Bridge) Send(ctx context.Context, cmd speech.Command) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return speech.ErrClosed
	}
	if cmd.Kind == speech.CommandPrepare {
		b.prepared = true
		b.prepareTag = cmd.Tag
	}
	c := b.client
	b.mu.Unlock()

	if c == nil {
		if cmd.Kind == speech.CommandPrepare {
			return nil
		}
		return ErrNotConnected
	}
	if err := b.write(ctx, c, b.commandFrame(cmd)); err != nil {
		return fmt.Errorf("wsbridge: send %s: %w", cmd.Kind, err)
	}
	return nil
}

// SendDisplay pushes a display update to the client. The value is encoded as
// JSON under the "display" key.
func (b *Bridge) SendDisplay(ctx context.Context, display any) error {
	b.mu.Lock()
	c, closed := b.client, b.closed
	b.mu.Unlock()
	if closed {
		return speech.ErrClosed
	}
	if c == nil {
		return ErrNotConnected
	}
	if err := b.write(ctx, c, frame{Type: frameDisplay, Display: display}); err != nil {
		return fmt.Errorf("wsbridge: send display: %w", err)
	}
	return nil
}

// Events returns the stream of events reported by clients.
func (b *Bridge) Events() <-chan speech.Event { return b.events }

// Close disconnects the client and closes the event channel.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		c := b.client
		b.client = nil
		close(b.done)
		b.mu.Unlock()
		if c != nil {
			_ = c.conn.CloseNow()
		}
		b.wg.Wait()
		close(b.events)
	})
	return nil
}

// ServeHTTP upgrades the request and serves the client until it disconnects
// or is superseded.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		http.Error(w, "speech bridge closed", http.StatusServiceUnavailable)
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.originPatterns,
	})
	if err != nil {
		slog.Warn("wsbridge: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.CloseNow()
		return
	}
	b.nextID++
	c := &client{id: b.nextID, conn: conn}
	old := b.client
	b.client = c
	prepared, tag := b.prepared, b.prepareTag
	b.mu.Unlock()

	if old != nil {
		slog.Info("wsbridge: speech client superseded", "old_client", old.id, "new_client", c.id)
		go func() { _ = old.conn.Close(websocket.StatusGoingAway, "superseded by a newer client") }()
	}
	slog.Info("wsbridge: speech client connected", "client", c.id, "remote", r.RemoteAddr)

	if prepared {
		if err := b.write(r.Context(), c, b.commandFrame(speech.Command{Kind: speech.CommandPrepare, Tag: tag})); err != nil {
			slog.Warn("wsbridge: replay prepare failed", "client", c.id, "err", err)
		}
	}

	b.readLoop(r.Context(), c)

	b.mu.Lock()
	if b.client == c {
		b.client = nil
	}
	b.mu.Unlock()
	_ = conn.CloseNow()
	slog.Info("wsbridge: speech client disconnected", "client", c.id)
}

// readLoop decodes event frames until the connection fails.
func (b *Bridge) readLoop(ctx context.Context, c *client) {
	for {
		var ev speech.Event
		if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Debug("wsbridge: read ended", "client", c.id, "err", err)
			}
			return
		}
		if !ev.Kind.IsValid() {
			slog.Warn("wsbridge: ignoring unknown event", "client", c.id, "type", ev.Kind)
			continue
		}
		select {
		case b.events <- ev:
		case <-b.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) write(ctx context.Context, c *client, f frame) error {
	ctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, f)
}

func (b *Bridge) commandFrame(cmd speech.Command) frame {
	f := frame{Type: string(cmd.Kind), Utterance: cmd.Utterance, Tag: cmd.Tag}
	if cmd.Kind == speech.CommandPrepare {
		f.Settings = &settingsFrame{
			Locale:            b.settings.Locale,
			Voice:             b.settings.Voice,
			NoInputTimeoutMS:  b.settings.NoInputTimeout.Milliseconds(),
			CompleteTimeoutMS: b.settings.CompleteTimeout.Milliseconds(),
		}
	}
	return f
}

// Ensure Bridge implements speech.Service at compile time.
var _ speech.Service = (*Bridge)(nil)
