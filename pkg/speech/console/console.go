// Package console provides a text-mode speech.Service. Synthesis is printed to
// an [io.Writer] and recognition reads one line at a time from an [io.Reader],
// which makes the dialogue usable from a terminal or a scripted pipe.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/moomindm/pkg/speech"
)

// eventBuffer is the capacity of the event channel.
const eventBuffer = 16

// Option is a functional option for configuring the console Service.
type Option func(*Service)

// WithSettings overrides the speech settings. Only NoInputTimeout is used.
func WithSettings(s speech.Settings) Option {
	return func(svc *Service) {
		svc.settings = s
	}
}

// WithSpeakPrefix sets the prefix printed before every spoken utterance.
func WithSpeakPrefix(prefix string) Option {
	return func(svc *Service) {
		svc.prefix = prefix
	}
}

// Service implements speech.Service on top of a line-oriented reader and a
// writer.
type Service struct {
	settings speech.Settings
	prefix   string

	outMu sync.Mutex
	out   io.Writer

	lines  chan string
	events chan speech.Event
	done   chan struct{}

	mu         sync.Mutex
	closed     bool
	stopListen chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New returns a console Service reading utterances from in and printing
// speech to out. The reader goroutine ends when in reaches EOF; a reader that
// never returns (like os.Stdin) outlives Close.
func New(in io.Reader, out io.Writer, opts ...Option) *Service {
	s := &Service{
		settings: speech.DefaultSettings(),
		prefix:   "» ",
		out:      out,
		lines:    make(chan string),
		events:   make(chan speech.Event, eventBuffer),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.readLoop(in)
	return s
}

// Send executes cmd. Speak and Listen cancel a pending Listen.
func (s *Service) Send(ctx context.Context, cmd speech.Command) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return speech.ErrClosed
	}
	s.wg.Add(1)
	s.cancelListenLocked()
	s.mu.Unlock()
	defer s.wg.Done()

	switch cmd.Kind {
	case speech.CommandPrepare:
		slog.Debug("console speech ready", "locale", s.settings.Locale, "no_input_timeout", s.settings.NoInputTimeout)
		s.emit(speech.Event{Kind: speech.EventReady, Tag: cmd.Tag})
	case speech.CommandSpeak:
		s.outMu.Lock()
		_, err := fmt.Fprintf(s.out, "%s%s\n", s.prefix, cmd.Utterance)
		s.outMu.Unlock()
		if err != nil {
			return fmt.Errorf("console: write utterance: %w", err)
		}
		s.emit(speech.Event{Kind: speech.EventSpeechFinished, Tag: cmd.Tag})
	case speech.CommandListen:
		s.startListen(cmd.Tag)
	default:
		return fmt.Errorf("console: unknown command %q", cmd.Kind)
	}
	return nil
}

// Events returns the event channel. It is closed by Close.
func (s *Service) Events() <-chan speech.Event { return s.events }

// Close stops any pending Listen and closes the event channel.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cancelListenLocked()
		close(s.done)
		s.mu.Unlock()
		s.wg.Wait()
		close(s.events)
	})
	return nil
}

// startListen arms a listener that reports the next input line, or
// NoInput once the timeout elapses.
func (s *Service) startListen(tag uint64) {
	stop := make(chan struct{})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopListen = stop
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.settings.NoInputTimeout)
		defer timer.Stop()

		select {
		case line := <-s.lines:
			text := strings.TrimSpace(line)
			if text == "" {
				s.emit(speech.Event{Kind: speech.EventNoInput, Tag: tag})
				return
			}
			s.emit(speech.Event{Kind: speech.EventRecognized, Text: text, Confidence: 1, Tag: tag})
		case <-timer.C:
			s.emit(speech.Event{Kind: speech.EventNoInput, Tag: tag})
		case <-stop:
		case <-s.done:
		}
	}()
}

// cancelListenLocked stops the pending listener. s.mu must be held.
func (s *Service) cancelListenLocked() {
	if s.stopListen != nil {
		close(s.stopListen)
		s.stopListen = nil
	}
}

func (s *Service) emit(ev speech.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// readLoop forwards input lines to whichever listener is waiting. Lines typed
// while nobody listens are held until the next Listen.
func (s *Service) readLoop(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case s.lines <- sc.Text():
		case <-s.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		slog.Warn("console speech input failed", "err", err)
	}
}

// Ensure Service implements speech.Service at compile time.
var _ speech.Service = (*Service)(nil)
