// Package mock provides a test double for the speech.Service interface.
//
// Use Service to observe the commands a dialogue issues and to inject speech
// events by hand with Emit, or automatically with Responder.
//
// Example:
//
//	svc := mock.New()
//	svc.Responder = func(cmd speech.Command) []speech.Event {
//	    if cmd.Kind == speech.CommandPrepare {
//	        return []speech.Event{{Kind: speech.EventReady}}
//	    }
//	    return nil
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/moomindm/pkg/speech"
)

// eventBuffer bounds how many undelivered events the mock can hold.
const eventBuffer = 256

// SendCall records a single invocation of Send.
type SendCall struct {
	// Ctx is the context passed to Send.
	Ctx context.Context
	// Command is the command passed to Send.
	Command speech.Command
}

// Service is a mock implementation of speech.Service.
type Service struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Responder, if set, is called for every successful Send; the events it
	// returns are queued in order on the event channel.
	Responder func(cmd speech.Command) []speech.Event

	// --- Call records ---

	// SendCalls records every call to Send in order.
	SendCalls []SendCall

	// CloseCalls counts calls to Close.
	CloseCalls int

	events    chan speech.Event
	closed    bool
	sentCh    chan speech.Command
	closeOnce sync.Once
}

// New returns a ready-to-use mock Service.
func New() *Service {
	return &Service{
		events: make(chan speech.Event, eventBuffer),
		sentCh: make(chan speech.Command, eventBuffer),
	}
}

// Send records the call and, unless SendErr is set, runs Responder.
func (s *Service) Send(ctx context.Context, cmd speech.Command) error {
	s.mu.Lock()
	s.SendCalls = append(s.SendCalls, SendCall{Ctx: ctx, Command: cmd})
	if s.closed {
		s.mu.Unlock()
		return speech.ErrClosed
	}
	if s.SendErr != nil {
		err := s.SendErr
		s.mu.Unlock()
		return err
	}
	responder := s.Responder
	s.mu.Unlock()

	select {
	case s.sentCh <- cmd:
	default:
	}
	if responder != nil {
		for _, ev := range responder(cmd) {
			s.Emit(ev)
		}
	}
	return nil
}

// SetSendErr changes SendErr while the mock is in use.
func (s *Service) SetSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendErr = err
}

// Events returns the event channel.
func (s *Service) Events() <-chan speech.Event {
	return s.events
}

// Emit queues ev on the event channel. It is a no-op after Close.
func (s *Service) Emit(ev speech.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Sent returns a channel that receives a copy of every successfully sent
// command. Useful for waiting on the dialogue without polling.
func (s *Service) Sent() <-chan speech.Command {
	return s.sentCh
}

// Commands returns a copy of the commands sent so far.
func (s *Service) Commands() []speech.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speech.Command, len(s.SendCalls))
	for i, c := range s.SendCalls {
		out[i] = c.Command
	}
	return out
}

// Close records the call and closes the event channel once.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	s.closeOnce.Do(func() {
		s.closed = true
		close(s.events)
	})
	return s.CloseErr
}

// Reset clears all recorded calls. Thread-safe.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendCalls = nil
	s.CloseCalls = 0
}

// Ensure Service implements speech.Service at compile time.
var _ speech.Service = (*Service)(nil)
