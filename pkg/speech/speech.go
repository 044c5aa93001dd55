// Package speech defines the contract between the dialogue and an external
// speech service that performs synthesis and recognition.
//
// The service is driven by three commands ([CommandPrepare], [CommandSpeak],
// [CommandListen]) and reports back through a single event stream
// ([EventReady], [EventSpeechFinished], [EventSpeechAcknowledged],
// [EventRecognized], [EventNoInput]). A new Speak or Listen command
// supersedes whatever the service was doing before.
//
// Every command carries a Tag; services must copy it into the events that
// answer the command so the dialogue can discard late answers to superseded
// commands. Untagged events are applied to whatever the dialogue is doing
// now. A service that leaves tags zero still works, but when the feedback
// timer advances the dialogue before playback ends, the late
// [EventSpeechFinished] for the feedback is taken as the end of the next
// prompt and listening starts while that prompt is still playing.
package speech

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by [Service.Send] after the service has been closed.
var ErrClosed = errors.New("speech: service closed")

// CommandKind identifies a command sent to the speech service.
type CommandKind string

const (
	CommandPrepare CommandKind = "prepare"
	CommandSpeak   CommandKind = "speak"
	CommandListen  CommandKind = "listen"
)

// Command is an instruction for the speech service.
type Command struct {
	Kind CommandKind `json:"type"`

	// Utterance is the text to synthesise for CommandSpeak.
	Utterance string `json:"utterance,omitempty"`

	// Tag is echoed back in the events answering this command.
	Tag uint64 `json:"tag,omitempty"`
}

// EventKind identifies an event emitted by the speech service.
type EventKind string

const (
	// EventReady follows CommandPrepare once synthesis and recognition are
	// available.
	EventReady EventKind = "ready"

	// EventSpeechFinished reports that a synthesised utterance finished
	// playing.
	EventSpeechFinished EventKind = "speech_finished"

	// EventSpeechAcknowledged reports that the service has consumed the
	// utterance even though playback completion may not be signalled.
	EventSpeechAcknowledged EventKind = "speech_acknowledged"

	// EventRecognized carries a recognised utterance.
	EventRecognized EventKind = "recognized"

	// EventNoInput reports that the listening window elapsed without speech.
	EventNoInput EventKind = "no_input"
)

// IsValid reports whether k is a known event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventReady, EventSpeechFinished, EventSpeechAcknowledged, EventRecognized, EventNoInput:
		return true
	}
	return false
}

// Event is a notification from the speech service.
type Event struct {
	Kind EventKind `json:"type"`

	// Text is the recognised utterance for EventRecognized.
	Text string `json:"text,omitempty"`

	// Confidence is the recogniser's confidence (0.0–1.0) when reported.
	Confidence float64 `json:"confidence,omitempty"`

	// Tag is copied from the command this event answers.
	Tag uint64 `json:"tag,omitempty"`
}

// Settings describes how the speech service should be prepared.
type Settings struct {
	// Locale is the BCP-47 language tag for both synthesis and recognition.
	Locale string `json:"locale"`

	// Voice is the synthesis voice identifier.
	Voice string `json:"voice"`

	// NoInputTimeout is how long Listen waits for speech before reporting
	// EventNoInput.
	NoInputTimeout time.Duration `json:"-"`

	// CompleteTimeout is the silence after speech that ends an utterance.
	// Zero lets the service decide.
	CompleteTimeout time.Duration `json:"-"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		Locale:         "en-US",
		Voice:          "en-US-DavisNeural",
		NoInputTimeout: 5 * time.Second,
	}
}

// Service is the abstraction over any speech backend.
//
// Send must be safe for concurrent use, but the dialogue only ever issues one
// command at a time. Events returns the same channel on every call; it is
// closed when the service shuts down.
type Service interface {
	// Send delivers cmd to the service. Returns [ErrClosed] after Close.
	Send(ctx context.Context, cmd Command) error

	// Events returns the stream of service events.
	Events() <-chan Event

	// Close releases the service. Calling Close more than once is safe.
	Close() error
}
