package dialogue

import "time"

// State is a node of the dialogue state machine.
type State int

const (
	// StatePreparing waits for the speech service to report it is ready.
	StatePreparing State = iota

	// StateIdle waits for the first click.
	StateIdle

	// StateGreeting speaks the welcome message.
	StateGreeting

	// StateAskSlot speaks the question for the current slot.
	StateAskSlot

	// StateListening waits for a recognised utterance or a no-input timeout.
	StateListening

	// StateNoInputRetry tells the user nothing was heard.
	StateNoInputRetry

	// StateInterpreting resolves the utterance into the current slot. Transient.
	StateInterpreting

	// StateGivingFeedback acknowledges the utterance. It ends on the first of
	// speech finished, speech acknowledged, or the feedback timeout.
	StateGivingFeedback

	// StateAdvanceSlot picks the next slot or finishes. Transient.
	StateAdvanceSlot

	// StateDone has spoken the closing remark and waits for a restart click.
	StateDone
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateIdle:
		return "idle"
	case StateGreeting:
		return "greeting"
	case StateAskSlot:
		return "ask_slot"
	case StateListening:
		return "listening"
	case StateNoInputRetry:
		return "no_input_retry"
	case StateInterpreting:
		return "interpreting"
	case StateGivingFeedback:
		return "giving_feedback"
	case StateAdvanceSlot:
		return "advance_slot"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Transient reports whether s is left immediately without waiting for an
// event.
func (s State) Transient() bool {
	return s == StateInterpreting || s == StateAdvanceSlot
}

// EventKind identifies an input to the state machine.
type EventKind int

const (
	EventClick EventKind = iota + 1
	EventReady
	EventSpeechFinished
	EventSpeechAcknowledged
	EventRecognized
	EventNoInput
	EventFeedbackTimeout
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventClick:
		return "click"
	case EventReady:
		return "ready"
	case EventSpeechFinished:
		return "speech_finished"
	case EventSpeechAcknowledged:
		return "speech_acknowledged"
	case EventRecognized:
		return "recognized"
	case EventNoInput:
		return "no_input"
	case EventFeedbackTimeout:
		return "feedback_timeout"
	default:
		return "unknown"
	}
}

// Event is an input to [Machine.Transition].
type Event struct {
	Kind EventKind

	// Text is the recognised utterance for EventRecognized.
	Text string

	// Tag is the epoch of the command or timer the event answers. Zero means
	// untagged; untagged events are matched against the current state only.
	Tag uint64
}

// EffectKind identifies a side effect requested by the state machine.
type EffectKind int

const (
	EffectPrepare EffectKind = iota + 1
	EffectSpeak
	EffectListen
	EffectStartTimer
)

// String returns the human-readable name of the effect kind.
func (k EffectKind) String() string {
	switch k {
	case EffectPrepare:
		return "prepare"
	case EffectSpeak:
		return "speak"
	case EffectListen:
		return "listen"
	case EffectStartTimer:
		return "start_timer"
	default:
		return "unknown"
	}
}

// Effect is a side effect the caller of [Machine.Transition] must execute.
type Effect struct {
	Kind EffectKind

	// Utterance is the text to synthesise for EffectSpeak.
	Utterance string

	// Tag is the epoch of the state that requested the effect. Events that
	// answer the effect should carry it back.
	Tag uint64

	// After is the timer duration for EffectStartTimer.
	After time.Duration
}

// Snapshot is the complete state of one dialogue at rest.
type Snapshot struct {
	State        State
	Conversation Conversation

	// Epoch increases on every state entry.
	Epoch uint64
}

// Outcome classifies how an utterance was interpreted.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeFilled    Outcome = "filled"
	OutcomeMissed    Outcome = "not_understood"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeDenied    Outcome = "denied"
	OutcomeUnclear   Outcome = "unclear"
)
