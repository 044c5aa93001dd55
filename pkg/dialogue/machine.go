package dialogue

import (
	"fmt"
	"time"

	"github.com/MrWong99/moomindm/pkg/grammar"
)

// DefaultFeedbackTimeout is how long GivingFeedback waits for the speech
// service before advancing on its own.
const DefaultFeedbackTimeout = 3500 * time.Millisecond

// Config configures a [Machine]. Zero values select the built-in defaults.
type Config struct {
	// Grammar is the vocabulary used for slot resolution and feedback.
	// Default: grammar.Default().
	Grammar *grammar.Table

	// Prompts is the wording. Empty fields fall back to DefaultPrompts.
	Prompts Prompts

	// FeedbackTimeout is the fallback timer of the feedback step.
	// Default: DefaultFeedbackTimeout.
	FeedbackTimeout time.Duration
}

// Machine is the dialogue state machine. It holds configuration only; the
// per-session state lives in [Snapshot] values, so one Machine can serve any
// number of sessions and is safe for concurrent use.
type Machine struct {
	grammar         *grammar.Table
	prompts         Prompts
	feedbackTimeout time.Duration
}

// NewMachine validates cfg and returns a Machine.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Grammar == nil {
		cfg.Grammar = grammar.Default()
	}
	if cfg.FeedbackTimeout < 0 {
		return nil, fmt.Errorf("dialogue: feedback timeout %s must not be negative", cfg.FeedbackTimeout)
	}
	if cfg.FeedbackTimeout == 0 {
		cfg.FeedbackTimeout = DefaultFeedbackTimeout
	}
	prompts := cfg.Prompts.WithDefaults()
	if err := prompts.Validate(); err != nil {
		return nil, fmt.Errorf("dialogue: %w", err)
	}
	return &Machine{
		grammar:         cfg.Grammar,
		prompts:         prompts,
		feedbackTimeout: cfg.FeedbackTimeout,
	}, nil
}

// Grammar returns the machine's grammar table.
func (m *Machine) Grammar() *grammar.Table { return m.grammar }

// Prompts returns the machine's effective prompts.
func (m *Machine) Prompts() Prompts { return m.prompts }

// FeedbackTimeout returns the fallback timer duration of the feedback step.
func (m *Machine) FeedbackTimeout() time.Duration { return m.feedbackTimeout }

// Step is the full result of handling one event.
type Step struct {
	// Next is the snapshot after the event and all eventless transitions.
	Next Snapshot

	// Effects are the side effects to execute, in order.
	Effects []Effect

	// Path lists every state entered, transient ones included.
	Path []State

	// Accepted is false when the event was ignored: it did not apply to the
	// current state or answered a superseded command.
	Accepted bool

	// Outcome is how the utterance was interpreted when Path passes through
	// StateInterpreting, OutcomeNone otherwise.
	Outcome Outcome
}

// Start returns the initial snapshot and the effects that bring up the
// speech service.
func (m *Machine) Start() (Snapshot, []Effect) {
	s := Snapshot{State: StatePreparing, Epoch: 1}
	return s, []Effect{{Kind: EffectPrepare, Tag: s.Epoch}}
}

// Transition handles ev in snapshot s and returns the next snapshot and the
// effects to execute. Ignored events return s unchanged and no effects.
func (m *Machine) Transition(s Snapshot, ev Event) (Snapshot, []Effect) {
	st := m.Step(s, ev)
	return st.Next, st.Effects
}

// Accepts reports whether ev applies to snapshot s. An event is rejected
// when its tag names an earlier epoch, or when the current state has no
// transition for its kind. Untagged events skip the epoch check, so a late
// untagged speech finished for the feedback utterance ends the next prompt
// early.
func (m *Machine) Accepts(s Snapshot, ev Event) bool {
	if ev.Tag != 0 && ev.Tag != s.Epoch {
		return false
	}
	switch s.State {
	case StatePreparing:
		return ev.Kind == EventReady
	case StateIdle, StateDone:
		return ev.Kind == EventClick
	case StateGreeting, StateAskSlot, StateNoInputRetry:
		return ev.Kind == EventSpeechFinished
	case StateListening:
		return ev.Kind == EventRecognized || ev.Kind == EventNoInput
	case StateGivingFeedback:
		switch ev.Kind {
		case EventSpeechFinished, EventSpeechAcknowledged, EventFeedbackTimeout:
			return true
		}
	}
	return false
}

// Step handles ev like [Machine.Transition] but also reports the path taken
// and the interpretation outcome.
func (m *Machine) Step(s Snapshot, ev Event) Step {
	if !m.Accepts(s, ev) {
		return Step{Next: s}
	}

	st := Step{Next: s, Accepted: true}
	c := &st.Next.Conversation

	switch s.State {
	case StatePreparing:
		m.enter(&st, StateIdle)
	case StateIdle, StateDone:
		*c = Conversation{}
		m.enter(&st, StateGreeting)
	case StateGreeting:
		c.CurrentSlot = SlotPerson
		m.enter(&st, StateAskSlot)
	case StateAskSlot:
		m.enter(&st, StateListening)
	case StateNoInputRetry:
		m.enter(&st, StateAskSlot)
	case StateListening:
		if ev.Kind == EventRecognized {
			c.LastUtterance = ev.Text
			c.Heard = true
			m.enter(&st, StateInterpreting)
		} else {
			c.LastUtterance = ""
			c.Heard = false
			m.enter(&st, StateNoInputRetry)
		}
	case StateGivingFeedback:
		m.enter(&st, StateAdvanceSlot)
	}
	return st
}

// enter moves st into state to, runs its entry actions, and follows any
// eventless transition.
func (m *Machine) enter(st *Step, to State) {
	st.Next.State = to
	st.Next.Epoch++
	st.Path = append(st.Path, to)

	c := &st.Next.Conversation
	tag := st.Next.Epoch

	switch to {
	case StateGreeting:
		st.speak(m.prompts.Welcome, tag)

	case StateAskSlot:
		if c.CurrentSlot == SlotConfirmation {
			c.Confirmation = ConfirmationUnclear
		}
		st.speak(m.prompts.Ask(c.CurrentSlot, *c), tag)

	case StateListening:
		st.Effects = append(st.Effects, Effect{Kind: EffectListen, Tag: tag})

	case StateNoInputRetry:
		st.speak(m.prompts.Retry(c.CurrentSlot), tag)

	case StateInterpreting:
		st.Outcome = m.interpret(c)
		m.enter(st, StateGivingFeedback)

	case StateGivingFeedback:
		st.speak(m.prompts.Feedback(c.LastUtterance, m.grammar.Contains(c.LastUtterance)), tag)
		st.Effects = append(st.Effects, Effect{Kind: EffectStartTimer, Tag: tag, After: m.feedbackTimeout})

	case StateAdvanceSlot:
		m.enter(st, m.advance(c))

	case StateDone:
		st.speak(m.prompts.Closing, tag)
	}
}

// interpret resolves the last utterance into the current slot.
func (m *Machine) interpret(c *Conversation) Outcome {
	v, ok := Resolve(m.grammar, c.CurrentSlot, c.LastUtterance)
	c.set(c.CurrentSlot, v)

	if c.CurrentSlot == SlotConfirmation {
		switch c.Confirmation {
		case ConfirmationYes:
			return OutcomeConfirmed
		case ConfirmationNo:
			return OutcomeDenied
		}
		return OutcomeUnclear
	}
	if ok {
		return OutcomeFilled
	}
	return OutcomeMissed
}

// advance evaluates the slot guards in fixed priority order and returns the
// state to enter. It updates CurrentSlot when the dialogue moves on.
func (m *Machine) advance(c *Conversation) State {
	switch {
	case c.CurrentSlot == SlotPerson && c.Person != "":
		c.CurrentSlot = SlotDay
	case c.CurrentSlot == SlotDay && c.Day != "":
		c.CurrentSlot = SlotTime
	case c.CurrentSlot == SlotTime && c.Time != "":
		c.CurrentSlot = SlotConfirmation
	case c.CurrentSlot == SlotConfirmation && c.Confirmation == ConfirmationYes:
		c.CurrentSlot = SlotNone
		return StateDone
	case c.CurrentSlot == SlotConfirmation:
		// A rejected or unclear proposal starts over from the person slot;
		// collected values stay until a new answer overwrites them.
		c.CurrentSlot = SlotPerson
	}
	return StateAskSlot
}

func (st *Step) speak(utterance string, tag uint64) {
	st.Effects = append(st.Effects, Effect{Kind: EffectSpeak, Utterance: utterance, Tag: tag})
}
