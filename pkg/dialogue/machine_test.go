package dialogue

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine(Config{})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

// driver feeds events to a machine and answers speech effects with tags the
// way a well-behaved speech service would.
type driver struct {
	t    *testing.T
	m    *Machine
	snap Snapshot
	last []Effect
	// slots records CurrentSlot each time AskSlot is entered.
	slots []Slot
}

func newDriver(t *testing.T) *driver {
	t.Helper()
	m := newTestMachine(t)
	d := &driver{t: t, m: m}
	d.snap, d.last = m.Start()
	return d
}

func (d *driver) send(ev Event) Step {
	d.t.Helper()
	st := d.m.Step(d.snap, ev)
	d.snap = st.Next
	if st.Accepted {
		d.last = st.Effects
	}
	for _, s := range st.Path {
		if s == StateAskSlot {
			d.slots = append(d.slots, d.snap.Conversation.CurrentSlot)
		}
	}
	return st
}

func (d *driver) expectState(want State) {
	d.t.Helper()
	if d.snap.State != want {
		d.t.Fatalf("state = %s, want %s", d.snap.State, want)
	}
}

// spoken returns the utterance of the last speak effect.
func (d *driver) spoken() string {
	d.t.Helper()
	for i := len(d.last) - 1; i >= 0; i-- {
		if d.last[i].Kind == EffectSpeak {
			return d.last[i].Utterance
		}
	}
	d.t.Fatalf("no speak effect in %+v", d.last)
	return ""
}

func (d *driver) finished() Step {
	d.t.Helper()
	return d.send(Event{Kind: EventSpeechFinished, Tag: d.snap.Epoch})
}

// toListening brings a fresh machine to the person question.
func (d *driver) toListening() {
	d.t.Helper()
	d.send(Event{Kind: EventReady})
	d.send(Event{Kind: EventClick})
	d.finished() // greeting
	d.finished() // person prompt
	d.expectState(StateListening)
}

// answer says utterance in Listening, lets the feedback finish, and returns
// to Listening for the next question.
func (d *driver) answer(utterance string) (feedback string) {
	d.t.Helper()
	d.expectState(StateListening)
	d.send(Event{Kind: EventRecognized, Text: utterance, Tag: d.snap.Epoch})
	d.expectState(StateGivingFeedback)
	feedback = d.spoken()
	d.finished()
	if d.snap.State == StateAskSlot {
		d.finished()
	}
	return feedback
}

func TestStart(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	s, fx := m.Start()
	if s.State != StatePreparing {
		t.Errorf("State = %s, want preparing", s.State)
	}
	want := []Effect{{Kind: EffectPrepare, Tag: s.Epoch}}
	if diff := cmp.Diff(want, fx); diff != "" {
		t.Errorf("effects mismatch (-want +got):\n%s", diff)
	}
}

func TestHappyPath(t *testing.T) {
	t.Parallel()

	d := newDriver(t)
	st := d.send(Event{Kind: EventReady})
	if !st.Accepted || len(st.Effects) != 0 {
		t.Fatalf("ready: %+v", st)
	}
	d.expectState(StateIdle)

	d.send(Event{Kind: EventClick})
	d.expectState(StateGreeting)
	if got := d.spoken(); got != DefaultPrompts().Welcome {
		t.Errorf("greeting = %q", got)
	}

	d.finished()
	d.expectState(StateAskSlot)
	if d.snap.Conversation.CurrentSlot != SlotPerson {
		t.Fatalf("slot = %s, want person", d.snap.Conversation.CurrentSlot)
	}
	if got := d.spoken(); got != "Who would you like to meet with?" {
		t.Errorf("person prompt = %q", got)
	}

	st = d.finished()
	d.expectState(StateListening)
	if diff := cmp.Diff([]Effect{{Kind: EffectListen, Tag: d.snap.Epoch}}, st.Effects); diff != "" {
		t.Errorf("listen effects (-want +got):\n%s", diff)
	}

	if fb := d.answer("Moomintroll"); fb != "You just said Moomintroll." {
		t.Errorf("feedback = %q", fb)
	}
	if d.snap.Conversation.Person != "Moomintroll" || d.snap.Conversation.CurrentSlot != SlotDay {
		t.Fatalf("after person: %+v", d.snap.Conversation)
	}

	d.answer("Friday")
	d.answer("14")
	c := d.snap.Conversation
	if c.Day != "Friday" || c.Time != "14:00" || c.CurrentSlot != SlotConfirmation {
		t.Fatalf("after time: %+v", c)
	}

	// The confirmation question was the last speak before listening.
	d.expectState(StateListening)
	d.send(Event{Kind: EventRecognized, Text: "yeah sure", Tag: d.snap.Epoch})
	if fb := d.spoken(); fb != DefaultPrompts().NotUnderstood {
		t.Errorf("feedback for phrase outside grammar = %q", fb)
	}
	d.finished()
	d.expectState(StateDone)
	if got := d.spoken(); got != DefaultPrompts().Closing {
		t.Errorf("closing = %q", got)
	}
	if d.snap.Conversation.Confirmation != ConfirmationYes {
		t.Errorf("confirmation = %q", d.snap.Conversation.Confirmation)
	}

	want := []Slot{SlotPerson, SlotDay, SlotTime, SlotConfirmation}
	if diff := cmp.Diff(want, d.slots); diff != "" {
		t.Errorf("slot order (-want +got):\n%s", diff)
	}
}

func TestConfirmationPromptEmbedsValues(t *testing.T) {
	t.Parallel()

	d := newDriver(t)
	d.toListening()
	d.answer("snufkin")
	d.answer("tuesday")
	d.send(Event{Kind: EventRecognized, Text: "9", Tag: d.snap.Epoch})
	d.finished()
	d.expectState(StateAskSlot)

	want := "Do you want to have a picnic with Snufkin on Tuesday at 09:00?"
	if got := d.spoken(); got != want {
		t.Errorf("confirmation prompt = %q, want %q", got, want)
	}
}

func TestUnknownUtteranceRetriesSameSlot(t *testing.T) {
	t.Parallel()

	for _, slotAnswers := range [][]string{
		{},
		{"sniff"},
		{"sniff", "monday"},
	} {
		d := newDriver(t)
		d.toListening()
		for _, a := range slotAnswers {
			d.answer(a)
		}
		before := d.snap.Conversation.CurrentSlot

		st := d.send(Event{Kind: EventRecognized, Text: "banana", Tag: d.snap.Epoch})
		if st.Outcome != OutcomeMissed {
			t.Errorf("outcome = %q, want %q", st.Outcome, OutcomeMissed)
		}
		if fb := d.spoken(); fb != "I'm sorry, I didn't catch that." {
			t.Errorf("feedback = %q", fb)
		}
		if v := d.snap.Conversation.Value(before); v != "" {
			t.Errorf("%s = %q, want empty", before, v)
		}

		d.finished()
		d.expectState(StateAskSlot)
		if got := d.snap.Conversation.CurrentSlot; got != before {
			t.Errorf("slot = %s, want %s retried", got, before)
		}
	}
}

func TestWordForOtherSlotIsNotAccepted(t *testing.T) {
	t.Parallel()

	d := newDriver(t)
	d.toListening()
	fb := d.answer("Monday")
	if fb != "You just said Monday." {
		t.Errorf("known word should be acknowledged, got %q", fb)
	}
	c := d.snap.Conversation
	if c.Person != "" || c.Day != "" || c.CurrentSlot != SlotPerson {
		t.Errorf("day word on person slot: %+v", c)
	}
}

func TestNoInputRetry(t *testing.T) {
	t.Parallel()

	for _, prefix := range [][]string{{}, {"sniff"}, {"sniff", "monday"}, {"sniff", "monday", "10"}} {
		d := newDriver(t)
		d.toListening()
		for _, a := range prefix {
			d.answer(a)
		}
		slot := d.snap.Conversation.CurrentSlot

		d.send(Event{Kind: EventNoInput, Tag: d.snap.Epoch})
		d.expectState(StateNoInputRetry)
		want := "I can't hear you. Please tell me the " + string(slot) + "."
		if got := d.spoken(); got != want {
			t.Errorf("retry = %q, want %q", got, want)
		}
		if d.snap.Conversation.Heard {
			t.Error("Heard should be false after no input")
		}

		d.finished()
		d.expectState(StateAskSlot)
		if d.snap.Conversation.CurrentSlot != slot {
			t.Errorf("slot = %s, want %s", d.snap.Conversation.CurrentSlot, slot)
		}
	}
}

func TestRejectionReturnsToPersonAndKeepsValues(t *testing.T) {
	t.Parallel()

	for _, answer := range []string{"nope", "hmm"} {
		d := newDriver(t)
		d.toListening()
		d.answer("sniff")
		d.answer("monday")
		d.answer("10")

		st := d.send(Event{Kind: EventRecognized, Text: answer, Tag: d.snap.Epoch})
		wantOutcome := OutcomeDenied
		if answer == "hmm" {
			wantOutcome = OutcomeUnclear
		}
		if st.Outcome != wantOutcome {
			t.Errorf("%q: outcome = %q, want %q", answer, st.Outcome, wantOutcome)
		}
		d.finished()
		d.expectState(StateAskSlot)

		c := d.snap.Conversation
		if c.CurrentSlot != SlotPerson {
			t.Errorf("%q: slot = %s, want person", answer, c.CurrentSlot)
		}
		if c.Person != "Sniff" || c.Day != "Monday" || c.Time != "10:00" {
			t.Errorf("%q: collected values lost: %+v", answer, c)
		}

		// A new person overwrites, the others survive into the next question.
		d.finished()
		d.answer("stinky")
		d.answer("friday")
		d.send(Event{Kind: EventRecognized, Text: "16", Tag: d.snap.Epoch})
		d.finished()
		want := "Do you want to have a picnic with Stinky on Friday at 16:00?"
		if got := d.spoken(); got != want {
			t.Errorf("%q: confirmation = %q, want %q", answer, got, want)
		}
		if d.snap.Conversation.Confirmation != ConfirmationUnclear {
			t.Errorf("confirmation not reset on re-ask: %q", d.snap.Conversation.Confirmation)
		}
	}
}

func TestFeedbackRaceAdvancesOnce(t *testing.T) {
	t.Parallel()

	triggers := []EventKind{EventSpeechFinished, EventSpeechAcknowledged, EventFeedbackTimeout}
	for _, first := range triggers {
		for _, second := range triggers {
			d := newDriver(t)
			d.toListening()
			d.send(Event{Kind: EventRecognized, Text: "sniff", Tag: d.snap.Epoch})
			feedbackEpoch := d.snap.Epoch

			st := d.send(Event{Kind: first, Tag: feedbackEpoch})
			if !st.Accepted {
				t.Fatalf("%s first: not accepted", first)
			}
			d.expectState(StateAskSlot)
			afterFirst := d.snap

			st = d.send(Event{Kind: second, Tag: feedbackEpoch})
			if st.Accepted || len(st.Effects) != 0 {
				t.Errorf("%s then %s: duplicate advanced: %+v", first, second, st)
			}
			if diff := cmp.Diff(afterFirst, d.snap); diff != "" {
				t.Errorf("%s then %s: snapshot changed (-want +got):\n%s", first, second, diff)
			}
			if d.snap.Conversation.CurrentSlot != SlotDay {
				t.Errorf("slot = %s, want day", d.snap.Conversation.CurrentSlot)
			}
		}
	}
}

func TestUntaggedDuplicateAfterAdvanceIsIgnoredInListening(t *testing.T) {
	t.Parallel()

	d := newDriver(t)
	d.toListening()
	d.send(Event{Kind: EventRecognized, Text: "sniff", Tag: d.snap.Epoch})
	d.send(Event{Kind: EventFeedbackTimeout, Tag: d.snap.Epoch})
	d.finished() // day prompt
	d.expectState(StateListening)

	st := d.send(Event{Kind: EventSpeechAcknowledged})
	if st.Accepted {
		t.Error("speech acknowledged must not apply to listening")
	}
	d.expectState(StateListening)
}

func TestLateFeedbackFinishedNeedsTag(t *testing.T) {
	t.Parallel()

	d := newDriver(t)
	d.toListening()
	d.send(Event{Kind: EventRecognized, Text: "moomintroll", Tag: d.snap.Epoch})
	feedbackEpoch := d.snap.Epoch
	d.send(Event{Kind: EventFeedbackTimeout, Tag: feedbackEpoch})
	d.expectState(StateAskSlot)
	asking := d.snap

	// The feedback utterance finishes while the day prompt is playing.
	st := d.send(Event{Kind: EventSpeechFinished, Tag: feedbackEpoch})
	if st.Accepted {
		t.Error("late tagged speech finished advanced the day prompt")
	}
	if diff := cmp.Diff(asking, d.snap); diff != "" {
		t.Errorf("snapshot changed (-want +got):\n%s", diff)
	}

	// Untagged events skip the epoch check, so the same answer without a
	// tag is taken as the end of the prompt.
	if !d.m.Accepts(asking, Event{Kind: EventSpeechFinished}) {
		t.Error("untagged speech finished should be accepted in ask slot")
	}
}

func TestFeedbackEffects(t *testing.T) {
	t.Parallel()

	m, err := NewMachine(Config{FeedbackTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	s := Snapshot{
		State:        StateListening,
		Epoch:        10,
		Conversation: Conversation{CurrentSlot: SlotTime},
	}
	st := m.Step(s, Event{Kind: EventRecognized, Text: "11"})

	want := []Effect{
		{Kind: EffectSpeak, Utterance: "You just said 11.", Tag: 12},
		{Kind: EffectStartTimer, Tag: 12, After: 20 * time.Millisecond},
	}
	if diff := cmp.Diff(want, st.Effects); diff != "" {
		t.Errorf("effects (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]State{StateInterpreting, StateGivingFeedback}, st.Path); diff != "" {
		t.Errorf("path (-want +got):\n%s", diff)
	}
	if st.Next.Conversation.Time != "11:00" || st.Outcome != OutcomeFilled {
		t.Errorf("next = %+v, outcome %q", st.Next.Conversation, st.Outcome)
	}
}

func TestTransitionIsPure(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	s := Snapshot{
		State:        StateListening,
		Epoch:        5,
		Conversation: Conversation{CurrentSlot: SlotPerson},
	}
	orig := s
	next, _ := m.Transition(s, Event{Kind: EventRecognized, Text: "sniff", Tag: 5})
	if diff := cmp.Diff(orig, s); diff != "" {
		t.Errorf("input snapshot mutated (-want +got):\n%s", diff)
	}
	if next.Conversation.Person != "Sniff" {
		t.Errorf("Person = %q", next.Conversation.Person)
	}
}

func TestStaleTagIgnored(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	s := Snapshot{State: StateAskSlot, Epoch: 9, Conversation: Conversation{CurrentSlot: SlotDay}}
	next, fx := m.Transition(s, Event{Kind: EventSpeechFinished, Tag: 7})
	if next != s || fx != nil {
		t.Errorf("stale event changed state: %+v %+v", next, fx)
	}
	if m.Accepts(s, Event{Kind: EventSpeechFinished, Tag: 7}) {
		t.Error("Accepts returned true for a stale tag")
	}
	if !m.Accepts(s, Event{Kind: EventSpeechFinished}) {
		t.Error("Accepts returned false for an untagged matching event")
	}
}

func TestClicksOnlyStartFromIdleOrDone(t *testing.T) {
	t.Parallel()

	d := newDriver(t)
	if st := d.send(Event{Kind: EventClick}); st.Accepted {
		t.Error("click accepted while preparing")
	}
	d.toListening()
	if st := d.send(Event{Kind: EventClick}); st.Accepted {
		t.Error("click accepted while listening")
	}
}

func TestRestartFromDoneClearsValues(t *testing.T) {
	t.Parallel()

	d := newDriver(t)
	d.toListening()
	d.answer("sniff")
	d.answer("monday")
	d.answer("10")
	d.send(Event{Kind: EventRecognized, Text: "yes", Tag: d.snap.Epoch})
	d.finished()
	d.expectState(StateDone)
	d.finished() // closing remark finished; stays in Done
	d.expectState(StateDone)

	d.send(Event{Kind: EventClick})
	d.expectState(StateGreeting)
	if diff := cmp.Diff(Conversation{}, d.snap.Conversation); diff != "" {
		t.Errorf("conversation not cleared (-want +got):\n%s", diff)
	}
}

func TestNewMachine_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewMachine(Config{FeedbackTimeout: -time.Second}); err == nil {
		t.Error("expected error for negative timeout")
	}
	_, err := NewMachine(Config{Prompts: Prompts{NoInput: "Please say the {slt}."}})
	if err == nil || !strings.Contains(err.Error(), "{slt}") {
		t.Errorf("expected placeholder error, got %v", err)
	}

	m := newTestMachine(t)
	if m.FeedbackTimeout() != DefaultFeedbackTimeout {
		t.Errorf("FeedbackTimeout = %s", m.FeedbackTimeout())
	}
	if m.Grammar().Len() == 0 {
		t.Error("default grammar is empty")
	}
	if m.Prompts() != DefaultPrompts() {
		t.Error("default prompts not applied")
	}
}

func TestCustomPrompts(t *testing.T) {
	t.Parallel()

	m, err := NewMachine(Config{Prompts: Prompts{Welcome: "Hei!", Heard: "Got {utterance}!"}})
	if err != nil {
		t.Fatal(err)
	}
	p := m.Prompts()
	if p.Welcome != "Hei!" || p.Person != DefaultPrompts().Person {
		t.Errorf("merged prompts = %+v", p)
	}
	if got := p.Feedback(" sniff ", true); got != "Got sniff!" {
		t.Errorf("Feedback = %q", got)
	}
}

func TestStateStrings(t *testing.T) {
	t.Parallel()

	for s := StatePreparing; s <= StateDone; s++ {
		if s.String() == "unknown" {
			t.Errorf("state %d has no name", s)
		}
	}
	if State(99).String() != "unknown" {
		t.Error("out-of-range state should be unknown")
	}
	for k := EventClick; k <= EventFeedbackTimeout; k++ {
		if k.String() == "unknown" {
			t.Errorf("event kind %d has no name", k)
		}
	}
	for k := EffectPrepare; k <= EffectStartTimer; k++ {
		if k.String() == "unknown" {
			t.Errorf("effect kind %d has no name", k)
		}
	}
	if !StateInterpreting.Transient() || StateListening.Transient() {
		t.Error("Transient mismatch")
	}
}
