// Package session runs one dialogue against a speech service.
//
// A [Session] owns a single event loop goroutine ([Session.Run]). Clicks,
// speech service events, and timer firings are queued into the loop and
// handled one at a time: the dialogue machine computes the next snapshot and
// its effects, the loop executes the effects, and observers are notified with
// the new [Display]. No dialogue state is touched outside the loop.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/moomindm/internal/observe"
	"github.com/MrWong99/moomindm/pkg/dialogue"
	"github.com/MrWong99/moomindm/pkg/speech"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrStopped is returned by Click after Run has returned.
	ErrStopped = errors.New("session: stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("session: already running")
)

const (
	clickBuffer = 8
	timerBuffer = 4
)

// Config holds the dependencies of a [Session].
type Config struct {
	// Machine is the dialogue definition. Required.
	Machine *dialogue.Machine

	// Speech is the speech service the session drives. Required.
	Speech speech.Service

	// Metrics records dialogue metrics. Default: observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Logger is the base logger. Default: slog.Default().
	Logger *slog.Logger
}

// Display is the observable state of a session.
type Display struct {
	SessionID string      `json:"session_id,omitempty"`
	State     string      `json:"state"`
	Slot      string      `json:"slot"`
	View      speech.View `json:"view"`

	// Text is the label shown on the start button.
	Text string `json:"text"`

	// CanStart reports whether a click would start a conversation.
	CanStart bool `json:"can_start"`

	Person        string `json:"person,omitempty"`
	Day           string `json:"day,omitempty"`
	Time          string `json:"time,omitempty"`
	Confirmation  string `json:"confirmation,omitempty"`
	LastUtterance string `json:"last_utterance,omitempty"`
}

// Session is one dialogue bound to a speech service.
type Session struct {
	speech  speech.Service
	metrics *observe.Metrics
	baseLog *slog.Logger
	view    *speech.ViewTracker

	pending atomic.Pointer[dialogue.Machine]
	started atomic.Bool

	clicks chan struct{}
	timers chan dialogue.Event
	done   chan struct{}

	mu      sync.RWMutex
	snap    dialogue.Snapshot
	display Display

	subMu   sync.Mutex
	subs    map[uint64]func(Display)
	nextSub uint64

	// Owned by the loop goroutine.
	machine  *dialogue.Machine
	timer    *time.Timer
	id       string
	log      *slog.Logger
	convCtx  context.Context
	convSpan trace.Span
	active   bool
	listenAt time.Time
}

// New validates cfg and returns a Session. Call Run to start it.
func New(cfg Config) (*Session, error) {
	if cfg.Machine == nil {
		return nil, errors.New("session: machine is required")
	}
	if cfg.Speech == nil {
		return nil, errors.New("session: speech service is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Session{
		speech:  cfg.Speech,
		metrics: cfg.Metrics,
		baseLog: cfg.Logger,
		view:    speech.NewViewTracker(),
		machine: cfg.Machine,
		clicks:  make(chan struct{}, clickBuffer),
		timers:  make(chan dialogue.Event, timerBuffer),
		done:    make(chan struct{}),
		subs:    make(map[uint64]func(Display)),
	}
	s.log = s.baseLog
	s.display = s.buildDisplay()
	return s, nil
}

// Run processes events until ctx is cancelled or the speech service closes
// its event channel. It returns nil in both cases.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)
	defer s.teardown()

	snap, effects := s.machine.Start()
	s.commit(dialogue.Step{Next: snap, Effects: effects, Path: []dialogue.State{snap.State}, Accepted: true})
	s.execute(ctx, effects)
	s.publish()

	events := s.speech.Events()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("session loop stopped", "reason", ctx.Err())
			return nil
		case ev, ok := <-events:
			if !ok {
				s.log.Info("speech service closed; session loop stopped")
				return nil
			}
			s.view.Event(ev)
			s.handle(ctx, fromSpeech(ev))
		case <-s.clicks:
			s.handle(ctx, dialogue.Event{Kind: dialogue.EventClick})
		case ev := <-s.timers:
			s.handle(ctx, ev)
		}
	}
}

// Click requests a conversation start. It is honoured only while the
// dialogue is idle or done; otherwise the click is ignored by the loop.
func (s *Session) Click(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.clicks <- struct{}{}:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconfigure installs m for the next conversation. The running
// conversation, if any, keeps its machine.
func (s *Session) Reconfigure(m *dialogue.Machine) {
	if m == nil {
		return
	}
	s.pending.Store(m)
}

// Snapshot returns the current dialogue snapshot.
func (s *Session) Snapshot() dialogue.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Display returns the current display.
func (s *Session) Display() Display {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display
}

// Subscribe registers fn to receive every display update. fn runs on the
// loop goroutine and must not block or call Click. The returned function
// removes the subscription.
func (s *Session) Subscribe(fn func(Display)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// handle runs one event to completion.
func (s *Session) handle(ctx context.Context, ev dialogue.Event) {
	prev := s.Snapshot()

	if ev.Kind == dialogue.EventClick && (prev.State == dialogue.StateIdle || prev.State == dialogue.StateDone) {
		if m := s.pending.Swap(nil); m != nil {
			s.machine = m
			s.baseLog.Info("dialogue configuration applied")
		}
	}

	st := s.machine.Step(prev, ev)
	if !st.Accepted {
		s.metrics.RecordStaleEvent(ctx, ev.Kind.String())
		s.log.Debug("event ignored", "event", ev.Kind.String(), "tag", ev.Tag, "state", prev.State.String(), "epoch", prev.Epoch)
		s.publish()
		return
	}

	if ev.Kind == dialogue.EventClick {
		s.beginConversation(ctx)
	}
	s.record(ctx, prev, ev, st)
	s.commit(st)
	s.execute(ctx, st.Effects)
	if st.Next.State == dialogue.StateDone {
		s.endConversation(ctx, true)
	}
	s.publish()
}

// record emits metrics and logs for an accepted step.
func (s *Session) record(ctx context.Context, prev dialogue.Snapshot, ev dialogue.Event, st dialogue.Step) {
	slot := prev.Conversation.CurrentSlot.String()

	if prev.State == dialogue.StateListening && !s.listenAt.IsZero() {
		s.metrics.TurnDuration.Record(ctx, time.Since(s.listenAt).Seconds())
		s.listenAt = time.Time{}
	}
	if st.Outcome != dialogue.OutcomeNone {
		s.metrics.RecordTurn(ctx, slot, string(st.Outcome))
		s.log.Info("utterance interpreted", "slot", slot, "utterance", st.Next.Conversation.LastUtterance, "outcome", string(st.Outcome))
		if s.convSpan != nil {
			s.convSpan.AddEvent("turn", trace.WithAttributes(
				attribute.String("slot", slot),
				attribute.String("outcome", string(st.Outcome)),
			))
		}
	}

	for _, state := range st.Path {
		s.metrics.RecordTransition(ctx, state.String())
		switch state {
		case dialogue.StateNoInputRetry:
			s.metrics.RecordRetry(ctx, slot, "no_input")
		case dialogue.StateAdvanceSlot:
			next := st.Next.Conversation.CurrentSlot
			switch {
			case prev.Conversation.CurrentSlot == dialogue.SlotConfirmation && next == dialogue.SlotPerson:
				s.metrics.RecordRetry(ctx, slot, "rejected")
			case next == prev.Conversation.CurrentSlot:
				s.metrics.RecordRetry(ctx, slot, "not_understood")
			}
		}
	}

	s.log.Debug("transition",
		"event", ev.Kind.String(),
		"from", prev.State.String(),
		"state", st.Next.State.String(),
		"slot", st.Next.Conversation.CurrentSlot.String(),
		"epoch", st.Next.Epoch,
	)
}

// beginConversation issues a new session ID for a click from Idle or Done.
func (s *Session) beginConversation(ctx context.Context) {
	s.endConversation(ctx, false)

	s.id = uuid.NewString()
	s.convCtx, s.convSpan = observe.StartSpan(context.WithoutCancel(ctx), "dialogue.conversation",
		trace.WithAttributes(attribute.String("session_id", s.id)),
	)
	s.log = observe.LoggerFrom(s.convCtx, s.baseLog).With("session_id", s.id)
	s.active = true
	s.metrics.SessionsStarted.Add(ctx, 1)
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.Info("conversation started")
}

// endConversation closes the bookkeeping of the current conversation.
func (s *Session) endConversation(ctx context.Context, completed bool) {
	if !s.active {
		return
	}
	s.active = false
	s.metrics.ActiveSessions.Add(ctx, -1)
	if completed {
		s.metrics.SessionsCompleted.Add(ctx, 1)
		c := s.Snapshot().Conversation
		s.log.Info("conversation completed", "person", c.Person, "day", c.Day, "time", c.Time)
	} else {
		s.log.Info("conversation abandoned")
	}
	if s.convSpan != nil {
		s.convSpan.SetAttributes(attribute.Bool("completed", completed))
		s.convSpan.End()
		s.convSpan = nil
	}
}

// execute runs effects in order.
func (s *Session) execute(ctx context.Context, effects []dialogue.Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case dialogue.EffectPrepare:
			s.send(ctx, speech.Command{Kind: speech.CommandPrepare, Tag: eff.Tag})
		case dialogue.EffectSpeak:
			s.stopTimer()
			s.send(ctx, speech.Command{Kind: speech.CommandSpeak, Utterance: eff.Utterance, Tag: eff.Tag})
		case dialogue.EffectListen:
			s.stopTimer()
			s.listenAt = time.Now()
			s.send(ctx, speech.Command{Kind: speech.CommandListen, Tag: eff.Tag})
		case dialogue.EffectStartTimer:
			s.startTimer(eff.After, eff.Tag)
		}
	}
}

// send delivers cmd. Failures are logged and counted; the dialogue keeps
// waiting in its current state.
func (s *Session) send(ctx context.Context, cmd speech.Command) {
	s.view.Command(cmd)
	if err := s.speech.Send(ctx, cmd); err != nil {
		s.metrics.RecordSpeechError(ctx, string(cmd.Kind))
		s.log.Warn("speech command failed", "command", string(cmd.Kind), "tag", cmd.Tag, "err", err)
	}
}

// startTimer replaces any pending timer with one that posts a feedback
// timeout tagged with tag.
func (s *Session) startTimer(after time.Duration, tag uint64) {
	s.stopTimer()
	ev := dialogue.Event{Kind: dialogue.EventFeedbackTimeout, Tag: tag}
	s.timer = time.AfterFunc(after, func() {
		select {
		case s.timers <- ev:
		case <-s.done:
		}
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// teardown releases loop-owned resources when Run returns.
func (s *Session) teardown() {
	s.stopTimer()
	s.endConversation(context.Background(), false)
}

// commit stores the step's snapshot.
func (s *Session) commit(st dialogue.Step) {
	s.mu.Lock()
	s.snap = st.Next
	s.mu.Unlock()
}

// publish recomputes the display and notifies subscribers.
func (s *Session) publish() {
	d := s.buildDisplay()
	s.mu.Lock()
	s.display = d
	s.mu.Unlock()

	s.subMu.Lock()
	fns := make([]func(Display), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(d)
	}
}

func (s *Session) buildDisplay() Display {
	snap := s.Snapshot()
	c := snap.Conversation
	view := s.view.View()
	return Display{
		SessionID:     s.id,
		State:         snap.State.String(),
		Slot:          c.CurrentSlot.String(),
		View:          view,
		Text:          string(view),
		CanStart:      snap.State == dialogue.StateIdle || snap.State == dialogue.StateDone,
		Person:        c.Person,
		Day:           c.Day,
		Time:          c.Time,
		Confirmation:  string(c.Confirmation),
		LastUtterance: c.LastUtterance,
	}
}

// fromSpeech maps a speech service event onto a dialogue event.
func fromSpeech(ev speech.Event) dialogue.Event {
	out := dialogue.Event{Tag: ev.Tag, Text: ev.Text}
	switch ev.Kind {
	case speech.EventReady:
		out.Kind = dialogue.EventReady
	case speech.EventSpeechFinished:
		out.Kind = dialogue.EventSpeechFinished
	case speech.EventSpeechAcknowledged:
		out.Kind = dialogue.EventSpeechAcknowledged
	case speech.EventRecognized:
		out.Kind = dialogue.EventRecognized
	case speech.EventNoInput:
		out.Kind = dialogue.EventNoInput
	}
	return out
}
