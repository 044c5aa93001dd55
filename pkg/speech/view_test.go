package speech

import (
	"sync"
	"testing"
)

func TestViewTracker(t *testing.T) {
	t.Parallel()

	tr := NewViewTracker()
	if got := tr.View(); got != ViewPreparing {
		t.Fatalf("initial view = %q, want %q", got, ViewPreparing)
	}

	steps := []struct {
		name string
		cmd  *Command
		ev   *Event
		want View
	}{
		{name: "ready", ev: &Event{Kind: EventReady}, want: ViewIdle},
		{name: "speak", cmd: &Command{Kind: CommandSpeak, Utterance: "hi"}, want: ViewSpeaking},
		{name: "acknowledged keeps speaking", ev: &Event{Kind: EventSpeechAcknowledged}, want: ViewSpeaking},
		{name: "finished", ev: &Event{Kind: EventSpeechFinished}, want: ViewIdle},
		{name: "listen", cmd: &Command{Kind: CommandListen}, want: ViewListening},
		{name: "recognized", ev: &Event{Kind: EventRecognized, Text: "sniff"}, want: ViewIdle},
		{name: "listen again", cmd: &Command{Kind: CommandListen}, want: ViewListening},
		{name: "no input", ev: &Event{Kind: EventNoInput}, want: ViewIdle},
		{name: "prepare", cmd: &Command{Kind: CommandPrepare}, want: ViewPreparing},
		{name: "unknown event", ev: &Event{Kind: "bogus"}, want: ViewPreparing},
	}
	for _, s := range steps {
		var got View
		if s.cmd != nil {
			got = tr.Command(*s.cmd)
		} else {
			got = tr.Event(*s.ev)
		}
		if got != s.want {
			t.Errorf("%s: view = %q, want %q", s.name, got, s.want)
		}
		if tr.View() != got {
			t.Errorf("%s: View() = %q, want %q", s.name, tr.View(), got)
		}
	}
}

func TestViewTracker_Concurrent(t *testing.T) {
	t.Parallel()

	tr := NewViewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Command(Command{Kind: CommandSpeak})
				tr.Event(Event{Kind: EventSpeechFinished})
				_ = tr.View()
			}
		}()
	}
	wg.Wait()
}

func TestEventKind_IsValid(t *testing.T) {
	t.Parallel()

	for _, k := range []EventKind{EventReady, EventSpeechFinished, EventSpeechAcknowledged, EventRecognized, EventNoInput} {
		if !k.IsValid() {
			t.Errorf("%q.IsValid() = false", k)
		}
	}
	for _, k := range []EventKind{"", "click", "READY"} {
		if k.IsValid() {
			t.Errorf("%q.IsValid() = true", k)
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	if s.Locale != "en-US" || s.Voice != "en-US-DavisNeural" {
		t.Errorf("DefaultSettings() = %+v", s)
	}
	if s.NoInputTimeout <= 0 {
		t.Errorf("NoInputTimeout = %s, want positive", s.NoInputTimeout)
	}
	if s.CompleteTimeout != 0 {
		t.Errorf("CompleteTimeout = %s, want 0", s.CompleteTimeout)
	}
}
