package speech

import "sync"

// View is what the speech service is visibly doing. It drives the display
// text shown next to the start button.
type View string

const (
	ViewPreparing View = "preparing"
	ViewIdle      View = "idle"
	ViewSpeaking  View = "speaking"
	ViewListening View = "listening"
)

// ViewTracker derives the current [View] from the commands sent to and the
// events received from a speech service. It is safe for concurrent use.
type ViewTracker struct {
	mu   sync.Mutex
	view View
}

// NewViewTracker returns a tracker in the preparing view.
func NewViewTracker() *ViewTracker {
	return &ViewTracker{view: ViewPreparing}
}

// Command records an outgoing command and returns the resulting view.
func (t *ViewTracker) Command(cmd Command) View {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch cmd.Kind {
	case CommandPrepare:
		t.view = ViewPreparing
	case CommandSpeak:
		t.view = ViewSpeaking
	case CommandListen:
		t.view = ViewListening
	}
	return t.view
}

// Event records an incoming event and returns the resulting view.
func (t *ViewTracker) Event(ev Event) View {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case EventReady, EventSpeechFinished, EventRecognized, EventNoInput:
		t.view = ViewIdle
	}
	return t.view
}

// View returns the current view.
func (t *ViewTracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}
