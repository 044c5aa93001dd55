// Package dialogue implements the slot-filling conversation: which slot to
// ask next, how an utterance is interpreted for that slot, and what the
// system says back.
//
// The package is pure. [Machine.Transition] maps a [Snapshot] and an [Event]
// to the next snapshot plus a list of [Effect] values that the caller must
// execute (speak, listen, arm a timer). Nothing in this package blocks,
// spawns goroutines, or talks to the speech service; see internal/session for
// the event loop that drives it.
package dialogue

// Slot names one piece of information the dialogue collects, or the
// confirmation decision point.
type Slot string

const (
	// SlotNone means no slot is active (before the greeting and after Done).
	SlotNone Slot = ""

	SlotPerson       Slot = "person"
	SlotDay          Slot = "day"
	SlotTime         Slot = "time"
	SlotConfirmation Slot = "confirmation"
)

// IsValid reports whether s is one of the four askable slots.
func (s Slot) IsValid() bool {
	switch s {
	case SlotPerson, SlotDay, SlotTime, SlotConfirmation:
		return true
	}
	return false
}

// Next returns the slot that follows s in the fixed filling order
// person → day → time → confirmation. Confirmation and SlotNone have no
// successor and return SlotNone.
func (s Slot) Next() Slot {
	switch s {
	case SlotPerson:
		return SlotDay
	case SlotDay:
		return SlotTime
	case SlotTime:
		return SlotConfirmation
	}
	return SlotNone
}

// String returns the slot name, or "none" for SlotNone.
func (s Slot) String() string {
	if s == SlotNone {
		return "none"
	}
	return string(s)
}

// Conversation is the mutable record of one session run.
type Conversation struct {
	// Person, Day and Time hold resolved slot values. Empty means unresolved.
	Person string
	Day    string
	Time   string

	// Confirmation is the classified answer to the confirmation question. It
	// is reset to ConfirmationUnclear every time the question is asked.
	Confirmation Confirmation

	// CurrentSlot is the slot being asked, listened for, or interpreted.
	CurrentSlot Slot

	// LastUtterance is the most recent recognised text. Heard is false when
	// the last listen cycle ended with a no-input timeout.
	LastUtterance string
	Heard         bool
}

// Value returns the collected value for slot. For SlotConfirmation it returns
// the confirmation as a string.
func (c Conversation) Value(slot Slot) string {
	switch slot {
	case SlotPerson:
		return c.Person
	case SlotDay:
		return c.Day
	case SlotTime:
		return c.Time
	case SlotConfirmation:
		return string(c.Confirmation)
	}
	return ""
}

// set writes v into the field named by slot.
func (c *Conversation) set(slot Slot, v string) {
	switch slot {
	case SlotPerson:
		c.Person = v
	case SlotDay:
		c.Day = v
	case SlotTime:
		c.Time = v
	case SlotConfirmation:
		c.Confirmation = Confirmation(v)
	}
}
