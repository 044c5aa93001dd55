package dialogue

import "github.com/MrWong99/moomindm/pkg/grammar"

// Resolve extracts the value utterance carries for slot.
//
// For person, day and time the utterance is looked up in table and the field
// matching the slot is returned; a word that is unknown, or known but for a
// different slot, yields ("", false). For the confirmation slot the utterance
// is passed to [Classify] instead, returning "yes" or "no", or ("", false)
// when unclear.
func Resolve(table *grammar.Table, slot Slot, utterance string) (string, bool) {
	switch slot {
	case SlotPerson, SlotDay, SlotTime:
		e, ok := table.Lookup(utterance)
		if !ok {
			return "", false
		}
		v := e.Field(string(slot))
		return v, v != ""
	case SlotConfirmation:
		c := Classify(utterance)
		return string(c), c != ConfirmationUnclear
	}
	return "", false
}
