package dialogue

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Prompts holds every sentence the dialogue speaks. Templates use
// {person}, {day}, {time}, {slot} and {utterance} placeholders.
type Prompts struct {
	// Welcome is spoken when a session starts.
	Welcome string

	// Person, Day and Time are the questions for the three value slots.
	Person string
	Day    string
	Time   string

	// Confirmation is the confirmation question template
	// ({person}, {day}, {time}).
	Confirmation string

	// NoInput is spoken after a listening timeout ({slot}).
	NoInput string

	// Heard acknowledges a known grammar word ({utterance}).
	Heard string

	// NotUnderstood is spoken when the utterance is not in the grammar.
	NotUnderstood string

	// Closing is spoken when the dialogue reaches Done.
	Closing string
}

// DefaultPrompts returns the built-in Moominvalley wording.
func DefaultPrompts() Prompts {
	return Prompts{
		Welcome:       "Welcome to Moominvalley! I will help you to meet all the Moomins.",
		Person:        "Who would you like to meet with?",
		Day:           "What day would you like to meet?",
		Time:          "What time would you like to meet?",
		Confirmation:  "Do you want to have a picnic with {person} on {day} at {time}?",
		NoInput:       "I can't hear you. Please tell me the {slot}.",
		Heard:         "You just said {utterance}.",
		NotUnderstood: "I'm sorry, I didn't catch that.",
		Closing:       "The moomins don't really do meetings, just stop by. See you soon in Moominvalley!",
	}
}

// WithDefaults returns a copy of p where every empty field is taken from
// [DefaultPrompts].
func (p Prompts) WithDefaults() Prompts {
	d := DefaultPrompts()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&p.Welcome, d.Welcome)
	fill(&p.Person, d.Person)
	fill(&p.Day, d.Day)
	fill(&p.Time, d.Time)
	fill(&p.Confirmation, d.Confirmation)
	fill(&p.NoInput, d.NoInput)
	fill(&p.Heard, d.Heard)
	fill(&p.NotUnderstood, d.NotUnderstood)
	fill(&p.Closing, d.Closing)
	return p
}

// Validate checks that no prompt is empty and that the templates only use
// placeholders that will be filled.
func (p Prompts) Validate() error {
	var errs []error
	fields := []struct {
		name, value string
		allowed     []string
	}{
		{"welcome", p.Welcome, nil},
		{"person", p.Person, nil},
		{"day", p.Day, nil},
		{"time", p.Time, nil},
		{"confirmation", p.Confirmation, []string{"person", "day", "time"}},
		{"no_input", p.NoInput, []string{"slot"}},
		{"heard", p.Heard, []string{"utterance"}},
		{"not_understood", p.NotUnderstood, nil},
		{"closing", p.Closing, nil},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("prompt %s is empty", f.name))
			continue
		}
		for _, ph := range placeholders(f.value) {
			if !slices.Contains(f.allowed, ph) {
				errs = append(errs, fmt.Errorf("prompt %s uses unknown placeholder {%s}", f.name, ph))
			}
		}
	}
	return errors.Join(errs...)
}

// Ask returns the question for slot. The confirmation question embeds the
// values collected so far.
func (p Prompts) Ask(slot Slot, c Conversation) string {
	switch slot {
	case SlotPerson:
		return p.Person
	case SlotDay:
		return p.Day
	case SlotTime:
		return p.Time
	case SlotConfirmation:
		return strings.NewReplacer(
			"{person}", c.Person,
			"{day}", c.Day,
			"{time}", c.Time,
		).Replace(p.Confirmation)
	}
	return ""
}

// Retry returns the no-input message for slot.
func (p Prompts) Retry(slot Slot) string {
	return strings.ReplaceAll(p.NoInput, "{slot}", string(slot))
}

// Feedback returns the acknowledgement for utterance. known reports whether
// the utterance is a grammar word.
func (p Prompts) Feedback(utterance string, known bool) string {
	if !known {
		return p.NotUnderstood
	}
	return strings.ReplaceAll(p.Heard, "{utterance}", strings.TrimSpace(utterance))
}

// placeholders returns the names inside {braces} in s.
func placeholders(s string) []string {
	var out []string
	for {
		i := strings.IndexByte(s, '{')
		if i < 0 {
			return out
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			return out
		}
		out = append(out, s[i+1:i+j])
		s = s[i+j+1:]
	}
}
