// Package grammar holds the static vocabulary the dialogue understands.
//
// A [Table] maps a normalised utterance (see [Normalize]) to an [Entry] that
// carries the semantic value for zero or more slots. Entries with no fields
// set are still "known" words: the affirmative and negative keywords live in
// the table so that the dialogue can acknowledge them, even though they carry
// no slot value.
//
// Tables are immutable after construction and safe for concurrent use.
package grammar

import (
	"maps"
	"slices"
	"strings"
)

// Entry is the semantic value attached to a grammar word. Empty fields mean
// the word carries no value for that slot.
type Entry struct {
	// Person is the display name of the person the word refers to.
	Person string `yaml:"person,omitempty"`

	// Day is the weekday the word refers to (e.g., "Monday").
	Day string `yaml:"day,omitempty"`

	// Time is the time of day in HH:MM form (e.g., "09:00").
	Time string `yaml:"time,omitempty"`
}

// Field returns the value stored for the named slot ("person", "day" or
// "time"). Any other name yields the empty string.
func (e Entry) Field(name string) string {
	switch name {
	case "person":
		return e.Person
	case "day":
		return e.Day
	case "time":
		return e.Time
	}
	return ""
}

// IsZero reports whether the entry carries no slot value at all.
func (e Entry) IsZero() bool {
	return e == Entry{}
}

// Table is an immutable case-insensitive mapping from utterance to [Entry].
type Table struct {
	entries map[string]Entry
}

// New builds a Table from entries. Keys are normalised with [Normalize];
// when two keys normalise to the same word the later one in sorted key order
// wins. Empty keys are skipped.
func New(entries map[string]Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, k := range slices.Sorted(maps.Keys(entries)) {
		nk := Normalize(k)
		if nk == "" {
			continue
		}
		t.entries[nk] = entries[k]
	}
	return t
}

// Lookup returns the entry for utterance after normalisation and whether the
// utterance is part of the grammar.
func (t *Table) Lookup(utterance string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[Normalize(utterance)]
	return e, ok
}

// Contains reports whether utterance is a known grammar word.
func (t *Table) Contains(utterance string) bool {
	_, ok := t.Lookup(utterance)
	return ok
}

// Len returns the number of words in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Keys returns the normalised words of the table in sorted order.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(t.entries))
}

// Merge returns a new Table containing every entry of base overlaid with the
// entries of overlay. Either argument may be nil.
func Merge(base, overlay *Table) *Table {
	out := &Table{entries: make(map[string]Entry, base.Len()+overlay.Len())}
	if base != nil {
		maps.Copy(out.entries, base.entries)
	}
	if overlay != nil {
		maps.Copy(out.entries, overlay.entries)
	}
	return out
}

// Normalize lowercases s and strips surrounding whitespace and trailing
// sentence punctuation, which speech recognisers commonly append.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!?,")
	return strings.TrimSpace(s)
}
