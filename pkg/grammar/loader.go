package grammar

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk structure of a grammar YAML file.
//
// Example:
//
//	entries:
//	  too-ticky: {person: "Too-Ticky"}
//	  saturday:  {day: "Saturday"}
//	  "17":      {time: "17:00"}
//	  absolutely: {}
type File struct {
	Entries map[string]Entry `yaml:"entries"`
}

// Load reads the grammar YAML file at path and returns the resulting table.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("grammar: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("grammar: parse %q: %w", path, err)
	}
	return t, nil
}

// LoadFromReader decodes grammar YAML from r. Unknown fields are rejected to
// catch typos such as "persn".
func LoadFromReader(r io.Reader) (*Table, error) {
	var gf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&gf); err != nil {
		return nil, fmt.Errorf("grammar: decode yaml: %w", err)
	}
	if len(gf.Entries) == 0 {
		return nil, fmt.Errorf("grammar: file has no entries")
	}
	return New(gf.Entries), nil
}
