package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/moomindm/pkg/speech"
)

// ErrSpeechNotRegistered is returned by [Registry.CreateSpeech] when no
// factory has been registered for the configured mode.
var ErrSpeechNotRegistered = errors.New("config: speech mode not registered")

// SpeechFactory builds a speech service from its config.
type SpeechFactory func(SpeechConfig) (speech.Service, error)

// Registry maps speech modes to service constructors. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	speech map[SpeechMode]SpeechFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		speech: make(map[SpeechMode]SpeechFactory),
	}
}

// RegisterSpeech registers a speech service factory under mode.
// Subsequent calls with the same mode overwrite the previous registration.
func (r *Registry) RegisterSpeech(mode SpeechMode, factory SpeechFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[mode] = factory
}

// CreateSpeech instantiates the speech service registered for cfg.Mode.
func (r *Registry) CreateSpeech(cfg SpeechConfig) (speech.Service, error) {
	r.mu.RLock()
	factory, ok := r.speech[cfg.Mode]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSpeechNotRegistered, cfg.Mode)
	}
	svc, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create %s speech service: %w", cfg.Mode, err)
	}
	return svc, nil
}

// Modes returns the registered modes in sorted order.
func (r *Registry) Modes() []SpeechMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]SpeechMode, 0, len(r.speech))
	for m := range r.speech {
		modes = append(modes, m)
	}
	slices.Sort(modes)
	return modes
}
