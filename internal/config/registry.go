package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ringguard/ringguard/pkg/provider/ambience"
	"github.com/ringguard/ringguard/pkg/provider/diarize"
	"github.com/ringguard/ringguard/pkg/provider/emotion"
	"github.com/ringguard/ringguard/pkg/provider/reason"
	"github.com/ringguard/ringguard/pkg/provider/transcribe"
	"github.com/ringguard/ringguard/pkg/provider/voiceauth"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	transcribe map[string]func(ProviderEntry) (transcribe.Provider, error)
	voiceauth  map[string]func(ProviderEntry) (voiceauth.Provider, error)
	ambience   map[string]func(ProviderEntry) (ambience.Provider, error)
	diarize    map[string]func(ProviderEntry) (diarize.Provider, error)
	emotion    map[string]func(ProviderEntry) (emotion.Provider, error)
	reason     map[string]func(ProviderEntry) (reason.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcribe: make(map[string]func(ProviderEntry) (transcribe.Provider, error)),
		voiceauth:  make(map[string]func(ProviderEntry) (voiceauth.Provider, error)),
		ambience:   make(map[string]func(ProviderEntry) (ambience.Provider, error)),
		diarize:    make(map[string]func(ProviderEntry) (diarize.Provider, error)),
		emotion:    make(map[string]func(ProviderEntry) (emotion.Provider, error)),
		reason:     make(map[string]func(ProviderEntry) (reason.Provider, error)),
	}
}

// RegisterTranscribe registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscribe(name string, factory func(ProviderEntry) (transcribe.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribe[name] = factory
}

// RegisterVoiceAuth registers a synthetic-voice detection provider factory under name.
func (r *Registry) RegisterVoiceAuth(name string, factory func(ProviderEntry) (voiceauth.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voiceauth[name] = factory
}

// RegisterAmbience registers a background-sound classification provider factory under name.
func (r *Registry) RegisterAmbience(name string, factory func(ProviderEntry) (ambience.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ambience[name] = factory
}

// RegisterDiarize registers a speaker diarization provider factory under name.
func (r *Registry) RegisterDiarize(name string, factory func(ProviderEntry) (diarize.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diarize[name] = factory
}

// RegisterEmotion registers an emotion recognition provider factory under name.
func (r *Registry) RegisterEmotion(name string, factory func(ProviderEntry) (emotion.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emotion[name] = factory
}

// RegisterReason registers an LLM reasoning provider factory under name.
func (r *Registry) RegisterReason(name string, factory func(ProviderEntry) (reason.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reason[name] = factory
}

// CreateTranscribe instantiates a transcription provider using the factory
// registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTranscribe(entry ProviderEntry) (transcribe.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcribe[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcribe/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVoiceAuth instantiates a synthetic-voice detection provider using the
// factory registered under entry.Name.
func (r *Registry) CreateVoiceAuth(entry ProviderEntry) (voiceauth.Provider, error) {
	r.mu.RLock()
	factory, ok := r.voiceauth[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: voiceauth/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAmbience instantiates a background-sound classification provider using
// the factory registered under entry.Name.
func (r *Registry) CreateAmbience(entry ProviderEntry) (ambience.Provider, error) {
	r.mu.RLock()
	factory, ok := r.ambience[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: ambience/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDiarize instantiates a diarization provider using the factory registered under entry.Name.
func (r *Registry) CreateDiarize(entry ProviderEntry) (diarize.Provider, error) {
	r.mu.RLock()
	factory, ok := r.diarize[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: diarize/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmotion instantiates an emotion recognition provider using the factory
// registered under entry.Name.
func (r *Registry) CreateEmotion(entry ProviderEntry) (emotion.Provider, error) {
	r.mu.RLock()
	factory, ok := r.emotion[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: emotion/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateReason instantiates a reasoning provider using the factory registered under entry.Name.
func (r *Registry) CreateReason(entry ProviderEntry) (reason.Provider, error) {
	r.mu.RLock()
	factory, ok := r.reason[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: reason/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
