package config

import (
	"fmt"
	"sync"
)

// Store holds the live configuration shared between the settings UI and the
// session orchestrator. The orchestrator only ever reads it, and only at
// session start, via Snapshot; the UI replaces it through Update, which also
// persists to disk.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewStore wraps an already-validated configuration loaded from path.
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: cfg, path: path}
}

// Current returns a copy of the live configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Snapshot returns the immutable per-session view of the configuration.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ElevenLabsAPIKey: s.cfg.Transcription.ElevenLabsAPIKey,
		Language:         s.cfg.Transcription.Language,
		AutoEnter:        s.cfg.Output.AutoEnter,
		Cleanup:          s.cfg.Cleanup.Cleanup,
		Translate:        s.cfg.Cleanup.Translate,
		TargetLanguage:   s.cfg.Cleanup.TargetLanguage,
	}
	if s.cfg.Audio.DeviceIndex != nil {
		idx := *s.cfg.Audio.DeviceIndex
		snap.DeviceIndex = &idx
	}
	return snap
}

// Update validates, persists, and swaps in a new configuration.
func (s *Store) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cfg.Save(s.path); err != nil {
		return err
	}
	s.cfg = &cfg
	return nil
}

// Path returns the on-disk location backing this store.
func (s *Store) Path() string {
	return s.path
}
