package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/storage"
)

// Store keeps the single Instagram credential record in memory and mirrors it
// to a JSON file. Every write replaces both the file and the cached copy.
type Store struct {
	path     string
	fallback EnvFallback
	logger   *infra.Logger

	mu      sync.RWMutex
	current *domain.Credential
}

// NewStore builds a store backed by path. Call Load to read an existing file.
func NewStore(path string, fallback EnvFallback, logger *infra.Logger) *Store {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Store{path: strings.TrimSpace(path), fallback: fallback, logger: logger}
}

// Load reads the credential file. A missing or unreadable file leaves the
// store empty; it never fails.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("credentials: read failed")
		}
		return
	}
	var rec domain.Credential
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("credentials: parse failed")
		return
	}
	if !rec.Valid() {
		s.logger.Warn().Str("path", s.path).Msg("credentials: stored record incomplete, ignoring")
		return
	}
	s.current = &rec
}

// Save persists rec as a whole-file write and then swaps the cached copy.
func (s *Store) Save(rec domain.Credential) error {
	if !rec.Valid() {
		return domain.ErrInvalidCredential
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := storage.ReplaceFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("credentials: save: %w", err)
	}
	copied := rec
	s.current = &copied
	return nil
}

// Clear removes the file and forgets the cached record. Safe to repeat.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credentials: clear: %w", err)
	}
	return nil
}

// Stored returns the record loaded from or saved to the file, if any.
func (s *Store) Stored() (domain.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || strings.TrimSpace(s.current.AccessToken) == "" {
		return domain.Credential{}, false
	}
	return *s.current, true
}

// Source implements Tier.
func (s *Store) Source() Source { return SourceStored }

// Lookup implements Tier.
func (s *Store) Lookup() (domain.Credential, bool) { return s.Stored() }

// Current resolves the operative credential: the stored record first, then
// the environment fallback.
func (s *Store) Current() (domain.Credential, Source) {
	return NewResolver(s, s.fallback).Current()
}
