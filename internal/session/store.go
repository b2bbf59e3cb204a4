// Package session owns the access/refresh token pair. The store is the
// single writer of tokens; the HTTP interceptor and the connection manager
// only ever read through it.
package session

import (
	"fmt"
	"os"
	"sync"
	"time"

	"NetPulse/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Store holds the current session and persists it to a token file so a
// restart picks up where the last sign-in left off. Every mutation bumps
// an epoch counter; a refresh that resolves after the session it started
// from was cleared or replaced is discarded by the epoch check.
type Store struct {
	mu      sync.RWMutex
	session model.Session
	epoch   uint64

	path   string
	logger *zap.Logger
}

// NewStore creates a session store backed by the given token file.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads a previously persisted session from the token file. A missing
// file is not an error; it simply means no session is active.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var sess model.Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal token file: %w", err)
	}

	s.mu.Lock()
	s.session = sess
	s.epoch++
	s.mu.Unlock()

	if sess.Active() {
		s.logger.Info("restored session from token file", zap.String("path", s.path))
	}
	return nil
}

// Set replaces the session with a freshly issued token pair and persists it.
func (s *Store) Set(access, refresh string) error {
	s.mu.Lock()
	s.session = model.Session{AccessToken: access, RefreshToken: refresh}
	s.epoch++
	s.mu.Unlock()
	return s.persist()
}

// UpdateAccess installs a refreshed access token, but only if the session
// it was minted against is still the current one. Returns false when the
// result arrived too late and was discarded.
func (s *Store) UpdateAccess(access string, epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch || !s.session.Active() {
		s.mu.Unlock()
		s.logger.Debug("discarding stale refresh result")
		return false
	}
	s.session.AccessToken = access
	s.mu.Unlock()
	if err := s.persist(); err != nil {
		s.logger.Warn("failed to persist refreshed token", zap.Error(err))
	}
	return true
}

// Clear destroys the session and removes the token file. Safe to call when
// no session is active.
func (s *Store) Clear() {
	s.mu.Lock()
	s.session = model.Session{}
	s.epoch++
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove token file", zap.Error(err))
	}
}

// Access returns the current access token, empty when signed out.
func (s *Store) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.AccessToken
}

// Refresh returns the current refresh token, empty when signed out.
func (s *Store) Refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.RefreshToken
}

// Active reports whether a session is currently held.
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Active()
}

// Epoch returns the current session generation. Callers snapshot it before
// starting a refresh and pass it back to UpdateAccess.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// ExpiresAt extracts the expiry claim from the access token without
// verifying its signature. The store carries tokens, it does not validate
// them; the zero time is returned when no usable claim is present.
func (s *Store) ExpiresAt() time.Time {
	s.mu.RLock()
	tok := s.session.AccessToken
	s.mu.RUnlock()
	if tok == "" {
		return time.Time{}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func (s *Store) persist() error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	data, err := yaml.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
