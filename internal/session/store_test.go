package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func TestStore_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")

	// 1. Store a token pair and confirm it lands on disk
	s := NewStore(path, zap.NewNop())
	if s.Active() {
		t.Fatal("empty store should not be active")
	}
	if err := s.Set("access-1", "refresh-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("token file was not written: %v", err)
	}

	// 2. A fresh store restores the same session
	s2 := NewStore(path, zap.NewNop())
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := s2.Access(); got != "access-1" {
		t.Errorf("expected access token %q, got %q", "access-1", got)
	}
	if got := s2.Refresh(); got != "refresh-1" {
		t.Errorf("expected refresh token %q, got %q", "refresh-1", got)
	}

	// 3. Clear destroys the session and removes the file
	s2.Clear()
	if s2.Active() {
		t.Error("store should be inactive after Clear")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("token file should be removed on Clear")
	}
}

func TestStore_LoadMissingFileIsNotAnError(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	if err := s.Load(); err != nil {
		t.Fatalf("loading a missing token file should succeed, got: %v", err)
	}
	if s.Active() {
		t.Error("store should be inactive after loading a missing file")
	}
}

func TestStore_StaleRefreshResultIsDiscarded(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "tokens.yaml"), zap.NewNop())
	if err := s.Set("access-1", "refresh-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// 1. Snapshot the epoch as a refresh would, then clear the session
	// before the refresh "resolves"
	epoch := s.Epoch()
	s.Clear()

	// 2. The late result must be discarded
	if s.UpdateAccess("late-token", epoch) {
		t.Error("refresh result against a cleared session should be discarded")
	}
	if s.Active() {
		t.Error("store must stay signed out after discarding a stale refresh")
	}

	// 3. A refresh against the current epoch is applied
	if err := s.Set("access-2", "refresh-2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !s.UpdateAccess("access-3", s.Epoch()) {
		t.Fatal("current-epoch refresh should be applied")
	}
	if got := s.Access(); got != "access-3" {
		t.Errorf("expected refreshed token to be stored, got %q", got)
	}
}

func TestStore_ExpiresAtReadsJWTClaim(t *testing.T) {
	// 1. Mint a token carrying a known expiry claim
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "np-core",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	s := NewStore(filepath.Join(t.TempDir(), "tokens.yaml"), zap.NewNop())
	if err := s.Set(tok, "refresh"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// 2. The store reports the claim without needing the signing key
	if got := s.ExpiresAt(); !got.Equal(exp) {
		t.Errorf("expected expiry %v, got %v", exp, got)
	}
}

func TestStore_ExpiresAtWithoutJWTIsZero(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "tokens.yaml"), zap.NewNop())
	if !s.ExpiresAt().IsZero() {
		t.Error("empty store should report zero expiry")
	}
	if err := s.Set("not-a-jwt", "refresh"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !s.ExpiresAt().IsZero() {
		t.Error("opaque token should report zero expiry")
	}
}
