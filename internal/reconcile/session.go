// Package reconcile presents one coherent read/write accessor per user-data
// domain (favorites, reading history, profile, preferences, drafts) and
// routes each to the guest-local store or the remote service depending on
// authentication state.
package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

// source discriminates which state tier a domain accessor reads and
// writes. Accessors switch on it exhaustively instead of probing record
// shapes at runtime.
type source int

const (
	sourceGuest source = iota
	sourceRemote
)

// Session carries the authentication switch shared by all domain
// accessors, the cached remote user record, and the per-session warn
// deduplication set.
//
// Logging in does NOT migrate guest state: guest records stay in the local
// store untouched and are surfaced again after logout. Favorites offers an
// explicit ImportGuest for a deliberate import.
type Session struct {
	remote domain.UserRepository
	store  *store.Store
	logger *slog.Logger

	mu            sync.Mutex
	authenticated bool
	record        *domain.UserRecord
	warned        map[string]struct{}
}

// NewSession creates a guest-mode session
func NewSession(remote domain.UserRepository, st *store.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		remote: remote,
		store:  st,
		logger: logger,
		warned: make(map[string]struct{}),
	}
}

// Login switches every accessor to the remote tier. The cached remote
// record is cleared so the first read after login fetches fresh state.
func (s *Session) Login() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.record = nil
}

// Logout switches every accessor back to the guest tier
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	s.record = nil
}

// Authenticated reports whether a live identity exists
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Store exposes the guest store for device-scoped collaborators
func (s *Session) Store() *store.Store {
	return s.store
}

func (s *Session) source() source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authenticated {
		return sourceRemote
	}
	return sourceGuest
}

// userRecord returns the cached remote record, fetching it on first use.
// Callers must be on the remote tier.
func (s *Session) userRecord(ctx context.Context) (*domain.UserRecord, error) {
	s.mu.Lock()
	if s.record != nil {
		record := s.record
		s.mu.Unlock()
		return record, nil
	}
	s.mu.Unlock()

	record, err := s.remote.GetUser(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.record = record
	s.mu.Unlock()
	return record, nil
}

// invalidate drops the cached remote record so the next read refetches
func (s *Session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
}

// updateUserRecord is the shared read-merge-write path for remote domains:
// fetch the current record, apply the patch to a copy, and persist the
// union as a full replace. On success the cached record is invalidated so
// subsequent reads reflect the write.
func (s *Session) updateUserRecord(ctx context.Context, apply func(*domain.UserRecord)) error {
	current, err := s.userRecord(ctx)
	if err != nil {
		return err
	}

	merged := *current
	apply(&merged)

	if err := s.remote.ReplaceUser(ctx, &merged); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// warnOnce logs a degradation warning at most once per session per key
func (s *Session) warnOnce(key, msg string, err error) {
	s.mu.Lock()
	if _, seen := s.warned[key]; seen {
		s.mu.Unlock()
		return
	}
	s.warned[key] = struct{}{}
	s.mu.Unlock()
	s.logger.Warn(msg, "key", key, "error", err)
}

// ResetWarnings clears the warn deduplication set
func (s *Session) ResetWarnings() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warned = make(map[string]struct{})
}
