// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package querysession

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry maps connection owner tokens to their active query session.
// It is one of the two shared mutable structures on a connection (the other
// being the pending-request table); the mutex is scoped to map mutation and
// never held across a blocking wait.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register installs the session for its owner token. One query runs per
// connection at a time; a second registration is refused.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.OwnerURI()]; exists {
		return fmt.Errorf("a query is already running on connection %s", s.OwnerURI())
	}
	r.sessions[s.OwnerURI()] = s
	return nil
}

// Lookup returns the active session for the owner token.
func (r *Registry) Lookup(ownerURI string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ownerURI]
	return s, ok
}

// Remove releases the registration for the owner token.
func (r *Registry) Remove(ownerURI string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, ownerURI)
}

// Expire finalizes s with err if it is still the registered session for its
// owner token, releasing the registration. It reports false when the session
// already completed or was replaced by a newer one, in which case nothing is
// touched.
func (r *Registry) Expire(s *Session, err error) bool {
	r.mu.Lock()
	current, ok := r.sessions[s.OwnerURI()]
	if !ok || current != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.OwnerURI())
	r.mu.Unlock()

	s.Fail(err)
	return true
}

// FailAll finalizes every registered session with err and clears the
// registry. Used when the connection dies or is reset mid-flight.
func (r *Registry) FailAll(err error) {
	r.mu.Lock()
	drained := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		drained = append(drained, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range drained {
		s.Fail(err)
	}
	if len(drained) > 0 {
		r.logger.Debug("failed in-flight query sessions", zap.Int("count", len(drained)), zap.Error(err))
	}
}
