package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkoster/batchline/internal/kv"
)

// sessionKeyPrefix namespaces job sessions within the shared KV store.
const sessionKeyPrefix = "job:"

// SessionStore persists job sessions in a process-external KV store so that
// consecutive batch calls for one token can be served by any instance.
type SessionStore struct {
	store kv.Store
}

// NewSessionStore creates a session store over the given KV backend.
func NewSessionStore(store kv.Store) *SessionStore {
	return &SessionStore{store: store}
}

// Start persists a new session and returns its token.
// The session's snapshot is immutable from this point on.
func (s *SessionStore) Start(ctx context.Context, session JobSession) (string, error) {
	token := uuid.New().String()
	session.Token = token
	session.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	if err := s.store.Put(ctx, sessionKeyPrefix+token, data, session.TTL); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}

	return token, nil
}

// Get returns the session for token.
// A missing or expired entry maps to ErrSessionExpired: expiry is an
// expected outcome, reported as a distinct recoverable error.
func (s *SessionStore) Get(ctx context.Context, token string) (JobSession, error) {
	data, err := s.store.Get(ctx, sessionKeyPrefix+token)
	if errors.Is(err, kv.ErrNotFound) {
		return JobSession{}, ErrSessionExpired
	}
	if err != nil {
		return JobSession{}, fmt.Errorf("load session: %w", err)
	}

	var session JobSession
	if err := json.Unmarshal(data, &session); err != nil {
		return JobSession{}, fmt.Errorf("unmarshal session: %w", err)
	}

	return session, nil
}

// Delete removes the session for token. Deleting an already-expired
// session is not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	return s.store.Delete(ctx, sessionKeyPrefix+token)
}
