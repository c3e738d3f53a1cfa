package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pkoster/batchline/internal/kv"
)

func TestSessionStore_StartAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(kv.NewMemoryStore())

	token, err := store.Start(ctx, JobSession{
		Kind:         KindImport,
		OperationRef: "subscribers",
		TotalItems:   42,
		SourcePath:   "/tmp/upload.csv",
		FieldMap:     map[string]string{"email": "E-Mail"},
		Headers:      []string{"E-Mail", "Name"},
		TTL:          time.Hour,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	session, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.Token != token {
		t.Errorf("token = %q, want %q", session.Token, token)
	}
	if session.OperationRef != "subscribers" || session.TotalItems != 42 {
		t.Errorf("session = %+v, want stored fields round-tripped", session)
	}
	if session.FieldMap["email"] != "E-Mail" {
		t.Errorf("fieldMap = %v, want preserved", session.FieldMap)
	}
	if session.CreatedAt.IsZero() {
		t.Error("createdAt not set")
	}
}

func TestSessionStore_UnknownTokenIsExpired(t *testing.T) {
	store := NewSessionStore(kv.NewMemoryStore())

	_, err := store.Get(context.Background(), "no-such-token")
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("got %v, want ErrSessionExpired", err)
	}
}

func TestSessionStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(kv.NewMemoryStore())

	token, err := store.Start(ctx, JobSession{Kind: KindExport, TTL: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := store.Get(ctx, token); err != nil {
		t.Fatalf("session should be live before the TTL: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	_, err = store.Get(ctx, token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("got %v, want ErrSessionExpired after TTL", err)
	}
}

func TestSessionStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(kv.NewMemoryStore())

	token, err := store.Start(ctx, JobSession{Kind: KindSync, TTL: time.Hour})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := store.Delete(ctx, token); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("got %v, want ErrSessionExpired after delete", err)
	}

	// Deleting again is not an error
	if err := store.Delete(ctx, token); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestSessionStore_TokensAreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(kv.NewMemoryStore())

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := store.Start(ctx, JobSession{Kind: KindExport, TTL: time.Hour})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}
