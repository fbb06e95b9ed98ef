package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
	"github.com/yarago/auth-service/internal/infrastructure/memory"
)

type countingStore struct {
	ports.SessionStore
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.SessionStore.PurgeExpired(ctx, before)
}

func (s *countingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPurgeSweeper_SweepDeletesExpired(t *testing.T) {
	store := memory.NewSessionStore(4)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, in := range []ports.CreateSessionInput{
		{UserID: "u1", Token: "old", TTL: time.Minute, Now: base},
		{UserID: "u1", Token: "new", TTL: 24 * time.Hour, Now: base},
	} {
		if _, err := store.Create(ctx, in); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	p := NewPurgeSweeper(store, time.Hour, zerolog.Nop())
	p.now = func() time.Time { return base.Add(time.Hour) }

	n, err := p.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged session, got %d", n)
	}
	if _, err := store.Resolve(ctx, "old"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expired session should be gone, got %v", err)
	}
	if _, err := store.Resolve(ctx, "new"); err != nil {
		t.Fatalf("live session should remain: %v", err)
	}
}

func TestPurgeSweeper_SweepReturnsStoreError(t *testing.T) {
	boom := errors.New("store down")
	store := &countingStore{SessionStore: memory.NewSessionStore(1), err: boom}
	p := NewPurgeSweeper(store, time.Hour, zerolog.Nop())

	if _, err := p.Sweep(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestPurgeSweeper_StartTicksUntilCancelled(t *testing.T) {
	store := &countingStore{SessionStore: memory.NewSessionStore(1)}
	p := NewPurgeSweeper(store, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for store.Calls() < 2 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("sweeper did not tick, calls = %d", store.Calls())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	time.Sleep(20 * time.Millisecond)
	settled := store.Calls()
	time.Sleep(30 * time.Millisecond)
	if store.Calls() != settled {
		t.Fatalf("sweeper kept running after cancel")
	}
}

func TestNewPurgeSweeper_DefaultInterval(t *testing.T) {
	p := NewPurgeSweeper(memory.NewSessionStore(1), 0, zerolog.Nop())
	if p.interval != defaultInterval {
		t.Fatalf("expected default interval, got %v", p.interval)
	}
}
