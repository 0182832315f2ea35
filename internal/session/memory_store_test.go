package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*MemoryStore, *time.Time) {
	t.Helper()
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(30*time.Minute, WithClock(func() time.Time { return current }))
	return store, &current
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "app-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.State != StateGreeting {
		t.Errorf("new session state = %s, want GREETING", sess.State)
	}
	if sess.FinalStatus != FinalPending {
		t.Errorf("new session final status = %s, want pending", sess.FinalStatus)
	}

	if _, err := store.Create(ctx, "app-1"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second Create error = %v, want ErrAlreadyExists", err)
	}

	got, err := store.Get(ctx, "app-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "app-1" {
		t.Errorf("Get id = %s", got.ID)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreMutateRefreshesTTL(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "app-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	firstExpiry := sess.ExpiresAt

	*clock = clock.Add(10 * time.Minute)
	mutated, err := store.Mutate(ctx, "app-1", func(s *Session) error {
		s.State = StateCollectingInfo
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if mutated.State != StateCollectingInfo {
		t.Errorf("state after mutate = %s", mutated.State)
	}
	if !mutated.ExpiresAt.After(firstExpiry) {
		t.Error("Mutate should refresh expires_at")
	}
}

func TestMemoryStoreMutateRollbackOnError(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "app-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	wantErr := errors.New("boom")
	if _, err := store.Mutate(ctx, "app-1", func(s *Session) error {
		s.State = StateRejected
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("Mutate error = %v", err)
	}

	got, err := store.Get(ctx, "app-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateGreeting {
		t.Errorf("failed mutation leaked state change: %s", got.State)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "app-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	*clock = clock.Add(31 * time.Minute)

	if _, err := store.Get(ctx, "app-1"); !errors.Is(err, ErrExpired) {
		t.Errorf("Get expired error = %v, want ErrExpired", err)
	}
	if _, err := store.Mutate(ctx, "app-1", func(s *Session) error { return nil }); !errors.Is(err, ErrExpired) {
		t.Errorf("Mutate expired error = %v, want ErrExpired", err)
	}

	// status query still answers for lapsed-but-unswept sessions
	status, err := store.Status(ctx, "app-1")
	if err != nil {
		t.Fatalf("Status on expired session: %v", err)
	}
	if status.State != StateGreeting {
		t.Errorf("Status state = %s", status.State)
	}

	// expired id can be re-created
	if _, err := store.Create(ctx, "app-1"); err != nil {
		t.Errorf("Create over expired session: %v", err)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Create(ctx, id); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	*clock = clock.Add(20 * time.Minute)
	if _, err := store.Create(ctx, "fresh"); err != nil {
		t.Fatalf("Create fresh: %v", err)
	}

	*clock = clock.Add(11 * time.Minute) // a,b,c now past TTL; fresh is not

	if evicted := store.Sweep(ctx); evicted != 3 {
		t.Errorf("Sweep evicted %d, want 3", evicted)
	}
	if _, err := store.Status(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status after sweep error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh session should survive sweep: %v", err)
	}
}

func TestMemoryStoreReset(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "app-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Mutate(ctx, "app-1", func(s *Session) error {
		s.State = StateOffer
		s.NegotiationRounds = 2
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	fresh, err := store.Reset(ctx, "app-1")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if fresh.State != StateGreeting || fresh.NegotiationRounds != 0 {
		t.Errorf("Reset did not produce a fresh session: %+v", fresh)
	}
}

func TestMemoryStoreConcurrentMutations(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "app-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 32
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, _ = store.Mutate(ctx, "app-1", func(s *Session) error {
				s.NegotiationRounds++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "app-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.NegotiationRounds != writers {
		t.Errorf("lost updates: rounds = %d, want %d", got.NegotiationRounds, writers)
	}
}
