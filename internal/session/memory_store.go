package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// MemoryStore is the default in-process store: a sharded map with one
// mutex per entry, so writers on distinct ids never contend beyond the
// shard index.
type MemoryStore struct {
	ttl    time.Duration
	now    func() time.Time
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// MemoryStoreOption configures the store.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a store whose sessions live for ttl past their
// last activity.
func NewMemoryStore(ttl time.Duration, opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		ttl: ttl,
		now: time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// Create registers a fresh session under id.
func (s *MemoryStore) Create(ctx context.Context, id string) (*Session, error) {
	sh := s.shardFor(id)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[id]; ok {
		e.mu.Lock()
		expired := e.sess.Expired(now)
		e.mu.Unlock()
		if !expired {
			return nil, ErrAlreadyExists
		}
		// expired but unswept: Create replaces it
	}

	sess := New(id, now, s.ttl)
	sh.entries[id] = &entry{sess: sess}
	return sess.Clone(), nil
}

func (s *MemoryStore) lookup(id string) (*entry, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	return e, ok
}

// Get returns a snapshot, rejecting expired sessions.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.Expired(s.now()) {
		return nil, ErrExpired
	}
	return e.sess.Clone(), nil
}

// Status answers even for expired-but-unswept sessions.
func (s *MemoryStore) Status(ctx context.Context, id string) (Status, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Status{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Status(), nil
}

// Mutate applies fn under the per-id lock. fn runs against a copy and is
// committed only on success, so a failed mutation leaves no partial write.
func (s *MemoryStore) Mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	if e.sess.Expired(now) {
		return nil, ErrExpired
	}

	working := e.sess.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Touch(now, s.ttl)
	e.sess = working
	return working.Clone(), nil
}

// Reset discards any prior state and installs a fresh session.
func (s *MemoryStore) Reset(ctx context.Context, id string) (*Session, error) {
	sh := s.shardFor(id)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess := New(id, now, s.ttl)
	sh.entries[id] = &entry{sess: sess}
	return sess.Clone(), nil
}

// Sweep evicts expired entries. Each entry lock is held only for the
// expiry check, never across evictions.
func (s *MemoryStore) Sweep(ctx context.Context) int {
	now := s.now()
	evicted := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.entries {
			e.mu.Lock()
			expired := e.sess.Expired(now)
			e.mu.Unlock()
			if expired {
				delete(sh.entries, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}
