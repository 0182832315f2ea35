package session

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const lockStripes = 64

// RedisStore keeps sessions in Redis with native TTL expiry, so the
// reaper's job is done by the server and Sweep is a no-op. Per-id writer
// serialization uses striped in-process locks; cross-instance session
// replication is out of scope.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	now    func() time.Time
	locks  [lockStripes]sync.Mutex
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("credgen.internal.session")
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: tracer,
		now:    time.Now,
	}
}

func sessionKey(id string) string {
	return fmt.Sprintf("loan_session:%s", id)
}

func (s *RedisStore) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *RedisStore) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.redis.Set(ctx, sessionKey(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: failed to load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: failed to decode session: %w", err)
	}
	if sess.Slots == nil {
		sess.Slots = make(map[string]Slot)
	}
	return &sess, nil
}

// Create registers a fresh session, using SETNX so racing creators for
// the same id cannot both win.
func (s *RedisStore) Create(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.create")
	defer span.End()

	sess := New(id, s.now(), s.ttl)
	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to marshal session: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, sessionKey(id), data, s.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to create session: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyExists
	}
	return sess, nil
}

// Get returns a snapshot of the session.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	sess, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, ErrExpired
	}
	return sess, nil
}

// Status returns the read-only view. Redis evicts on TTL, so an expired
// session is usually already ErrNotFound here; the lapsed-but-present
// window still answers, matching the memory store.
func (s *RedisStore) Status(ctx context.Context, id string) (Status, error) {
	ctx, span := s.tracer.Start(ctx, "session.status")
	defer span.End()

	sess, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return Status{}, err
	}
	return sess.Status(), nil
}

// Mutate applies fn under the striped per-id lock and refreshes the TTL.
func (s *RedisStore) Mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.mutate")
	defer span.End()

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := s.now()
	if sess.Expired(now) {
		return nil, ErrExpired
	}

	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.Touch(now, s.ttl)

	if err := s.save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sess, nil
}

// Reset installs a fresh session regardless of prior state.
func (s *RedisStore) Reset(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.reset")
	defer span.End()

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess := New(id, s.now(), s.ttl)
	if err := s.save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sess, nil
}

// Sweep is a no-op: Redis evicts keys when their TTL fires.
func (s *RedisStore) Sweep(ctx context.Context) int {
	return 0
}
