package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the id is unknown or already reaped.
	ErrNotFound = errors.New("session: not found")
	// ErrAlreadyExists means Create was called for a live id.
	ErrAlreadyExists = errors.New("session: already exists")
	// ErrExpired means the TTL lapsed; only Status still answers and the
	// caller must reset before continuing.
	ErrExpired = errors.New("session: expired")
)

// Store is the per-applicant state store. Implementations must serialize
// Mutate calls per id while letting distinct ids proceed in parallel.
type Store interface {
	// Create registers a fresh session, failing with ErrAlreadyExists if
	// the id is present and not expired.
	Create(ctx context.Context, id string) (*Session, error)

	// Get returns a snapshot of the session. Expired sessions return
	// ErrExpired; unknown ids return ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Status returns the read-only status view. It succeeds for expired
	// sessions that have not been reaped yet.
	Status(ctx context.Context, id string) (Status, error)

	// Mutate applies fn to the session under the per-id write lock and
	// refreshes the TTL on success. fn sees a private copy; the store
	// commits it only when fn returns nil.
	Mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error)

	// Reset discards any existing session and installs a fresh one under
	// the same id.
	Reset(ctx context.Context, id string) (*Session, error)

	// Sweep evicts expired sessions and reports how many were removed.
	Sweep(ctx context.Context) int
}
