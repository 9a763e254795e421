// Package storage defines the durable session store used by matchmaking and the
// session engine.
package storage

import (
	"context"

	"github.com/victornm/duelquiz/internal/domain"
)

// UpdateFunc mutates a session inside an atomic update. It may be called more
// than once when the store retries after a conflicting write, so it must not have
// side effects beyond changing the session it is given. Returning an error aborts
// the update and nothing is written.
type UpdateFunc func(ss *domain.Session) error

// Store persists sessions keyed by id.
type Store interface {
	// Create inserts a new session. The session must not exist yet.
	Create(ctx context.Context, ss *domain.Session) error

	// Get returns a session or a NOT_FOUND error.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Update runs fn on the latest state of the session and writes the result
	// atomically: concurrent updates of the same session are serialized, and
	// updates of different sessions never block each other.
	Update(ctx context.Context, sessionID string, fn UpdateFunc) (*domain.Session, error)

	// FindWaiting returns up to limit waiting sessions created with filter f,
	// oldest first.
	FindWaiting(ctx context.Context, f domain.Filter, limit int) ([]domain.Session, error)
}
