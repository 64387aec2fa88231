package usecase

import (
	"context"
	"time"

	"github.com/iho/balanceledger/internal/domain"
)

// RecordStore looks up the current version of a balance.
type RecordStore interface {
	// GetCurrent returns the single unconsumed version for id, or
	// domain.ErrNotFound when the id is unknown.
	GetCurrent(ctx context.Context, id string) (*domain.BalanceRecord, error)
}

// CommitAuthority atomically accepts or rejects a transition.
type CommitAuthority interface {
	// Submit marks the consumed record (if any) as superseded and the produced
	// record as current. It fails with domain.ErrConflict when the consumed
	// version is no longer current, domain.ErrRejected on policy failures and
	// domain.ErrUnavailable when the backend cannot be reached.
	Submit(ctx context.Context, transition *domain.Transition) (*domain.BalanceRecord, error)
}

// HistoryReader reads current records and version history.
type HistoryReader interface {
	ListCurrent(ctx context.Context, limit, offset int) ([]*domain.BalanceRecord, error)
	// ListVersions returns the versions of one balance, newest first.
	ListVersions(ctx context.Context, id string, limit, offset int) ([]*domain.BalanceRecord, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	// DeletePublished removes events published before the given time.
	DeletePublished(ctx context.Context, before time.Time) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IdentityResolver resolves the identity that owns balances opened by the caller.
type IdentityResolver interface {
	Identity(ctx context.Context) (string, error)
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically claims key unless it exists.
	// Returns (exists, existingValue, error); existingValue is nil while the
	// first request holding the key is still running.
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops key so the request may be retried.
	Release(ctx context.Context, key string) error
}
