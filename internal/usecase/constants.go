package usecase

import "time"

const (
	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// consistencyPageSize is the page size used when scanning the ledger.
	consistencyPageSize = 100
)
