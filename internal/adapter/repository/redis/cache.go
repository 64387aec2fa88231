package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/usecase"
)

// CachedStore is a read-through cache of current balance versions in front
// of a record store. Committing through it writes the produced version to
// the cache. A conflict evicts the entry so the next read goes to the store.
//
// A cached record is only ever used as the consumed input of a transition,
// and the commit authority rejects stale inputs, so a stale entry costs a
// Conflict, never a wrong commit.
type CachedStore struct {
	store     usecase.RecordStore
	authority usecase.CommitAuthority
	client    *redis.Client
	prefix    string
	ttl       time.Duration
}

// NewCachedStore creates a new CachedStore.
func NewCachedStore(store usecase.RecordStore, authority usecase.CommitAuthority, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		store:     store,
		authority: authority,
		client:    client,
		prefix:    "balance:current:",
		ttl:       ttl,
	}
}

type cachedRecord struct {
	ID        string    `json:"id"`
	MoneyIn   string    `json:"money_in"`
	MoneyOut  string    `json:"money_out"`
	Currency  string    `json:"currency"`
	Owner     string    `json:"owner"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetCurrent implements usecase.RecordStore.
func (c *CachedStore) GetCurrent(ctx context.Context, id string) (*domain.BalanceRecord, error) {
	if record, ok := c.get(ctx, id); ok {
		return record, nil
	}

	record, err := c.store.GetCurrent(ctx, id)
	if err != nil || record == nil {
		return record, err
	}

	c.set(ctx, record)
	return record, nil
}

// Submit implements usecase.CommitAuthority.
func (c *CachedStore) Submit(ctx context.Context, t *domain.Transition) (*domain.BalanceRecord, error) {
	committed, err := c.authority.Submit(ctx, t)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			if produced := t.Produced(); produced != nil {
				c.evict(ctx, produced.ID)
			}
		}
		return nil, err
	}

	c.set(ctx, committed)
	return committed, nil
}

func (c *CachedStore) get(ctx context.Context, id string) (*domain.BalanceRecord, bool) {
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("balance_id", id).Msg("balance cache read failed")
		}
		return nil, false
	}

	var cached cachedRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		c.evict(ctx, id)
		return nil, false
	}

	moneyIn, errIn := decimal.NewFromString(cached.MoneyIn)
	moneyOut, errOut := decimal.NewFromString(cached.MoneyOut)
	if errIn != nil || errOut != nil {
		c.evict(ctx, id)
		return nil, false
	}

	return &domain.BalanceRecord{
		ID:        cached.ID,
		MoneyIn:   moneyIn,
		MoneyOut:  moneyOut,
		Currency:  cached.Currency,
		Owner:     cached.Owner,
		Version:   cached.Version,
		CreatedAt: cached.CreatedAt,
		UpdatedAt: cached.UpdatedAt,
	}, true
}

func (c *CachedStore) set(ctx context.Context, record *domain.BalanceRecord) {
	data, err := json.Marshal(cachedRecord{
		ID:        record.ID,
		MoneyIn:   record.MoneyIn.String(),
		MoneyOut:  record.MoneyOut.String(),
		Currency:  record.Currency,
		Owner:     record.Owner,
		Version:   record.Version,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	})
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, c.prefix+record.ID, data, c.ttl).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("balance_id", record.ID).Msg("balance cache write failed")
	}
}

func (c *CachedStore) evict(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.prefix+id).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("balance_id", id).Msg("balance cache evict failed")
	}
}
