package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/balanceledger/internal/domain"
)

func openBalance(t *testing.T, s *Store, id string) *domain.BalanceRecord {
	t.Helper()

	now := time.Now().UTC()
	record := domain.NewBalanceRecord(id, "USD", "node-a", now)
	committed, err := s.Submit(context.Background(), domain.NewTransition("tr-"+id, domain.CommandCreate, nil, record, now))
	require.NoError(t, err)
	return committed
}

func TestStore_SubmitAndGetCurrent(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	v1 := openBalance(t, s, "acc-1")

	now := time.Now().UTC()
	v2 := v1.Deposited(decimal.NewFromInt(10), now)
	_, err := s.Submit(ctx, domain.NewTransition("tr-2", domain.CommandDeposit, v1, v2, now))
	require.NoError(t, err)

	current, err := s.GetCurrent(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
	assert.True(t, current.MoneyIn.Equal(decimal.NewFromInt(10)))

	versions, err := s.ListVersions(ctx, "acc-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(2), versions[0].Version)
	assert.Equal(t, int64(1), versions[1].Version)
}

func TestStore_GetCurrent_NotFound(t *testing.T) {
	_, err := NewStore(nil).GetCurrent(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Submit_StaleVersion(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	v1 := openBalance(t, s, "acc-1")

	now := time.Now().UTC()
	_, err := s.Submit(ctx, domain.NewTransition("tr-2", domain.CommandDeposit, v1, v1.Deposited(decimal.NewFromInt(5), now), now))
	require.NoError(t, err)

	_, err = s.Submit(ctx, domain.NewTransition("tr-3", domain.CommandDeposit, v1, v1.Deposited(decimal.NewFromInt(7), now), now))
	assert.ErrorIs(t, err, domain.ErrConflict)

	current, err := s.GetCurrent(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, current.MoneyIn.Equal(decimal.NewFromInt(5)))
}

func TestStore_Submit_DuplicateCreate(t *testing.T) {
	s := NewStore(nil)
	openBalance(t, s, "acc-1")

	now := time.Now().UTC()
	record := domain.NewBalanceRecord("acc-1", "EUR", "node-a", now)
	_, err := s.Submit(context.Background(), domain.NewTransition("tr-x", domain.CommandCreate, nil, record, now))
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestStore_Submit_ConcurrentSameVersion(t *testing.T) {
	s := NewStore(nil)
	v1 := openBalance(t, s, "acc-1")

	const writers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		conflicts int
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now().UTC()
			_, err := s.Submit(context.Background(), domain.NewTransition("tr", domain.CommandDeposit, v1, v1.Deposited(decimal.NewFromInt(1), now), now))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, writers-1, conflicts)
}

func TestStore_ListCurrent_Pagination(t *testing.T) {
	s := NewStore(nil)
	for _, id := range []string{"a", "b", "c"} {
		openBalance(t, s, id)
	}

	page1, err := s.ListCurrent(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "a", page1[0].ID)

	page2, err := s.ListCurrent(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "c", page2[0].ID)

	empty, err := s.ListCurrent(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Outbox(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	openBalance(t, s, "acc-1")
	openBalance(t, s, "acc-2")

	events, err := s.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTypeBalanceCreated, events[0].EventType)
	assert.Equal(t, "acc-1", events[0].AggregateID)

	require.NoError(t, s.MarkPublished(ctx, events[0].ID, time.Now()))

	events, err = s.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "acc-2", events[0].AggregateID)

	assert.Error(t, s.MarkPublished(ctx, "missing", time.Now()))
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStore(nil)
	openBalance(t, s, "acc-1")

	_, err := s.GetCurrent(ctx, "acc-1")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.GetUnpublished(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.MarkPublished(ctx, "ev-1", time.Now()), context.Canceled)
	assert.ErrorIs(t, s.DeletePublished(ctx, time.Now()), context.Canceled)
	assert.Len(t, s.outbox, 1)
}

func TestStore_DeletePublished(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	openBalance(t, s, "acc-1")
	openBalance(t, s, "acc-2")

	events, err := s.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, s.MarkPublished(ctx, events[0].ID, time.Now().Add(-time.Hour)))

	require.NoError(t, s.DeletePublished(ctx, time.Now()))

	assert.Len(t, s.outbox, 1)
	assert.Equal(t, "acc-2", s.outbox[0].AggregateID)
}
