// Package memory provides an in-process record store and commit authority.
// It enforces the same at-most-one-acceptance-per-version rule as the SQL
// backends and is used for tests and single-node development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/usecase"
)

// Store implements usecase.RecordStore, usecase.CommitAuthority,
// usecase.HistoryReader and usecase.OutboxRepository.
type Store struct {
	mu       sync.RWMutex
	versions map[string][]*domain.BalanceRecord // oldest first
	order    []string
	outbox   []*domain.OutboxEvent
	eventIDs usecase.IDGenerator
}

// NewStore creates an empty Store. eventIDs may be nil, in which case the
// transition ID is reused as the event ID.
func NewStore(eventIDs usecase.IDGenerator) *Store {
	return &Store{
		versions: make(map[string][]*domain.BalanceRecord),
		eventIDs: eventIDs,
	}
}

// GetCurrent returns the latest version of id.
func (s *Store) GetCurrent(ctx context.Context, id string) (*domain.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	return versions[len(versions)-1].Clone(), nil
}

// Submit atomically supersedes the consumed version and stores the produced one.
func (s *Store) Submit(ctx context.Context, t *domain.Transition) (*domain.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	produced := t.Produced()
	if produced == nil {
		return nil, fmt.Errorf("%w: transition produces no record", domain.ErrRejected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions, exists := s.versions[produced.ID]
	consumed := t.Consumed()

	switch {
	case consumed == nil && exists:
		return nil, fmt.Errorf("%w: balance %s already exists", domain.ErrConflict, produced.ID)
	case consumed != nil && !exists:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, consumed.ID)
	case consumed != nil && versions[len(versions)-1].Version != consumed.Version:
		return nil, fmt.Errorf("%w: balance %s version %d is superseded", domain.ErrConflict, consumed.ID, consumed.Version)
	}

	stored := produced.Clone()
	if !exists {
		s.order = append(s.order, stored.ID)
	}
	s.versions[stored.ID] = append(versions, stored)

	eventID := t.ID
	if s.eventIDs != nil {
		eventID = s.eventIDs.Generate()
	}
	s.outbox = append(s.outbox, domain.NewTransitionEvent(eventID, t, time.Now().UTC()))

	return stored.Clone(), nil
}

// ListCurrent lists current versions in creation order.
func (s *Store) ListCurrent(ctx context.Context, limit, offset int) ([]*domain.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := page(s.order, limit, offset)
	result := make([]*domain.BalanceRecord, 0, len(ids))
	for _, id := range ids {
		versions := s.versions[id]
		result = append(result, versions[len(versions)-1].Clone())
	}

	return result, nil
}

// ListVersions lists versions of id, newest first.
func (s *Store) ListVersions(ctx context.Context, id string, limit, offset int) ([]*domain.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versions[id]
	newestFirst := make([]*domain.BalanceRecord, len(versions))
	for i, v := range versions {
		newestFirst[len(versions)-1-i] = v.Clone()
	}

	return page(newestFirst, limit, offset), nil
}

// GetUnpublished returns unpublished events, oldest first.
func (s *Store) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*domain.OutboxEvent
	for _, e := range s.outbox {
		if e.Published {
			continue
		}
		c := *e
		events = append(events, &c)
		if len(events) == limit {
			break
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

// MarkPublished marks an event as published.
func (s *Store) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID == id {
			at := publishedAt
			e.Published = true
			e.PublishedAt = &at
			return nil
		}
	}

	return fmt.Errorf("outbox event %s not found", id)
}

// DeletePublished drops events published before the given time.
func (s *Store) DeletePublished(ctx context.Context, before time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.outbox[:0]
	for _, e := range s.outbox {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	s.outbox = kept

	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]T(nil), items[offset:end]...)
}
