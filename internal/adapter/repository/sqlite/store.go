// Package sqlite stores balance versions in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/usecase"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// Store implements usecase.RecordStore, usecase.CommitAuthority,
// usecase.HistoryReader and usecase.OutboxRepository on SQLite.
type Store struct {
	db       *sql.DB
	eventIDs usecase.IDGenerator
}

// NewStore creates a new Store.
func NewStore(db *sql.DB, eventIDs usecase.IDGenerator) *Store {
	return &Store{db: db, eventIDs: eventIDs}
}

const balanceColumns = `id, money_in, money_out, currency, owner, version, created_at, updated_at`

// GetCurrent retrieves the current version of a balance.
func (s *Store) GetCurrent(ctx context.Context, id string) (*domain.BalanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM balance_versions WHERE id = ? AND current = 1`, id)

	record, err := scanBalance(row)
	if err != nil {
		return nil, mapError(err)
	}

	return record, nil
}

// ListCurrent lists current versions ordered by creation time.
func (s *Store) ListCurrent(ctx context.Context, limit, offset int) ([]*domain.BalanceRecord, error) {
	return s.list(ctx, `SELECT `+balanceColumns+` FROM balance_versions WHERE current = 1
ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
}

// ListVersions lists every version of a balance, newest first.
func (s *Store) ListVersions(ctx context.Context, id string, limit, offset int) ([]*domain.BalanceRecord, error) {
	return s.list(ctx, `SELECT `+balanceColumns+` FROM balance_versions WHERE id = ?
ORDER BY version DESC LIMIT ? OFFSET ?`, id, limit, offset)
}

// Submit commits a transition and its outbox event in one transaction.
func (s *Store) Submit(ctx context.Context, t *domain.Transition) (*domain.BalanceRecord, error) {
	produced := t.Produced()
	if produced == nil {
		return nil, fmt.Errorf("%w: transition produces no record", domain.ErrRejected)
	}

	event := domain.NewTransitionEvent(s.eventIDs.Generate(), t, time.Now().UTC())
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := submitTx(ctx, tx, t, event, payload); err != nil {
		return nil, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}

	return produced.Clone(), nil
}

func submitTx(ctx context.Context, tx *sql.Tx, t *domain.Transition, event *domain.OutboxEvent, payload []byte) error {
	produced := t.Produced()

	var consumedVersion sql.NullInt64
	if consumed := t.Consumed(); consumed != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE balance_versions SET current = 0 WHERE id = ? AND version = ? AND current = 1`,
			consumed.ID, consumed.Version)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM balance_versions WHERE id = ?)`, consumed.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s", domain.ErrNotFound, consumed.ID)
			}
			return fmt.Errorf("%w: balance %s version %d is superseded", domain.ErrConflict, consumed.ID, consumed.Version)
		}

		consumedVersion = sql.NullInt64{Int64: consumed.Version, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO balance_versions
(id, version, money_in, money_out, currency, owner, current, transition_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		produced.ID,
		produced.Version,
		produced.MoneyIn.String(),
		produced.MoneyOut.String(),
		produced.Currency,
		produced.Owner,
		t.ID,
		formatTime(produced.CreatedAt),
		formatTime(produced.UpdatedAt),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO transitions
(id, command, balance_id, consumed_version, produced_version, amount, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Command.String(),
		produced.ID,
		consumedVersion,
		produced.Version,
		t.Amount().String(),
		formatTime(t.CreatedAt),
	); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO outbox_events
(id, aggregate_id, aggregate_type, event_type, payload, created_at, published)
VALUES (?, ?, ?, ?, ?, ?, 0)`,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		string(payload),
		formatTime(event.CreatedAt),
	)
	return err
}

// GetUnpublished retrieves unpublished events, oldest first.
func (s *Store) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, aggregate_id, aggregate_type, event_type, payload, created_at
FROM outbox_events WHERE published = 0 ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		var (
			event            domain.OutboxEvent
			payload, created string
		)

		if err := rows.Scan(&event.ID, &event.AggregateID, &event.AggregateType, &event.EventType, &payload, &created); err != nil {
			return nil, mapError(err)
		}

		if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
			return nil, fmt.Errorf("invalid payload for event %s: %w", event.ID, err)
		}

		if event.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return events, nil
}

// MarkPublished marks an event as published.
func (s *Store) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outbox_events SET published = 1, published_at = ? WHERE id = ?`, formatTime(publishedAt), id)
	return mapError(err)
}

// DeletePublished deletes published events older than the given time.
func (s *Store) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox_events WHERE published = 1 AND published_at < ?`, formatTime(before))
	return mapError(err)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*domain.BalanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	records := make([]*domain.BalanceRecord, 0)
	for rows.Next() {
		record, err := scanBalance(rows)
		if err != nil {
			return nil, mapError(err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBalance(row scanner) (*domain.BalanceRecord, error) {
	var (
		record               domain.BalanceRecord
		moneyIn, moneyOut    string
		createdAt, updatedAt string
	)

	if err := row.Scan(&record.ID, &moneyIn, &moneyOut, &record.Currency, &record.Owner, &record.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if record.MoneyIn, err = decimal.NewFromString(moneyIn); err != nil {
		return nil, fmt.Errorf("invalid money_in for %s: %w", record.ID, err)
	}
	if record.MoneyOut, err = decimal.NewFromString(moneyOut); err != nil {
		return nil, fmt.Errorf("invalid money_out for %s: %w", record.ID, err)
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// mapError translates driver errors into the ledger's error kinds.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrRejected):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case errors.As(err, &sqliteErr):
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", domain.ErrConflict, err)
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintForeignKey, sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %w", domain.ErrRejected, err)
		}
	}

	return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
}
