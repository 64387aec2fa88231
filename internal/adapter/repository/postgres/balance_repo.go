package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/usecase"
)

const balanceColumns = `id, money_in::text, money_out::text, currency, owner, version, created_at, updated_at`

const (
	getCurrentSQL = `SELECT ` + balanceColumns + ` FROM balance_versions WHERE id = $1 AND current`

	listCurrentSQL = `SELECT ` + balanceColumns + ` FROM balance_versions WHERE current
ORDER BY created_at, id LIMIT $1 OFFSET $2`

	listVersionsSQL = `SELECT ` + balanceColumns + ` FROM balance_versions WHERE id = $1
ORDER BY version DESC LIMIT $2 OFFSET $3`

	supersedeSQL = `UPDATE balance_versions SET current = FALSE WHERE id = $1 AND version = $2 AND current`

	balanceExistsSQL = `SELECT EXISTS (SELECT 1 FROM balance_versions WHERE id = $1)`

	insertVersionSQL = `INSERT INTO balance_versions
(id, version, money_in, money_out, currency, owner, current, transition_id, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, TRUE, $7, $8, $9)`

	insertTransitionSQL = `INSERT INTO transitions
(id, command, balance_id, consumed_version, produced_version, amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)`

	insertOutboxSQL = `INSERT INTO outbox_events
(id, aggregate_id, aggregate_type, event_type, payload, created_at, published)
VALUES ($1, $2, $3, $4, $5, $6, FALSE)`
)

// BalanceRepository stores balance versions in PostgreSQL. It implements
// usecase.RecordStore, usecase.CommitAuthority and usecase.HistoryReader.
type BalanceRepository struct {
	pool     pgxPool
	tx       *TxManager
	retrier  *Retrier
	eventIDs usecase.IDGenerator
}

// NewBalanceRepository creates a new BalanceRepository.
func NewBalanceRepository(pool *pgxpool.Pool, eventIDs usecase.IDGenerator) *BalanceRepository {
	return newBalanceRepository(pool, eventIDs)
}

func newBalanceRepository(pool pgxPool, eventIDs usecase.IDGenerator) *BalanceRepository {
	return &BalanceRepository{
		pool:     pool,
		tx:       newTxManager(pool),
		retrier:  NewRetrier(),
		eventIDs: eventIDs,
	}
}

// GetCurrent retrieves the current version of a balance.
func (r *BalanceRepository) GetCurrent(ctx context.Context, id string) (*domain.BalanceRecord, error) {
	record, err := scanBalance(r.pool.QueryRow(ctx, getCurrentSQL, id))
	if err != nil {
		return nil, mapError(err)
	}

	return record, nil
}

// ListCurrent lists current versions ordered by creation time.
func (r *BalanceRepository) ListCurrent(ctx context.Context, limit, offset int) ([]*domain.BalanceRecord, error) {
	return r.list(ctx, listCurrentSQL, limit, offset)
}

// ListVersions lists every version of a balance, newest first.
func (r *BalanceRepository) ListVersions(ctx context.Context, id string, limit, offset int) ([]*domain.BalanceRecord, error) {
	return r.list(ctx, listVersionsSQL, id, limit, offset)
}

// Submit commits a transition in one database transaction: the consumed
// version stops being current, the produced version is inserted, and the
// transition and its outbox event are recorded.
func (r *BalanceRepository) Submit(ctx context.Context, t *domain.Transition) (*domain.BalanceRecord, error) {
	produced := t.Produced()
	if produced == nil {
		return nil, fmt.Errorf("%w: transition produces no record", domain.ErrRejected)
	}

	event := domain.NewTransitionEvent(r.eventIDs.Generate(), t, time.Now().UTC())
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, err
	}

	err = r.retrier.Retry(ctx, func() error {
		return r.tx.WithinTx(ctx, func(tx pgx.Tx) error {
			return r.submitTx(ctx, tx, t, event, payload)
		})
	})
	if err != nil {
		return nil, mapError(err)
	}

	return produced.Clone(), nil
}

func (r *BalanceRepository) submitTx(ctx context.Context, tx pgx.Tx, t *domain.Transition, event *domain.OutboxEvent, payload []byte) error {
	produced := t.Produced()

	var consumedVersion *int64
	if consumed := t.Consumed(); consumed != nil {
		tag, err := tx.Exec(ctx, supersedeSQL, consumed.ID, consumed.Version)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, balanceExistsSQL, consumed.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s", domain.ErrNotFound, consumed.ID)
			}
			return fmt.Errorf("%w: balance %s version %d is superseded", domain.ErrConflict, consumed.ID, consumed.Version)
		}

		v := consumed.Version
		consumedVersion = &v
	}

	if _, err := tx.Exec(ctx, insertVersionSQL,
		produced.ID,
		produced.Version,
		produced.MoneyIn.String(),
		produced.MoneyOut.String(),
		produced.Currency,
		produced.Owner,
		t.ID,
		produced.CreatedAt,
		produced.UpdatedAt,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, insertTransitionSQL,
		t.ID,
		t.Command.String(),
		produced.ID,
		consumedVersion,
		produced.Version,
		t.Amount().String(),
		t.CreatedAt,
	); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, insertOutboxSQL,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		payload,
		event.CreatedAt,
	)
	return err
}

func (r *BalanceRepository) list(ctx context.Context, query string, args ...any) ([]*domain.BalanceRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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

func scanBalance(row pgx.Row) (*domain.BalanceRecord, error) {
	var (
		record            domain.BalanceRecord
		moneyIn, moneyOut string
	)

	if err := row.Scan(
		&record.ID,
		&moneyIn,
		&moneyOut,
		&record.Currency,
		&record.Owner,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if record.MoneyIn, err = decimal.NewFromString(moneyIn); err != nil {
		return nil, fmt.Errorf("invalid money_in for %s: %w", record.ID, err)
	}
	if record.MoneyOut, err = decimal.NewFromString(moneyOut); err != nil {
		return nil, fmt.Errorf("invalid money_out for %s: %w", record.ID, err)
	}

	return &record, nil
}
