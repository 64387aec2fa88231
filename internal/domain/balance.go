package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceRecord is one immutable version of an account's balance.
// A new version is produced by every accepted transition; the ID, Currency and
// Owner stay the same for the lifetime of the account.
type BalanceRecord struct {
	ID        string
	MoneyIn   decimal.Decimal
	MoneyOut  decimal.Decimal
	Currency  string
	Owner     string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBalanceRecord returns the first version of a freshly opened account.
func NewBalanceRecord(id, currency, owner string, now time.Time) *BalanceRecord {
	return &BalanceRecord{
		ID:        id,
		MoneyIn:   decimal.Zero,
		MoneyOut:  decimal.Zero,
		Currency:  currency,
		Owner:     owner,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Balance returns MoneyIn - MoneyOut.
func (r *BalanceRecord) Balance() decimal.Decimal {
	return r.MoneyIn.Sub(r.MoneyOut)
}

// Deposited returns the next version with amount added to MoneyIn.
func (r *BalanceRecord) Deposited(amount decimal.Decimal, now time.Time) *BalanceRecord {
	next := r.next(now)
	next.MoneyIn = r.MoneyIn.Add(amount)
	return next
}

// Withdrawn returns the next version with amount added to MoneyOut.
func (r *BalanceRecord) Withdrawn(amount decimal.Decimal, now time.Time) *BalanceRecord {
	next := r.next(now)
	next.MoneyOut = r.MoneyOut.Add(amount)
	return next
}

// Clone returns a copy that shares nothing mutable with r.
func (r *BalanceRecord) Clone() *BalanceRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func (r *BalanceRecord) next(now time.Time) *BalanceRecord {
	next := r.Clone()
	next.Version = r.Version + 1
	next.UpdatedAt = now
	return next
}
