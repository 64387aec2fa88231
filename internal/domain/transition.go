package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transition is a proposed change from a consumed record (or none) to a
// produced record, tagged with a command.
type Transition struct {
	ID        string
	Command   Command
	Inputs    []*BalanceRecord
	Outputs   []*BalanceRecord
	CreatedAt time.Time
}

// NewTransition builds a transition that consumes at most one record and
// produces exactly one. A nil consumed record means nothing is consumed.
func NewTransition(id string, cmd Command, consumed, produced *BalanceRecord, now time.Time) *Transition {
	t := &Transition{
		ID:        id,
		Command:   cmd,
		CreatedAt: now,
	}
	if consumed != nil {
		t.Inputs = []*BalanceRecord{consumed}
	}
	if produced != nil {
		t.Outputs = []*BalanceRecord{produced}
	}
	return t
}

// Consumed returns the single consumed record, or nil.
func (t *Transition) Consumed() *BalanceRecord {
	if len(t.Inputs) != 1 {
		return nil
	}
	return t.Inputs[0]
}

// Produced returns the single produced record, or nil.
func (t *Transition) Produced() *BalanceRecord {
	if len(t.Outputs) != 1 {
		return nil
	}
	return t.Outputs[0]
}

// Amount returns the amount moved by the transition: the MoneyIn delta for a
// deposit, the MoneyOut delta for a withdrawal, zero otherwise.
func (t *Transition) Amount() decimal.Decimal {
	in, out := t.Consumed(), t.Produced()
	if in == nil || out == nil {
		return decimal.Zero
	}
	switch t.Command {
	case CommandDeposit:
		return out.MoneyIn.Sub(in.MoneyIn)
	case CommandWithdraw:
		return out.MoneyOut.Sub(in.MoneyOut)
	default:
		return decimal.Zero
	}
}
