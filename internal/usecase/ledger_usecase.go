package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/iho/balanceledger/internal/domain"
)

var (
	// ErrInconsistentLedger is returned when a stored version history breaks a balance invariant.
	ErrInconsistentLedger = errors.New("ledger is inconsistent: version history breaks balance invariants")
)

// LedgerUseCase handles ledger-wide operations.
type LedgerUseCase struct {
	history HistoryReader
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(history HistoryReader) *LedgerUseCase {
	return &LedgerUseCase{
		history: history,
	}
}

// Violation describes one stored version that fails validation.
type Violation struct {
	BalanceID string
	Version   int64
	Rule      string
	Reason    string
}

// ConsistencyReport is the result of a ledger scan.
type ConsistencyReport struct {
	Balances   int
	Versions   int
	Violations []Violation
	Consistent bool
	CheckedAt  time.Time
}

// CheckConsistency replays every stored version history through the
// transition validator. It returns ErrInconsistentLedger together with the
// report when any version fails.
func (uc *LedgerUseCase) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	report := &ConsistencyReport{Violations: make([]Violation, 0)}

	for offset := 0; ; offset += consistencyPageSize {
		current, err := uc.history.ListCurrent(ctx, consistencyPageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, record := range current {
			versions, err := uc.allVersions(ctx, record.ID)
			if err != nil {
				return nil, err
			}

			report.Balances++
			report.Versions += len(versions)
			report.Violations = append(report.Violations, checkHistory(record, versions)...)
		}

		if len(current) < consistencyPageSize {
			break
		}
	}

	report.Consistent = len(report.Violations) == 0
	report.CheckedAt = time.Now().UTC()

	if !report.Consistent {
		return report, ErrInconsistentLedger
	}

	return report, nil
}

// allVersions returns every version of id, oldest first.
func (uc *LedgerUseCase) allVersions(ctx context.Context, id string) ([]*domain.BalanceRecord, error) {
	var newestFirst []*domain.BalanceRecord
	for offset := 0; ; offset += consistencyPageSize {
		page, err := uc.history.ListVersions(ctx, id, consistencyPageSize, offset)
		if err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, page...)
		if len(page) < consistencyPageSize {
			break
		}
	}

	oldestFirst := make([]*domain.BalanceRecord, len(newestFirst))
	for i, v := range newestFirst {
		oldestFirst[len(newestFirst)-1-i] = v
	}
	return oldestFirst, nil
}

func checkHistory(current *domain.BalanceRecord, versions []*domain.BalanceRecord) []Violation {
	var violations []Violation

	if len(versions) == 0 {
		return []Violation{{BalanceID: current.ID, Version: current.Version, Rule: "history_missing", Reason: "no stored versions"}}
	}

	var prev *domain.BalanceRecord
	for _, v := range versions {
		t := replayed(prev, v)
		if err := domain.ValidateTransition(t); err != nil {
			violations = append(violations, toViolation(v, err))
		}
		prev = v
	}

	if latest := versions[len(versions)-1]; latest.Version != current.Version {
		violations = append(violations, Violation{
			BalanceID: current.ID,
			Version:   current.Version,
			Rule:      "current_is_latest",
			Reason:    "current version is not the latest stored version",
		})
	}

	return violations
}

// replayed reconstructs the transition that produced v from prev.
func replayed(prev, v *domain.BalanceRecord) *domain.Transition {
	switch {
	case prev == nil:
		return domain.NewTransition("", domain.CommandCreate, nil, v, v.UpdatedAt)
	case !v.MoneyOut.Equal(prev.MoneyOut):
		return domain.NewTransition("", domain.CommandWithdraw, prev, v, v.UpdatedAt)
	default:
		return domain.NewTransition("", domain.CommandDeposit, prev, v, v.UpdatedAt)
	}
}

func toViolation(v *domain.BalanceRecord, err error) Violation {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return Violation{BalanceID: v.ID, Version: v.Version, Rule: verr.Rule, Reason: verr.Reason}
	}
	return Violation{BalanceID: v.ID, Version: v.Version, Rule: "unknown", Reason: err.Error()}
}
