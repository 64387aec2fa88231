package usecase_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/usecase"
	"github.com/iho/balanceledger/internal/usecase/mocks"
)

func TestLedgerUseCase_CheckConsistency(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	v1 := storedRecord(0, 0, 1)
	v2 := storedRecord(100, 0, 2)
	v3 := storedRecord(100, 40, 3)

	history := mocks.NewMockHistoryReader(ctrl)
	history.EXPECT().ListCurrent(gomock.Any(), gomock.Any(), 0).Return([]*domain.BalanceRecord{v3}, nil)
	history.EXPECT().ListVersions(gomock.Any(), "acc-1", gomock.Any(), 0).Return([]*domain.BalanceRecord{v3, v2, v1}, nil)

	uc := usecase.NewLedgerUseCase(history)

	report, err := uc.CheckConsistency(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Consistent {
		t.Errorf("expected consistent ledger, got violations %+v", report.Violations)
	}
	if report.Balances != 1 || report.Versions != 3 {
		t.Errorf("expected 1 balance and 3 versions, got %d and %d", report.Balances, report.Versions)
	}
}

func TestLedgerUseCase_CheckConsistency_Overdrawn(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	v1 := storedRecord(0, 0, 1)
	v2 := storedRecord(10, 0, 2)
	v3 := storedRecord(10, 25, 3)

	history := mocks.NewMockHistoryReader(ctrl)
	history.EXPECT().ListCurrent(gomock.Any(), gomock.Any(), 0).Return([]*domain.BalanceRecord{v3}, nil)
	history.EXPECT().ListVersions(gomock.Any(), "acc-1", gomock.Any(), 0).Return([]*domain.BalanceRecord{v3, v2, v1}, nil)

	uc := usecase.NewLedgerUseCase(history)

	report, err := uc.CheckConsistency(context.Background())
	if !errors.Is(err, usecase.ErrInconsistentLedger) {
		t.Fatalf("expected ErrInconsistentLedger, got %v", err)
	}

	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(report.Violations))
	}
	if v := report.Violations[0]; v.Version != 3 || v.Rule != domain.RuleNonNegativeBalance {
		t.Errorf("unexpected violation %+v", v)
	}
}

func TestLedgerUseCase_CheckConsistency_VersionGap(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	v1 := storedRecord(0, 0, 1)
	v3 := storedRecord(10, 0, 3)

	history := mocks.NewMockHistoryReader(ctrl)
	history.EXPECT().ListCurrent(gomock.Any(), gomock.Any(), 0).Return([]*domain.BalanceRecord{v3}, nil)
	history.EXPECT().ListVersions(gomock.Any(), "acc-1", gomock.Any(), 0).Return([]*domain.BalanceRecord{v3, v1}, nil)

	report, err := usecase.NewLedgerUseCase(history).CheckConsistency(context.Background())
	if !errors.Is(err, usecase.ErrInconsistentLedger) {
		t.Fatalf("expected ErrInconsistentLedger, got %v", err)
	}

	if report.Violations[0].Rule != domain.RuleNextVersion {
		t.Errorf("expected %s, got %s", domain.RuleNextVersion, report.Violations[0].Rule)
	}
}

func TestLedgerUseCase_CheckConsistency_ReaderError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	history := mocks.NewMockHistoryReader(ctrl)
	history.EXPECT().ListCurrent(gomock.Any(), gomock.Any(), 0).Return(nil, domain.ErrUnavailable)

	_, err := usecase.NewLedgerUseCase(history).CheckConsistency(context.Background())
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestLedgerUseCase_CheckConsistency_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	history := mocks.NewMockHistoryReader(ctrl)
	history.EXPECT().ListCurrent(gomock.Any(), gomock.Any(), 0).Return(nil, nil)

	report, err := usecase.NewLedgerUseCase(history).CheckConsistency(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Consistent || report.Balances != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.CheckedAt.IsZero() {
		t.Error("expected CheckedAt to be set")
	}
}
