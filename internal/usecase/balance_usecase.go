package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/balanceledger/internal/domain"
)

// BalanceUseCase drives balance transitions from caller input to a committed
// record. It performs one fetch and one submit per transition and never retries.
type BalanceUseCase struct {
	store         RecordStore
	authority     CommitAuthority
	history       HistoryReader
	balanceIDs    IDGenerator
	transitionIDs IDGenerator
	identity      IdentityResolver
}

// NewBalanceUseCase creates a new BalanceUseCase.
func NewBalanceUseCase(
	store RecordStore,
	authority CommitAuthority,
	history HistoryReader,
	balanceIDs IDGenerator,
	transitionIDs IDGenerator,
	identity IdentityResolver,
) *BalanceUseCase {
	return &BalanceUseCase{
		store:         store,
		authority:     authority,
		history:       history,
		balanceIDs:    balanceIDs,
		transitionIDs: transitionIDs,
		identity:      identity,
	}
}

// CreateAccountInput represents input for opening a balance.
type CreateAccountInput struct {
	Currency string
}

// DepositInput represents input for a deposit.
type DepositInput struct {
	AccountID string
	Amount    decimal.Decimal
}

// WithdrawInput represents input for a withdrawal.
type WithdrawInput struct {
	AccountID string
	Amount    decimal.Decimal
}

// CreateAccount opens a zero balance in the given currency owned by the caller.
func (uc *BalanceUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.BalanceRecord, error) {
	currency := domain.NormalizeCurrency(input.Currency)
	if err := domain.ValidateCurrency(currency); err != nil {
		return nil, err
	}

	owner, err := uc.identity.Identity(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := domain.NewBalanceRecord(uc.balanceIDs.Generate(), currency, owner, now)

	return uc.commit(ctx, domain.NewTransition(uc.transitionIDs.Generate(), domain.CommandCreate, nil, record, now))
}

// Deposit adds amount to the balance's money in.
func (uc *BalanceUseCase) Deposit(ctx context.Context, input DepositInput) (*domain.BalanceRecord, error) {
	current, err := uc.prepare(ctx, input.AccountID, input.Amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := current.Deposited(input.Amount, now)

	return uc.commit(ctx, domain.NewTransition(uc.transitionIDs.Generate(), domain.CommandDeposit, current, next, now))
}

// Withdraw adds amount to the balance's money out. Overdrafts fail validation.
func (uc *BalanceUseCase) Withdraw(ctx context.Context, input WithdrawInput) (*domain.BalanceRecord, error) {
	current, err := uc.prepare(ctx, input.AccountID, input.Amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := current.Withdrawn(input.Amount, now)

	return uc.commit(ctx, domain.NewTransition(uc.transitionIDs.Generate(), domain.CommandWithdraw, current, next, now))
}

// GetBalance retrieves the current version of a balance.
func (uc *BalanceUseCase) GetBalance(ctx context.Context, id string) (*domain.BalanceRecord, error) {
	if err := domain.ValidateAccountID(id); err != nil {
		return nil, err
	}
	return uc.fetch(ctx, id)
}

// ListBalancesInput represents input for listing balances.
type ListBalancesInput struct {
	Limit  int
	Offset int
}

// ListBalances lists current balances with pagination.
func (uc *BalanceUseCase) ListBalances(ctx context.Context, input ListBalancesInput) ([]*domain.BalanceRecord, error) {
	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.history.ListCurrent(ctx, limit, offset)
}

// GetHistoryInput represents input for reading a balance's versions.
type GetHistoryInput struct {
	AccountID string
	Limit     int
	Offset    int
}

// GetHistory lists every version of a balance, newest first.
func (uc *BalanceUseCase) GetHistory(ctx context.Context, input GetHistoryInput) ([]*domain.BalanceRecord, error) {
	if err := domain.ValidateAccountID(input.AccountID); err != nil {
		return nil, err
	}

	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	versions, err := uc.history.ListVersions(ctx, input.AccountID, limit, offset)
	if err != nil {
		return nil, err
	}

	if len(versions) == 0 && offset == 0 {
		return nil, domain.ErrNotFound
	}

	return versions, nil
}

// Commands lists the transitions this ledger accepts.
func (uc *BalanceUseCase) Commands() []domain.Command {
	return append([]domain.Command(nil), domain.Commands...)
}

// prepare validates caller input before any I/O and fetches the current record.
func (uc *BalanceUseCase) prepare(ctx context.Context, id string, amount decimal.Decimal) (*domain.BalanceRecord, error) {
	if err := domain.ValidateAccountID(id); err != nil {
		return nil, err
	}

	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	return uc.fetch(ctx, id)
}

func (uc *BalanceUseCase) fetch(ctx context.Context, id string) (*domain.BalanceRecord, error) {
	current, err := uc.store.GetCurrent(ctx, id)
	if err != nil {
		return nil, classify(err)
	}

	if current == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	return current, nil
}

func (uc *BalanceUseCase) commit(ctx context.Context, transition *domain.Transition) (*domain.BalanceRecord, error) {
	if err := domain.ValidateTransition(transition); err != nil {
		return nil, err
	}

	committed, err := uc.authority.Submit(ctx, transition)
	if err != nil {
		return nil, classify(err)
	}

	return committed, nil
}

// classify keeps known errors intact and reports anything else as the
// collaborator being unavailable.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrRejected),
		errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrValidationFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
}
