package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/balanceledger/internal/usecase"
)

// CreateBalanceRequest represents a request to open a balance.
type CreateBalanceRequest struct {
	Currency string `json:"currency"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateBalanceRequest) ToUseCaseInput() usecase.CreateAccountInput {
	return usecase.CreateAccountInput{Currency: r.Currency}
}

// AmountRequest is the body of a deposit or withdrawal.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ToDepositInput converts to a deposit use case input.
func (r *AmountRequest) ToDepositInput(id string) usecase.DepositInput {
	return usecase.DepositInput{AccountID: id, Amount: r.Amount}
}

// ToWithdrawInput converts to a withdrawal use case input.
func (r *AmountRequest) ToWithdrawInput(id string) usecase.WithdrawInput {
	return usecase.WithdrawInput{AccountID: id, Amount: r.Amount}
}
