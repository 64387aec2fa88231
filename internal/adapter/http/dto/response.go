package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/usecase"
)

// BalanceResponse represents one balance version in API responses.
type BalanceResponse struct {
	ID        string          `json:"id"`
	MoneyIn   decimal.Decimal `json:"money_in"`
	MoneyOut  decimal.Decimal `json:"money_out"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Owner     string          `json:"owner"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BalanceFromDomain converts a domain record to a response.
func BalanceFromDomain(r *domain.BalanceRecord) *BalanceResponse {
	return &BalanceResponse{
		ID:        r.ID,
		MoneyIn:   r.MoneyIn,
		MoneyOut:  r.MoneyOut,
		Balance:   r.Balance(),
		Currency:  r.Currency,
		Owner:     r.Owner,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// BalancesFromDomain converts domain records to responses.
func BalancesFromDomain(records []*domain.BalanceRecord) []*BalanceResponse {
	result := make([]*BalanceResponse, len(records))
	for i, r := range records {
		result[i] = BalanceFromDomain(r)
	}
	return result
}

// ListResponse wraps a paginated list.
type ListResponse struct {
	Data   any `json:"data"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// CommandsResponse lists supported command tags.
type CommandsResponse struct {
	Commands []string `json:"commands"`
}

// CommandsFromDomain converts command tags to a response.
func CommandsFromDomain(cmds []domain.Command) *CommandsResponse {
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.String()
	}
	return &CommandsResponse{Commands: names}
}

// ViolationResponse is one failed version in a consistency report.
type ViolationResponse struct {
	BalanceID string `json:"balance_id"`
	Version   int64  `json:"version"`
	Rule      string `json:"rule"`
	Reason    string `json:"reason"`
}

// ConsistencyResponse reports the outcome of a ledger consistency check.
type ConsistencyResponse struct {
	Status     string              `json:"status"`
	Consistent bool                `json:"consistent"`
	Balances   int                 `json:"balances"`
	Versions   int                 `json:"versions"`
	Violations []ViolationResponse `json:"violations"`
	CheckedAt  time.Time           `json:"checked_at"`
}

// ConsistencyFromReport converts a consistency report to a response.
func ConsistencyFromReport(r *usecase.ConsistencyReport) *ConsistencyResponse {
	resp := &ConsistencyResponse{
		Status:     "consistent",
		Consistent: r.Consistent,
		Balances:   r.Balances,
		Versions:   r.Versions,
		Violations: make([]ViolationResponse, 0, len(r.Violations)),
		CheckedAt:  r.CheckedAt,
	}
	if !r.Consistent {
		resp.Status = "inconsistent"
	}
	for _, v := range r.Violations {
		resp.Violations = append(resp.Violations, ViolationResponse{
			BalanceID: v.BalanceID,
			Version:   v.Version,
			Rule:      v.Rule,
			Reason:    v.Reason,
		})
	}
	return resp
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Rule    string `json:"rule,omitempty"`
}
