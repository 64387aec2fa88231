package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/balanceledger/internal/adapter/http/dto"
	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/usecase"
)

// BalanceHandler handles balance HTTP requests.
type BalanceHandler struct {
	balanceUC *usecase.BalanceUseCase
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balanceUC *usecase.BalanceUseCase) *BalanceHandler {
	return &BalanceHandler{balanceUC: balanceUC}
}

// Create handles POST /balances.
func (h *BalanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}

	record, err := h.balanceUC.CreateAccount(r.Context(), req.ToUseCaseInput())
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.BalanceFromDomain(record))
}

// Get handles GET /balances/{id}.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.balanceUC.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceFromDomain(record))
}

// List handles GET /balances.
func (h *BalanceHandler) List(w http.ResponseWriter, r *http.Request) {
	input := usecase.ListBalancesInput{
		Limit:  parseIntQuery(r, "limit", domain.DefaultPageSize),
		Offset: parseIntQuery(r, "offset", 0),
	}

	records, err := h.balanceUC.ListBalances(r.Context(), input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	writeJSON(w, http.StatusOK, dto.ListResponse{
		Data:   dto.BalancesFromDomain(records),
		Limit:  limit,
		Offset: offset,
	})
}

// History handles GET /balances/{id}/history.
func (h *BalanceHandler) History(w http.ResponseWriter, r *http.Request) {
	input := usecase.GetHistoryInput{
		AccountID: chi.URLParam(r, "id"),
		Limit:     parseIntQuery(r, "limit", domain.DefaultPageSize),
		Offset:    parseIntQuery(r, "offset", 0),
	}

	versions, err := h.balanceUC.GetHistory(r.Context(), input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	writeJSON(w, http.StatusOK, dto.ListResponse{
		Data:   dto.BalancesFromDomain(versions),
		Limit:  limit,
		Offset: offset,
	})
}

// Deposit handles POST /balances/{id}/deposit.
func (h *BalanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.AmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}

	record, err := h.balanceUC.Deposit(r.Context(), req.ToDepositInput(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.BalanceFromDomain(record))
}

// Withdraw handles POST /balances/{id}/withdraw.
func (h *BalanceHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.AmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}

	record, err := h.balanceUC.Withdraw(r.Context(), req.ToWithdrawInput(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.BalanceFromDomain(record))
}

// Commands handles GET /commands.
func (h *BalanceHandler) Commands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.CommandsFromDomain(h.balanceUC.Commands()))
}
