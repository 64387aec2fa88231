package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/balanceledger/internal/adapter/http/dto"
	"github.com/iho/balanceledger/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/balances?limit=50", nil)
	assert.Equal(t, 50, parseIntQuery(req, "limit", 10))

	req = httptest.NewRequest(http.MethodGet, "/balances?limit=invalid", nil)
	assert.Equal(t, 10, parseIntQuery(req, "limit", 10))

	req.URL = &url.URL{RawQuery: ""}
	assert.Equal(t, 25, parseIntQuery(req, "limit", 25))
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid argument", fmt.Errorf("%w: bad currency", domain.ErrInvalidArgument), http.StatusBadRequest},
		{"validation failed", &domain.ValidationError{Command: domain.CommandWithdraw, Rule: domain.RuleNonNegativeBalance}, http.StatusUnprocessableEntity},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"conflict", domain.ErrConflict, http.StatusConflict},
		{"rejected", domain.ErrRejected, http.StatusForbidden},
		{"unavailable", fmt.Errorf("%w: dial tcp", domain.ErrUnavailable), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mapDomainError(tt.err))
		})
	}
}

func TestRespondErrorIncludesRule(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/balances/acc-1/withdraw", nil)

	respondError(rr, req, &domain.ValidationError{
		Command: domain.CommandWithdraw,
		Rule:    domain.RuleNonNegativeBalance,
		Reason:  "balance would become negative",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Equal(t, domain.RuleNonNegativeBalance, resp.Rule)
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeError(rr, http.StatusBadRequest, "invalid_argument", "invalid request body")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "invalid request body", resp.Message)
}
