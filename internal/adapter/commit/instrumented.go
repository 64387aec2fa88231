package commit

import (
	"context"
	"errors"
	"time"

	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/infrastructure/metrics"
	"github.com/iho/balanceledger/internal/usecase"
)

// Submission outcomes used as metric labels.
const (
	OutcomeAccepted    = "accepted"
	OutcomeConflict    = "conflict"
	OutcomeRejected    = "rejected"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
	OutcomeCancelled   = "cancelled"
	OutcomeError       = "error"
)

// InstrumentedAuthority records submission counts, latency and amounts.
type InstrumentedAuthority struct {
	next    usecase.CommitAuthority
	metrics *metrics.Metrics
}

// NewInstrumentedAuthority wraps next with metrics. m may be nil, in which
// case submissions pass through unrecorded.
func NewInstrumentedAuthority(next usecase.CommitAuthority, m *metrics.Metrics) *InstrumentedAuthority {
	return &InstrumentedAuthority{next: next, metrics: m}
}

// Submit implements usecase.CommitAuthority.
func (a *InstrumentedAuthority) Submit(ctx context.Context, t *domain.Transition) (*domain.BalanceRecord, error) {
	start := time.Now()
	command := t.Command.String()

	committed, err := a.next.Submit(ctx, t)
	if a.metrics == nil {
		return committed, err
	}

	a.metrics.SubmitDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	a.metrics.TransitionsSubmitted.WithLabelValues(command, Outcome(err)).Inc()

	if err == nil && t.Command != domain.CommandCreate {
		amount, _ := t.Amount().Float64()
		a.metrics.TransitionAmount.WithLabelValues(command).Observe(amount)
	}

	return committed, err
}

// Outcome classifies a submission error for metric labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, domain.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, domain.ErrRejected):
		return OutcomeRejected
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}
