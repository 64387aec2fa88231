// Package commit decorates a commit authority with a circuit breaker and
// Prometheus instrumentation.
package commit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/infrastructure/metrics"
	"github.com/iho/balanceledger/internal/usecase"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	Name string
	// MaxRequests is the number of trial submissions allowed while half-open.
	MaxRequests uint32
	// Interval is the cyclic period after which closed-state counts reset.
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "commit-authority",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerAuthority fails fast with domain.ErrUnavailable once the wrapped
// authority keeps reporting it is unavailable. Conflicts, rejections and
// validation failures are outcomes, not failures, and never trip it.
type BreakerAuthority struct {
	next    usecase.CommitAuthority
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerAuthority wraps next with a circuit breaker. m may be nil.
func NewBreakerAuthority(next usecase.CommitAuthority, cfg BreakerConfig, m *metrics.Metrics) *BreakerAuthority {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(stateValue(to))
			}
		},
	}

	if m != nil {
		m.BreakerState.WithLabelValues(cfg.Name).Set(stateValue(gobreaker.StateClosed))
	}

	return &BreakerAuthority{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Submit implements usecase.CommitAuthority.
func (b *BreakerAuthority) Submit(ctx context.Context, t *domain.Transition) (*domain.BalanceRecord, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Submit(ctx, t)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: commit authority circuit %s: %w", domain.ErrUnavailable, b.breaker.Name(), err)
		}
		return nil, err
	}

	return result.(*domain.BalanceRecord), nil
}

// State reports the breaker state.
func (b *BreakerAuthority) State() gobreaker.State {
	return b.breaker.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
