package external

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `json:"max_requests"`
	Interval     time.Duration `json:"interval"`
	Timeout      time.Duration `json:"timeout"`
	MinRequests  uint32        `json:"min_requests"`
	FailureRatio float64       `json:"failure_ratio"`
}

// ResilientProvider wraps a reasoning provider with a circuit breaker. Only
// transport failures and empty responses count against the breaker; replies
// that arrive but fail to decode mean the service itself is reachable.
type ResilientProvider struct {
	provider ReasoningProvider
	breaker  *gobreaker.CircuitBreaker
}

// breakerFailure carries a failed outcome through gobreaker's error channel.
type breakerFailure struct {
	outcome Outcome
}

func (b *breakerFailure) Error() string {
	return b.outcome.Err.Error()
}

// NewResilientProvider creates a circuit-breaker protected provider
func NewResilientProvider(provider ReasoningProvider, config CircuitBreakerConfig, logger *logrus.Logger) *ResilientProvider {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.MinRequests == 0 {
		config.MinRequests = 3
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Reasoning circuit breaker changed state")
		},
	})

	return &ResilientProvider{
		provider: provider,
		breaker:  breaker,
	}
}

// Name returns the wrapped provider's name
func (r *ResilientProvider) Name() string {
	return r.provider.Name()
}

// State exposes the breaker state for health reporting
func (r *ResilientProvider) State() gobreaker.State {
	return r.breaker.State()
}

// Analyze runs the wrapped provider through the breaker
func (r *ResilientProvider) Analyze(ctx context.Context, text string) Outcome {
	var passthrough Outcome

	result, err := r.breaker.Execute(func() (interface{}, error) {
		outcome := r.provider.Analyze(ctx, text)
		switch outcome.Kind {
		case OutcomeTransportError, OutcomeEmptyResponse:
			return nil, &breakerFailure{outcome: outcome}
		default:
			passthrough = outcome
			return outcome, nil
		}
	})

	if err != nil {
		var bf *breakerFailure
		if errors.As(err, &bf) {
			return bf.outcome
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return failure(OutcomeTransportError, "reasoning service unavailable: %v", err)
		}
		return failure(OutcomeTransportError, "reasoning call failed: %v", err)
	}

	if outcome, ok := result.(Outcome); ok {
		return outcome
	}
	return passthrough
}
