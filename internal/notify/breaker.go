package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerSink stops calling the wrapped sink after repeated failures and fails fast
// with ErrSinkUnavailable until the breaker half-opens again.
type BreakerSink struct {
	next    Sink
	breaker *gobreaker.CircuitBreaker[Result]
}

func NewBreakerSink(next Sink, cfg BreakerConfig, logger zerolog.Logger) *BreakerSink {
	settings := gobreaker.Settings{
		Name:        "notify",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &BreakerSink{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[Result](settings),
	}
}

func (s *BreakerSink) Send(ctx context.Context, msg Message) (Result, error) {
	res, err := s.breaker.Execute(func() (Result, error) {
		return s.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{Status: StatusFailed, Error: ErrSinkUnavailable.Error()}, ErrSinkUnavailable
	}
	return res, err
}

func (s *BreakerSink) State() gobreaker.State {
	return s.breaker.State()
}
