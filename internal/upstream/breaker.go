package upstream

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// Breaker guards calls to one remote service. Only 5xx responses and
// transport failures count against it; a 4xx is the caller's problem.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker returns a breaker that opens after MaxFailures consecutive failures.
func NewBreaker(name string, s BreakerSettings, log *zap.SugaredLogger) *Breaker {
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if log != nil {
				log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ue *Error
			return errors.As(err, &ue) && ue.Kind == KindUpstream && ue.StatusCode >= 400 && ue.StatusCode < 500
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(st)}
}

// Do runs fn through the breaker. An open breaker yields an upstream error
// wrapping gobreaker.ErrOpenState without calling fn.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Kind: KindUpstream, Service: b.name, Err: err}
	}
	return err
}

// State reports the breaker state, for logs and tests.
func (b *Breaker) State() string { return b.cb.State().String() }
