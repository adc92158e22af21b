package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Outcome tells the runner how to treat one failure.
type Outcome struct {
	Retry        bool
	CountFailure bool
}

// Classifier decides retry and breaker behavior per error. A nil classifier
// treats every failure as final but counted.
type Classifier func(err error) Outcome

// Runner wraps upstream calls with retry and a per-operation circuit
// breaker. One Runner per upstream service; safe for concurrent use.
type Runner struct {
	settings Settings
	classify Classifier

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewRunner(settings Settings, classify Classifier) *Runner {
	if classify == nil {
		classify = func(error) Outcome { return Outcome{CountFailure: true} }
	}
	return &Runner{
		settings: settings.withDefaults(),
		classify: classify,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Do executes fn under the operation's breaker with retries inside.
func (r *Runner) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}

	if !r.settings.Breaker.Enabled {
		return r.withRetry(ctx, op, fn)
	}

	_, err := r.breaker(op).Execute(func() (any, error) {
		return nil, r.withRetry(ctx, op, fn)
	})
	return err
}

func (r *Runner) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	retry := r.settings.Retry
	delay := retry.BaseDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !r.classify(err).Retry || attempt == retry.Attempts {
			return err
		}

		wait := jitter(delay)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", retry.Attempts,
			"backoff", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * retry.Multiplier)
		if delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}
}

// jitter spreads concurrent retries over [delay/2, delay].
func jitter(delay time.Duration) time.Duration {
	if delay <= 1 {
		return delay
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func (r *Runner) breaker(operation string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if breaker, ok := r.breakers[operation]; ok {
		return breaker
	}

	cfg := r.settings.Breaker
	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: cfg.HalfOpenCalls,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !r.classify(err).CountFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	r.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
