package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"

	"github.com/medvextract/medvextract-api/internal/platform/telemetry"
)

// RetryConfig controls the retry phase of a Policy.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// Multiplier grows the delay after each attempt.
	Multiplier float64

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// JitterPercent randomizes each wait by up to ± this percentage.
	JitterPercent uint64

	// AttemptTimeout bounds a single attempt. Zero means no per-attempt bound.
	AttemptTimeout time.Duration
}

// BreakerConfig controls the circuit breaker of a Policy.
type BreakerConfig struct {
	// FailureThreshold trips the breaker after this many consecutive failures.
	FailureThreshold uint32

	// FailureRatio trips the breaker when, within Window, at least MinRequests
	// calls were made and this fraction of them failed. Zero disables it.
	FailureRatio float64

	// MinRequests is the sample size required before FailureRatio applies.
	MinRequests uint32

	// Window is the rolling period after which closed-state counts reset.
	Window time.Duration

	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
}

// Config holds the settings applied to every Policy of a Registry.
type Config struct {
	Retry   RetryConfig
	Breaker BreakerConfig
}

// DefaultConfig returns three attempts with 300ms·1.5ⁿ backoff capped at 10s,
// and a breaker that opens after five consecutive failures for 60s.
func DefaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelay:   300 * time.Millisecond,
			Multiplier:     1.5,
			MaxDelay:       10 * time.Second,
			AttemptTimeout: 60 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			FailureRatio:     0.5,
			MinRequests:      10,
			Window:           60 * time.Second,
			Cooldown:         60 * time.Second,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = d.Retry.InitialDelay
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = d.Retry.Multiplier
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if c.Retry.JitterPercent > 100 {
		c.Retry.JitterPercent = 100
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = d.Breaker.FailureThreshold
	}
	if c.Breaker.Cooldown <= 0 {
		c.Breaker.Cooldown = d.Breaker.Cooldown
	}
	return c
}

// backoff returns a fresh retry schedule: InitialDelay·Multiplierⁿ capped at
// MaxDelay, stopping after MaxAttempts-1 retries.
func (c RetryConfig) backoff() retry.Backoff {
	var n int
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(n))
		n++
		if math.IsInf(d, 0) || d > float64(c.MaxDelay) {
			return c.MaxDelay, false
		}
		return time.Duration(d), false
	})

	if c.JitterPercent > 0 {
		b = retry.WithJitterPercent(c.JitterPercent, b)
	}
	b = retry.WithCappedDuration(c.MaxDelay, b)
	return retry.WithMaxRetries(uint64(c.MaxAttempts-1), b)
}

// Policy protects one call site. Create policies through a Registry.
type Policy struct {
	name     string
	retry    RetryConfig
	breakerC BreakerConfig
	classify Classifier
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker
}

func newPolicy(name string, cfg Config, classify Classifier, logger *slog.Logger, metrics *telemetry.Metrics) *Policy {
	if classify == nil {
		classify = DefaultClassifier
	}

	p := &Policy{
		name:     name,
		retry:    cfg.Retry,
		breakerC: cfg.Breaker,
		classify: classify,
		logger:   logger.With("call_site", name),
		metrics:  metrics,
	}
	p.breaker = p.newBreaker()
	return p
}

func (p *Policy) newBreaker() *gobreaker.CircuitBreaker {
	bc := p.breakerC
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.name,
		MaxRequests: 1,
		Interval:    bc.Window,
		Timeout:     bc.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= bc.FailureThreshold {
				return true
			}
			if bc.FailureRatio <= 0 || counts.Requests < bc.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("circuit breaker state changed",
				"from", from.String(),
				"to", to.String())
			p.metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		},
		IsSuccessful: p.countsAsSuccess,
	})
}

func (p *Policy) currentBreaker() *gobreaker.CircuitBreaker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.breaker
}

// reset replaces the breaker with a closed one with empty counts. Calls
// already inside the old breaker finish against it.
func (p *Policy) reset() {
	fresh := p.newBreaker()
	p.mu.Lock()
	old := p.breaker
	p.breaker = fresh
	p.mu.Unlock()

	if from := old.State(); from != gobreaker.StateClosed {
		p.logger.Info("circuit breaker reset", "from", from.String())
	}
}

// Name returns the call-site name.
func (p *Policy) Name() string {
	return p.name
}

// State returns the breaker state: closed, half-open or open.
func (p *Policy) State() string {
	return p.currentBreaker().State().String()
}

// countsAsSuccess keeps permanent failures from tripping the breaker: the
// dependency answered, the request was bad.
func (p *Policy) countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var ae *AttemptsError
	if errors.As(err, &ae) {
		return ae.Class == ClassPermanent
	}
	return p.classify(err) == ClassPermanent
}

// Execute runs fn under p: each attempt bounded by the attempt timeout,
// transient failures retried with backoff, the whole sequence guarded by the
// breaker. It returns ErrCircuitOpen without calling fn while the breaker is
// open, and an *AttemptsError when the retry phase gives up.
func Execute[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	var result T
	start := time.Now()

	_, err := p.currentBreaker().Execute(func() (interface{}, error) {
		attempts := 0
		var lastClass Class

		err := retry.Do(ctx, p.retry.backoff(), func(ctx context.Context) error {
			attempts++
			v, err := runAttempt(ctx, p.retry.AttemptTimeout, fn)
			p.metrics.RecordAttempt(ctx, p.name, err == nil)
			if err == nil {
				result = v
				return nil
			}

			lastClass = p.classify(err)
			if lastClass == ClassPermanent {
				return err
			}
			if attempts < p.retry.MaxAttempts {
				p.logger.DebugContext(ctx, "attempt failed, retrying",
					"attempt", attempts,
					"max_attempts", p.retry.MaxAttempts,
					"error_type", fmt.Sprintf("%T", err))
			}
			return retry.RetryableError(err)
		})
		if err != nil {
			if attempts == 0 {
				lastClass = p.classify(err)
			}
			return nil, &AttemptsError{CallSite: p.name, Attempts: attempts, Class: lastClass, Err: err}
		}
		return nil, nil
	})

	p.metrics.RecordCallDuration(ctx, p.name, float64(time.Since(start).Milliseconds()))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%s: %w", p.name, ErrCircuitOpen)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// ExecuteWithFallback runs Execute and returns fallback on any failure.
func ExecuteWithFallback[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error), fallback T) T {
	v, err := Execute(ctx, p, fn)
	if err != nil {
		p.logger.WarnContext(ctx, "protected call failed, using fallback value",
			"circuit_open", errors.Is(err, ErrCircuitOpen),
			"error_type", fmt.Sprintf("%T", errors.Unwrap(err)))
		return fallback
	}
	return v
}

// runAttempt calls fn once, bounded by the attempt timeout.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
