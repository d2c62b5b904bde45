package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			Multiplier:   1.5,
			MaxDelay:     5 * time.Millisecond,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 2,
			Cooldown:         time.Hour,
		},
	}
}

// flakyCall fails the first n calls, then succeeds with "ok".
func flakyCall(n int32, calls *atomic.Int32) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		if calls.Add(1) <= n {
			return "", errUpstream
		}
		return "ok", nil
	}
}

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	r := NewRegistry(fastConfig(), discardLogger(), nil)
	p := r.Policy("extraction", nil)

	var calls atomic.Int32
	got, err := Execute(context.Background(), p, flakyCall(2, &calls))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "closed", p.State())
}

func TestExecuteExhaustsRetriesThenTripsBreaker(t *testing.T) {
	t.Parallel()

	r := NewRegistry(fastConfig(), discardLogger(), nil)
	p := r.Policy("extraction", nil)
	ctx := context.Background()

	var calls atomic.Int32
	alwaysFail := flakyCall(1000, &calls)

	for i := 0; i < 2; i++ {
		_, err := Execute(ctx, p, alwaysFail)
		require.Error(t, err)

		var ae *AttemptsError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 3, ae.Attempts)
		assert.Equal(t, ClassTransient, ae.Class)
		assert.ErrorIs(t, err, errUpstream)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, int32(6), calls.Load(), "each call makes exactly max_attempts attempts")
	assert.Equal(t, "open", p.State())

	_, err := Execute(ctx, p, alwaysFail)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(6), calls.Load(), "open breaker does not invoke the function")
}

func TestExecutePermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	r := NewRegistry(fastConfig(), discardLogger(), nil)
	p := r.Policy("extraction", nil)

	var calls atomic.Int32
	invalid := func(context.Context) (int, error) {
		calls.Add(1)
		return 0, Permanent(errors.New("schema mismatch"))
	}

	for i := 0; i < 5; i++ {
		_, err := Execute(context.Background(), p, invalid)
		var ae *AttemptsError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 1, ae.Attempts)
		assert.Equal(t, ClassPermanent, ae.Class)
		assert.True(t, IsPermanent(err))
	}
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, "closed", p.State(), "permanent failures do not trip the breaker")
}

func TestExecuteCustomClassifier(t *testing.T) {
	t.Parallel()

	errNotFound := errors.New("not found")
	classify := func(err error) Class {
		if errors.Is(err, errNotFound) {
			return ClassPermanent
		}
		return DefaultClassifier(err)
	}

	r := NewRegistry(fastConfig(), discardLogger(), nil)
	p := r.Policy("jobstore.read", classify)

	var calls atomic.Int32
	_, err := Execute(context.Background(), p, func(context.Context) (string, error) {
		calls.Add(1)
		return "", errNotFound
	})
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteAttemptTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Retry.AttemptTimeout = 5 * time.Millisecond
	r := NewRegistry(cfg, discardLogger(), nil)
	p := r.Policy("slow", nil)

	var calls atomic.Int32
	got, err := Execute(context.Background(), p, func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fast", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "fast", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecuteHalfOpenProbe(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.Cooldown = 20 * time.Millisecond
	r := NewRegistry(cfg, discardLogger(), nil)
	p := r.Policy("probe", nil)
	ctx := context.Background()

	_, err := Execute(ctx, p, func(context.Context) (int, error) { return 0, errUpstream })
	require.Error(t, err)
	require.Equal(t, "open", p.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, "half-open", p.State())

	got, err := Execute(ctx, p, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, "closed", p.State())
}

func TestExecuteFailureRatioTrips(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.FailureThreshold = 100
	cfg.Breaker.FailureRatio = 0.5
	cfg.Breaker.MinRequests = 4
	cfg.Breaker.Window = time.Minute
	r := NewRegistry(cfg, discardLogger(), nil)
	p := r.Policy("ratio", nil)
	ctx := context.Background()

	ok := func(context.Context) (int, error) { return 1, nil }
	fail := func(context.Context) (int, error) { return 0, errUpstream }

	_, _ = Execute(ctx, p, ok)
	_, _ = Execute(ctx, p, fail)
	_, _ = Execute(ctx, p, ok)
	assert.Equal(t, "closed", p.State(), "below the minimum sample size")

	_, _ = Execute(ctx, p, fail)
	assert.Equal(t, "open", p.State())
}

func TestExecuteWithFallback(t *testing.T) {
	t.Parallel()

	r := NewRegistry(fastConfig(), discardLogger(), nil)
	p := r.Policy("jobstore.list", nil)
	ctx := context.Background()

	fail := func(context.Context) ([]string, error) { return nil, errUpstream }
	fallback := []string{}

	got := ExecuteWithFallback(ctx, p, fail, fallback)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	// Breaker now open after two failed calls; fallback still served.
	_ = ExecuteWithFallback(ctx, p, fail, fallback)
	require.Equal(t, "open", p.State())
	got = ExecuteWithFallback(ctx, p, fail, fallback)
	assert.Empty(t, got)

	q := r.Policy("other", nil)
	got = ExecuteWithFallback(ctx, q, func(context.Context) ([]string, error) {
		return []string{"a"}, nil
	}, fallback)
	assert.Equal(t, []string{"a"}, got)
}

func TestExecuteCancelledContext(t *testing.T) {
	t.Parallel()

	r := NewRegistry(fastConfig(), discardLogger(), nil)
	p := r.Policy("cancel", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	_, err := Execute(ctx, p, func(context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, "closed", p.State())
}

func TestBackoffSchedule(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().Retry
	cfg.MaxAttempts = 12
	b := cfg.backoff()

	want := []time.Duration{
		300 * time.Millisecond,
		450 * time.Millisecond,
		675 * time.Millisecond,
		1012500 * time.Microsecond,
	}
	for i, w := range want {
		d, stop := b.Next()
		require.False(t, stop)
		assert.Equal(t, w, d, "delay %d", i)
	}

	var last time.Duration
	for i := len(want); i < 11; i++ {
		d, stop := b.Next()
		require.False(t, stop)
		assert.LessOrEqual(t, d, 10*time.Second)
		last = d
	}
	assert.Equal(t, 10*time.Second, last, "delay is capped")

	_, stop := b.Next()
	assert.True(t, stop, "stops after max_attempts-1 retries")
}

func TestBackoffSingleAttempt(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().Retry
	cfg.MaxAttempts = 1
	_, stop := cfg.backoff().Next()
	assert.True(t, stop)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Config{}, nil, nil)
	assert.Equal(t, DefaultConfig().Retry.MaxAttempts, r.Config().Retry.MaxAttempts)

	a := r.Policy("extraction", nil)
	b := r.Policy("extraction", nil)
	assert.Same(t, a, b)
	assert.Equal(t, "extraction", a.Name())

	r.Policy("jobstore.read", nil)
	assert.Equal(t, map[string]string{"extraction": "closed", "jobstore.read": "closed"}, r.States())

	r.Reset()
	assert.Same(t, a, r.Policy("extraction", nil))
	assert.Len(t, r.States(), 2)
}

func TestRegistryResetClosesHeldPolicies(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.FailureThreshold = 1
	r := NewRegistry(cfg, discardLogger(), nil)
	p := r.Policy("extraction", nil)

	var calls atomic.Int32
	_, err := Execute(context.Background(), p, flakyCall(1, &calls))
	require.Error(t, err)
	require.Equal(t, "open", p.State())

	_, err = Execute(context.Background(), p, flakyCall(0, &calls))
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, int32(1), calls.Load())

	r.Reset()
	assert.Equal(t, map[string]string{"extraction": "closed"}, r.States())

	got, err := Execute(context.Background(), p, flakyCall(0, &calls))
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistryConcurrentPolicy(t *testing.T) {
	t.Parallel()

	r := NewRegistry(fastConfig(), discardLogger(), nil)

	var wg sync.WaitGroup
	got := make([]*Policy, 32)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Policy("shared", nil)
		}(i)
	}
	wg.Wait()

	for _, p := range got {
		assert.Same(t, got[0], p)
	}
}

func TestDefaultClassifier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ClassTransient, DefaultClassifier(errUpstream))
	assert.Equal(t, ClassTransient, DefaultClassifier(context.DeadlineExceeded))
	assert.Equal(t, ClassPermanent, DefaultClassifier(context.Canceled))
	assert.Equal(t, ClassPermanent, DefaultClassifier(Permanent(errUpstream)))
	assert.Equal(t, ClassTransient, DefaultClassifier(Transient(context.Canceled)))
	assert.Nil(t, Permanent(nil))
	assert.Nil(t, Transient(nil))
	assert.Equal(t, "permanent", ClassPermanent.String())
	assert.Equal(t, "transient", ClassTransient.String())
}
