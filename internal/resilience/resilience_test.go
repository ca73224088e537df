package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoValRetriesTransientErrors(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(eris.New("upstream 503"), 503)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDoValStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, eris.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors are not retried")
}

func TestDoValExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransientError(eris.New("flaky"), 500)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoValHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(5), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(eris.New("flaky"), 500)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancellation stops further attempts")
}

func TestDoValCustomShouldRetry(t *testing.T) {
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return false }

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransientError(eris.New("flaky"), 500)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("validation failed")))
	assert.True(t, IsTransient(NewTransientError(eris.New("429"), 429)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("502"), 502), "apollo: search")))
	assert.True(t, IsTransient(eris.New("read tcp: i/o timeout")))
	assert.True(t, IsTransient(eris.New("dial tcp: connection reset by peer")))
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, RetryableStatus(code), "status %d", code)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, ResetTimeout: 30 * time.Second}).
		WithNow(func() time.Time { return now })

	fail := func(ctx context.Context) error { return eris.New("boom") }

	require.Error(t, b.Execute(context.Background(), fail))
	assert.Equal(t, BreakerClosed, b.State())

	require.Error(t, b.Execute(context.Background(), fail))
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called, "open breaker must not invoke fn")
}

func TestBreakerHalfOpenProbeRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second}).
		WithNow(func() time.Time { return now })

	require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error {
		return eris.New("boom")
	}))
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(31 * time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())

	require.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	}))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: 30 * time.Second}).
		WithNow(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error {
			return eris.New("boom")
		}))
	}
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(31 * time.Second)
	require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error {
		return eris.New("still down")
	}))
	assert.Equal(t, BreakerOpen, b.State())
}
