package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("shard-a", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	cb := NewCircuitBreaker("shard-b", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !apperrors.IsRemote(err) },
	})
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return apperrors.Remote("too busy") })
		assert.EqualError(t, err, "too busy")
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "publish", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !apperrors.IsRemote(err) },
	}, func() error {
		calls++
		return apperrors.Remote("bad delta")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.IsRemote(err))
}

func TestRetry_EventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "publish", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = WithTimeout(context.Background(), time.Second, "fast", func(ctx context.Context) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
}

func TestRetryConfig_BackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2, JitterFraction: 0.1}
	first := cfg.Backoff(1)
	assert.GreaterOrEqual(t, first, 9*time.Millisecond)
	assert.LessOrEqual(t, first, 11*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, cfg.Backoff(10))
}

func TestRetry_AbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	retries := 0
	err := Retry(ctx, "publish", RetryConfig{
		MaxAttempts:  10,
		InitialDelay: time.Hour,
		OnRetry: func(int, error) {
			retries++
			cancel()
		},
	}, func() error { return errBoom })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, retries)
}
