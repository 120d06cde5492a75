package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(PolicyForAttempts(3, 0), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(PolicyForAttempts(3, 0), zap.NewNop())

	callCount := 0
	testErr := errors.New("temporary error")
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return testErr
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	retryer := NewBackoffRetryer(PolicyForAttempts(3, 0), zap.NewNop())

	callCount := 0
	testErr := errors.New("persistent error")
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return testErr
	})

	require.Error(t, err)
	assert.Equal(t, 3, callCount, "总共尝试 3 次")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, testErr)
	assert.True(t, IsExhausted(err))
}

func TestBackoffRetryer_SingleAttempt(t *testing.T) {
	retryer := NewBackoffRetryer(PolicyForAttempts(0, 0), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return errors.New("boom")
	})

	assert.True(t, IsExhausted(err))
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_ContextCanceled(t *testing.T) {
	retryer := NewBackoffRetryer(PolicyForAttempts(5, 50*time.Millisecond), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		cancel()
		return errors.New("error")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsExhausted(err))
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_ShouldRetry(t *testing.T) {
	fatal := errors.New("fatal")
	policy := PolicyForAttempts(3, 0)
	policy.ShouldRetry = func(err error) bool { return !errors.Is(err, fatal) }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return fatal
	})

	assert.Equal(t, 1, callCount, "不可重试错误只调用一次")
	assert.ErrorIs(t, err, fatal)
	assert.False(t, IsExhausted(err))
}

func TestBackoffRetryer_DelayCalculation(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}, nil).(*backoffRetryer)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 1*time.Second, r.calculateDelay(10), "不超过最大延迟")
}

func TestBackoffRetryer_ZeroDelayIsImmediate(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{MaxRetries: 2, Jitter: true}, nil).(*backoffRetryer)
	assert.Equal(t, time.Duration(0), r.calculateDelay(1))
	assert.Equal(t, time.Duration(0), r.calculateDelay(5))
}

func TestBackoffRetryer_PolicyNotMutated(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: -1, Multiplier: 0}
	NewBackoffRetryer(policy, nil)
	assert.Equal(t, -1, policy.MaxRetries)
	assert.Equal(t, 0.0, policy.Multiplier)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	var attempts []int
	policy := PolicyForAttempts(3, 0)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.Equal(t, time.Duration(0), delay)
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	_ = retryer.Do(context.Background(), func() error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestValue_Success(t *testing.T) {
	retryer := NewBackoffRetryer(PolicyForAttempts(3, 0), nil)
	val, err := Value(retryer, context.Background(), func() (string, error) {
		return "prompt", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "prompt", val)
}

func TestValue_RetryThenSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(PolicyForAttempts(3, 0), nil)
	calls := 0
	val, err := Value(retryer, context.Background(), func() ([]string, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("malformed")
		}
		return []string{"a", "b"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, val)
	assert.Equal(t, 2, calls)
}

func TestValue_Error(t *testing.T) {
	retryer := NewBackoffRetryer(PolicyForAttempts(2, 0), nil)
	val, err := Value(retryer, context.Background(), func() (int, error) {
		return 7, errors.New("fail")
	})
	assert.True(t, IsExhausted(err))
	assert.Equal(t, 0, val)
}
