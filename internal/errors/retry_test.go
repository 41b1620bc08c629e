package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("still down")
	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		calls++
		return boom
	})

	require.Error(t, err)
	// initial attempt + 2 retries
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, boom))
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   1.0,
	}
	err := Retry(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(2), func() ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("cold start")
		}
		return []float32{0.1, 0.2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, got)
	assert.Equal(t, 2, calls)
}

func TestEmbedRetryConfig_ExactlyOneFastRetry(t *testing.T) {
	cfg := EmbedRetryConfig()
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.LessOrEqual(t, cfg.InitialDelay, 250*time.Millisecond)

	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func() ([]float32, error) {
		calls++
		return nil, errors.New("embedder down")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}
