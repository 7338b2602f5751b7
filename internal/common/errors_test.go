package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteError_PreservesMessage(t *testing.T) {
	err := NewRemoteError(404, "Transação não encontrada", nil)

	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Equal(t, "Transação não encontrada", RemoteMessage(err))
	assert.Contains(t, err.Error(), "status 404")

	wrapped := fmt.Errorf("review failed: %w", err)
	assert.Equal(t, "Transação não encontrada", RemoteMessage(wrapped))
}

func TestRemoteError_UnwrapsCause(t *testing.T) {
	err := NewRemoteError(401, "token expired", ErrSessionExpired)

	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, IsRetryable(err))
}

func TestRemoteMessage_NonRemote(t *testing.T) {
	assert.Equal(t, "", RemoteMessage(nil))
	assert.Equal(t, "boom", RemoteMessage(errors.New("boom")))
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "missing category", err: ErrMissingCategory, want: true},
		{name: "wrapped invalid status", err: fmt.Errorf("x: %w", ErrInvalidStatus), want: true},
		{name: "keep not in group", err: ErrKeepNotInGroup, want: true},
		{name: "remote", err: NewRemoteError(500, "down", nil), want: false},
		{name: "not found", err: ErrNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidation(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRemoteError(503, "unavailable", nil)))
	assert.True(t, IsRetryable(NewRemoteError(0, "connection refused", nil)))
	assert.False(t, IsRetryable(NewRemoteError(400, "bad request", nil)))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestWithRetry(t *testing.T) {
	opts := service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return NewRemoteError(502, "bad gateway", nil)
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return NewRemoteError(400, "bad", nil)
		}, opts)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, "bad", RemoteMessage(err))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return NewRemoteError(500, "down", nil)
		}, opts)
		require.ErrorIs(t, err, ErrMaxRetries)
		assert.ErrorIs(t, err, ErrRemoteUnavailable)
		assert.Equal(t, 3, calls)
	})
}

func TestWithRetry_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		cancel()
		return NewRemoteError(503, "busy", nil)
	}, service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	opts := retryDefaults(service.RetryOptions{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 5, want: time.Second},
		{attempt: 50, want: time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(opts, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestParseLevel(t *testing.T) {
	_, err := ParseLevel("verbose")
	require.ErrorIs(t, err, ErrInvalidConfig)

	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())
}
