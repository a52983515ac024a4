package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions(maxRetries int) Options {
	return Options{
		Config: Config{
			MaxRetries:      maxRetries,
			BaseDelay:       time.Millisecond,
			MaxDelay:        2 * time.Millisecond,
			BackoffMultiple: 2,
		},
		ErrorChecker: RetryableStatus,
		Service:      "test",
	}
}

func TestDo_SucceedsAfterRetryableFailures(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), fastOptions(3), func(attempt int) (float64, int, error) {
		attempts++
		if attempt < 2 {
			return 0, http.StatusServiceUnavailable, errors.New("unavailable")
		}
		return 0.75, http.StatusOK, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0.75, got)
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	attempts := 0
	badRequest := errors.New("bad request")
	_, err := Do(context.Background(), fastOptions(3), func(attempt int) (float64, int, error) {
		attempts++
		return 0, http.StatusBadRequest, badRequest
	})

	assert.ErrorIs(t, err, badRequest)
	assert.Equal(t, 1, attempts)
}

func TestDo_Exhausted(t *testing.T) {
	netErr := errors.New("connection refused")
	_, err := Do(context.Background(), fastOptions(2), func(attempt int) (float64, int, error) {
		return 0, 0, netErr
	})

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.MaxAttempts)
	assert.ErrorIs(t, err, netErr)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := fastOptions(3)
	opts.Config.BaseDelay = time.Hour
	opts.Config.MaxDelay = time.Hour

	_, err := Do(ctx, opts, func(attempt int) (float64, int, error) {
		cancel()
		return 0, http.StatusTooManyRequests, errors.New("slow down")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_CalculateDelay(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, 200*time.Millisecond, c.calculateDelay(0))
	assert.Equal(t, 400*time.Millisecond, c.calculateDelay(1))
	assert.Equal(t, 5*time.Second, c.calculateDelay(10))
}

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   bool
	}{
		{name: "network error", err: errors.New("reset"), status: 0, want: true},
		{name: "rate limited", err: errors.New("429"), status: http.StatusTooManyRequests, want: true},
		{name: "server error", err: errors.New("500"), status: http.StatusInternalServerError, want: true},
		{name: "client error", err: errors.New("400"), status: http.StatusBadRequest, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryableStatus(tt.err, tt.status))
		})
	}
}
