package retry

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds the configuration for retry logic
type Config struct {
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple" json:"backoff_multiple"`
}

// DefaultConfig returns a sensible default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// ErrorChecker reports whether a failed attempt should be retried
type ErrorChecker func(err error, statusCode int) bool

// Options configures retry behavior
type Options struct {
	Config       Config
	ErrorChecker ErrorChecker
	Logger       *zap.Logger
	Service      string
}

// calculateDelay computes the delay for the given attempt using exponential backoff
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(attempt)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// RetryableStatus retries network errors, 429 and 5xx responses
func RetryableStatus(err error, statusCode int) bool {
	if err != nil && statusCode == 0 {
		return true
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// Do runs fn until it succeeds, returns a non-retryable failure, or retries
// are exhausted. fn returns its result, the transport status code (0 if none)
// and an error.
func Do[T any](ctx context.Context, opts Options, fn func(attempt int) (T, int, error)) (T, error) {
	var zero T
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	var lastStatusCode int
	for attempt := 0; attempt <= opts.Config.MaxRetries; attempt++ {
		// Add delay before retry (but not on first attempt)
		if attempt > 0 {
			delay := opts.Config.calculateDelay(attempt - 1)
			logger.Debug("retrying",
				zap.String("service", opts.Service),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", opts.Config.MaxRetries+1),
				zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, statusCode, err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				logger.Debug("request succeeded after retry",
					zap.String("service", opts.Service),
					zap.Int("attempt", attempt+1))
			}
			return result, nil
		}
		lastErr = err
		lastStatusCode = statusCode

		if opts.ErrorChecker == nil || !opts.ErrorChecker(err, statusCode) {
			return zero, err
		}

		logger.Warn("retryable failure",
			zap.String("service", opts.Service),
			zap.Int("attempt", attempt+1),
			zap.Int("status", statusCode),
			zap.Error(err))
	}

	return zero, &RetryExhaustedError{
		Service:        opts.Service,
		MaxAttempts:    opts.Config.MaxRetries + 1,
		LastStatusCode: lastStatusCode,
		Err:            lastErr,
	}
}

// RetryExhaustedError represents an error when all retry attempts have been exhausted
type RetryExhaustedError struct {
	Service        string
	MaxAttempts    int
	LastStatusCode int
	Err            error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts exhausted (last status %d): %v", e.Service, e.MaxAttempts, e.LastStatusCode, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
