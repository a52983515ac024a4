// Package remote scores instances with a classifier served over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FrenchMajesty/evidence-counterfactual/internal/retry"
	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

const (
	// DefaultTimeout bounds a single scoring request
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerSecond is the sustained request rate toward the service
	DefaultRequestsPerSecond = 50
)

var (
	// ErrEmptyEndpoint is returned when no endpoint is configured
	ErrEmptyEndpoint = errors.New("remote scorer endpoint is required")

	// ErrInvalidRate is returned for a negative request rate
	ErrInvalidRate = errors.New("remote scorer request rate must be positive")
)

// Config configures the remote scorer
type Config struct {
	// Endpoint receives POST requests with a ScoreRequest body
	Endpoint string

	// APIKey is sent as a bearer token when set
	APIKey string

	// HTTPClient is used for requests. If nil, a client with DefaultTimeout is used.
	HTTPClient *http.Client

	// RequestsPerSecond limits the request rate. If 0, uses DefaultRequestsPerSecond.
	RequestsPerSecond float64

	// Retry configures retries of network errors, 429 and 5xx. If nil, uses retry.DefaultConfig.
	Retry *retry.Config

	Logger *zap.Logger
}

// ScoreRequest is the body sent to the scoring service
type ScoreRequest struct {
	Instance sparse.Vector `json:"instance"`
}

// ScoreResponse is the body returned by the scoring service
type ScoreResponse struct {
	Score *float64 `json:"score"`
	Error string   `json:"error,omitempty"`
}

// Scorer implements the counterfactual Scorer interface over HTTP
type Scorer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Options
}

// NewScorer creates a remote scorer
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	rps := cfg.RequestsPerSecond
	if rps < 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRate, rps)
	}
	if rps == 0 {
		rps = DefaultRequestsPerSecond
	}

	retryConfig := retry.DefaultConfig()
	if cfg.Retry != nil {
		retryConfig = *cfg.Retry
	}

	return &Scorer{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		retry: retry.Options{
			Config:       retryConfig,
			ErrorChecker: retry.RetryableStatus,
			Logger:       cfg.Logger,
			Service:      "remote scorer",
		},
	}, nil
}

// Score sends the instance to the service and returns its score
func (s *Scorer) Score(ctx context.Context, instance sparse.Vector) (float64, error) {
	body, err := json.Marshal(ScoreRequest{Instance: instance})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	return retry.Do(ctx, s.retry, func(attempt int) (float64, int, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, 0, err
		}
		return s.post(ctx, body)
	})
}

// post performs one request and returns the score with the response status
func (s *Scorer) post(ctx context.Context, body []byte) (float64, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed ScoreResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(data, &parsed)
		return 0, resp.StatusCode, fmt.Errorf("scoring service returned %d: %s", resp.StatusCode, parsed.Error)
	}

	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, resp.StatusCode, fmt.Errorf("failed to parse score response: %w", err)
	}
	if parsed.Score == nil {
		return 0, resp.StatusCode, fmt.Errorf("score response has no score")
	}
	return *parsed.Score, resp.StatusCode, nil
}
