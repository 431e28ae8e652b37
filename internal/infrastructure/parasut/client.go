package parasut

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

// maxResponseSize limits response bodies to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024

// failureClass buckets request failures for the retry policy table.
type failureClass int

const (
	classAuth failureClass = iota
	classRateLimit
	classNetwork
	classServer
	classClient
)

// retryPolicy maps a failure class to its attempt cap and backoff curve.
// Attempt numbers are 1-based.
type retryPolicy struct {
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

// retryPolicies is the policy table. Auth failures are handled separately
// (one forced refresh, one retry) and never reach this table.
var retryPolicies = map[failureClass]retryPolicy{
	classRateLimit: {
		maxAttempts: 3,
		backoff: func(attempt int) time.Duration {
			return 2 * time.Second << (attempt - 1)
		},
	},
	// Timeouts and connection resets get three extra attempts, 5xx two.
	classNetwork: {
		maxAttempts: 4,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 3 * time.Second
		},
	},
	classServer: {
		maxAttempts: 3,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 4 * time.Second
		},
	},
}

// classSentinel maps a failure class to the error callers observe after
// retries are exhausted.
func (c failureClass) sentinel() error {
	switch c {
	case classAuth:
		return invoicing.ErrProviderAuth
	case classRateLimit:
		return invoicing.ErrProviderRateLimited
	case classNetwork:
		return invoicing.ErrProviderUnavailable
	case classServer:
		return invoicing.ErrProviderServer
	default:
		return invoicing.ErrProviderRequest
	}
}

// APIError carries the HTTP status and the provider's error message verbatim.
// It unwraps to the class sentinel so errors.Is keeps working.
type APIError struct {
	StatusCode int
	Message    string
	class      error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("parasut: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("parasut: HTTP %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.class
}

// Client issues authenticated calls against the provider's resource API with
// per-failure-class retry policies. It emits no durable state of its own; the
// only side effects are the token refreshes described on TokenManager.
type Client struct {
	config     *Config
	tokens     *TokenManager
	httpClient *http.Client
	logger     *zap.Logger

	// sleep is context-aware and replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a resilient API client on top of the token manager.
func NewClient(config *Config, tokens *TokenManager, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: config,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
		sleep:  sleepCtx,
	}, nil
}

// Do performs an authenticated request with a full validity check first.
// Use for the first call of a workflow or for standalone calls.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.tokens.EnsureValid(ctx); err != nil {
		return nil, err
	}
	return c.execute(ctx, method, path, body, c.refreshOn401)
}

// DoFast performs an authenticated request without the pre-call validity
// check. A 401 still triggers one reload from the durable store and one retry,
// which covers tokens refreshed by another process mid-workflow. Correctness
// holds because the first call of every workflow goes through Do.
func (c *Client) DoFast(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.execute(ctx, method, path, body, c.reloadOn401)
}

// refreshOn401 forces a refresh grant after an unauthorized response.
func (c *Client) refreshOn401(ctx context.Context) error {
	_, err := c.tokens.Refresh(ctx)
	return err
}

// reloadOn401 only re-reads the durable store after an unauthorized response.
func (c *Client) reloadOn401(ctx context.Context) error {
	return c.tokens.LoadFromStore(ctx)
}

// execute runs the attempt loop. Retries are explicit with per-class attempt
// counters; there is no recursion.
func (c *Client) execute(ctx context.Context, method, path string, body any, on401 func(context.Context) error) ([]byte, error) {
	attempts := map[failureClass]int{}
	authRetried := false

	for {
		respBody, failure := c.attempt(ctx, method, path, body)
		if failure == nil {
			return respBody, nil
		}

		class := failure.class()

		if class == classAuth {
			if authRetried {
				return nil, failure.typed()
			}
			authRetried = true
			if err := on401(ctx); err != nil {
				return nil, err
			}
			continue
		}

		policy, retryable := retryPolicies[class]
		if !retryable {
			return nil, failure.typed()
		}

		attempts[class]++
		if attempts[class] >= policy.maxAttempts {
			return nil, failure.typed()
		}

		delay := policy.backoff(attempts[class])
		c.logger.Warn("provider request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempts[class]),
			zap.Duration("delay", delay),
			zap.Error(failure.typed()),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// requestFailure is one failed attempt, carrying enough to classify and type it.
type requestFailure struct {
	statusCode int
	message    string
	err        error
}

func (f *requestFailure) class() failureClass {
	if f.err != nil {
		return classNetwork
	}
	switch {
	case f.statusCode == http.StatusUnauthorized:
		return classAuth
	case f.statusCode == http.StatusTooManyRequests:
		return classRateLimit
	case f.statusCode >= 500:
		return classServer
	default:
		return classClient
	}
}

func (f *requestFailure) typed() error {
	class := f.class()
	if f.err != nil {
		return fmt.Errorf("%w: %v", class.sentinel(), f.err)
	}
	return &APIError{
		StatusCode: f.statusCode,
		Message:    f.message,
		class:      class.sentinel(),
	}
}

// attempt performs exactly one HTTP round trip.
func (c *Client) attempt(ctx context.Context, method, path string, body any) ([]byte, *requestFailure) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &requestFailure{err: fmt.Errorf("marshal request: %v", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, &requestFailure{err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.AccessToken())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &requestFailure{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &requestFailure{err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &requestFailure{
			statusCode: resp.StatusCode,
			message:    apiErrorMessage(respBody),
		}
	}
	return respBody, nil
}

// apiErrorMessage extracts the provider's error text, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var resp apiErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if msg := resp.message(); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(body))
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
