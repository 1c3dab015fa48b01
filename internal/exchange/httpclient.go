package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"
)

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// HTTPClient wraps http.Client with request pacing and retries on
// network errors, 5xx and 429 responses.
type HTTPClient struct {
	client   *http.Client
	limiter  *rate.Limiter
	pipeline failsafe.Executor[*http.Response]
}

// HTTPOptions tunes HTTPClient.
type HTTPOptions struct {
	Timeout        time.Duration
	RequestsPerSec float64
	RetryAttempts  int
	RetryInitial   time.Duration
}

// NewHTTPClient creates a client with the given resilience settings.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 200 * time.Millisecond
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
		burst = int(opts.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
	}

	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		WithBackoff(opts.RetryInitial, 10*opts.RetryInitial).
		WithMaxRetries(opts.RetryAttempts).
		Build()

	return &HTTPClient{
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, burst),
		pipeline: failsafe.With[*http.Response](retryPolicy),
	}
}

// Do executes the request built by newReq, rebuilding it for every attempt so
// request bodies can be re-sent. It returns the body of a 2xx response.
func (c *HTTPClient) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	resp, err := c.pipeline.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if retryable(resp.StatusCode) {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}
