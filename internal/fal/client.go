package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Static errors for fal client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is configured and the
	// FAL_API_KEY environment variable is not set.
	ErrAPIKeyNotSet = errors.New("fal: FAL_API_KEY environment variable is not set")
	// ErrModelRequired is returned when the model identifier is not provided.
	ErrModelRequired = errors.New("fal: model is required")
	// ErrRequestIDRequired is returned when the request ID is not provided.
	ErrRequestIDRequired = errors.New("fal: request ID is required")
	// ErrNoRequestIDReturned is returned when the submit response carries no request ID.
	ErrNoRequestIDReturned = errors.New("fal: submit failed: no request ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("fal: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("fal: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("fal: rate limited")
)

// UpstreamError is returned when the service rejects a request with a
// non-2xx status. The status code is preserved so handlers can pass it
// through to the caller.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fal: request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client defines the interface for interacting with the generation service.
type Client interface {
	// Submit enqueues a restyle request and returns the service's request ID.
	Submit(ctx context.Context, input SubmitInput) (requestID string, err error)

	// Status queries the current status of a request by its ID.
	Status(ctx context.Context, requestID string) (StatusResult, error)
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the queue API.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = u
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new fal queue HTTP client for the given model.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable FAL_API_KEY.
func NewClient(model string, opts ...ClientOption) (*HTTPClient, error) {
	if model == "" {
		return nil, ErrModelRequired
	}

	c := &HTTPClient{
		model:       model,
		baseURL:     "https://queue.fal.run",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("FAL_API_KEY")
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Submit enqueues a restyle request and returns the service's request ID.
// The completion notification is delivered to input.WebhookURL.
func (c *HTTPClient) Submit(ctx context.Context, input SubmitInput) (string, error) {
	if input.AspectRatio == "" {
		input.AspectRatio = defaultAspectRatio
	}

	reqBody := submitRequest{
		Prompt:              input.Prompt,
		VideoURL:            input.VideoURL,
		NumInferenceSteps:   numInferenceSteps,
		AspectRatio:         input.AspectRatio,
		Resolution:          resolution,
		EnableSafetyChecker: enableSafetyChecker,
		Strength:            strength,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("fal: marshal request: %w", err)
	}

	submitURL := fmt.Sprintf("%s/%s", c.baseURL, c.model)
	if input.WebhookURL != "" {
		submitURL += "?fal_webhook=" + url.QueryEscape(input.WebhookURL)
	}

	var resp submitResponse
	if _, err := c.doRequestWithRetry(ctx, http.MethodPost, submitURL, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.RequestID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoRequestIDReturned
	}

	return resp.RequestID, nil
}

// Status queries the current status of a request by its ID.
func (c *HTTPClient) Status(ctx context.Context, requestID string) (StatusResult, error) {
	if requestID == "" {
		return StatusResult{}, ErrRequestIDRequired
	}

	statusURL := fmt.Sprintf("%s/%s/requests/%s/status?logs=1", c.baseURL, c.model, requestID)

	var resp statusResponse
	raw, err := c.doRequestWithRetry(ctx, http.MethodGet, statusURL, nil, &resp)
	if err != nil {
		return StatusResult{}, err
	}

	result := StatusResult{
		Status: NormalizeStatus(resp.Status),
		Result: resp.Result,
		Error:  resp.Error,
		Raw:    raw,
	}
	if resp.Logs != nil {
		result.Progress = resp.Logs.Progress
	}

	return result, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
// Returns the raw response body of the successful attempt.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, reqURL string, body []byte, result interface{}) ([]byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fal: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		raw, err := c.doRequest(ctx, method, reqURL, body, result)
		if err == nil {
			return raw, nil
		}

		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("fal: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, reqURL string, body []byte, result interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("fal: create request: %w", err)
	}

	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("fal: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("fal: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 5xx errors are retryable
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		// 429 (rate limit) is retryable
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		// Other errors carry the upstream status for pass-through
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("fal: unmarshal response: %w", err)
		}
	}

	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
