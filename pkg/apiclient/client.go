// Package apiclient provides a Go client for the restyle API, including a
// recurring poller that watches generations until none remain processing.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBaseURLRequired is returned when no API base URL is provided.
var ErrBaseURLRequired = errors.New("apiclient: base URL is required")

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apiclient: %d %s (%s)", e.StatusCode, e.Message, e.Code)
}

// Generation is the client-side view of a generation record.
type Generation struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	SourceURL   string    `json:"sourceUrl"`
	ResultURL   string    `json:"resultUrl,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
	AspectRatio string    `json:"aspectRatio,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsProcessing returns true while the generation has no terminal outcome.
func (g Generation) IsProcessing() bool {
	return g.Status == "processing"
}

// SubmitParams are the parameters for submitting a generation.
type SubmitParams struct {
	Prompt       string `json:"prompt"`
	SourceURL    string `json:"sourceUrl"`
	GenerationID string `json:"generationId,omitempty"`
	AspectRatio  string `json:"aspectRatio,omitempty"`
}

// SubmitResult is the response to a successful submission.
type SubmitResult struct {
	GenerationID string `json:"generationId"`
	RequestID    string `json:"requestId"`
}

// UploadParams are the parameters for registering a reference video.
type UploadParams struct {
	VideoURL string `json:"videoUrl"`
	Prompt   string `json:"prompt"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// StatusResult is the response to a direct status query.
type StatusResult struct {
	Status   string          `json:"status"`
	Progress float64         `json:"progress"`
	Error    string          `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Client is an HTTP client for the restyle API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Upload registers a reference video and returns the created generation.
func (c *Client) Upload(ctx context.Context, params UploadParams) (Generation, error) {
	var resp struct {
		Generation Generation `json:"generation"`
	}
	if err := c.do(ctx, http.MethodPost, "/uploads", params, &resp); err != nil {
		return Generation{}, err
	}
	return resp.Generation, nil
}

// Submit sends a generation request.
func (c *Client) Submit(ctx context.Context, params SubmitParams) (SubmitResult, error) {
	var resp SubmitResult
	if err := c.do(ctx, http.MethodPost, "/jobs", params, &resp); err != nil {
		return SubmitResult{}, err
	}
	return resp, nil
}

// List returns the caller's generations, most recently updated first.
func (c *Client) List(ctx context.Context) ([]Generation, error) {
	var resp struct {
		Generations []Generation `json:"generations"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Generations, nil
}

// Status queries the generation service's raw status for a request handle.
func (c *Client) Status(ctx context.Context, requestID string) (StatusResult, error) {
	var resp StatusResult
	body := map[string]string{"requestId": requestID}
	if err := c.do(ctx, http.MethodPost, "/jobs/status", body, &resp); err != nil {
		return StatusResult{}, err
	}
	return resp, nil
}

// Delete removes a generation by ID.
func (c *Client) Delete(ctx context.Context, generationID string) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+generationID, nil, nil)
}

// do performs a single API request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("apiclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apiclient: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var envelope struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
			apiErr.Code = envelope.Code
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("apiclient: unmarshal response: %w", err)
		}
	}
	return nil
}
