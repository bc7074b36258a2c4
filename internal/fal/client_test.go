package fal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresModel(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrModelRequired)
}

func TestNewClient_KeyFromEnv(t *testing.T) {
	t.Setenv("FAL_API_KEY", "env-key")

	client, err := NewClient("fal-ai/hunyuan-video/video-to-video")
	require.NoError(t, err)
	assert.Equal(t, "env-key", client.apiKey)
	assert.Equal(t, "https://queue.fal.run", client.baseURL)
}

func TestNewClient_KeyFromOption(t *testing.T) {
	client, err := NewClient("fal-ai/hunyuan-video/video-to-video", WithAPIKey("option-key"))
	require.NoError(t, err)
	assert.Equal(t, "option-key", client.apiKey)
}

func TestNewClient_RequiresKey(t *testing.T) {
	os.Unsetenv("FAL_API_KEY")
	_, err := NewClient("fal-ai/hunyuan-video/video-to-video")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestHTTPClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fal-ai/test-model", r.URL.Path)
		assert.Equal(t, "Key test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "https://api.example.com/jobs/webhook", r.URL.Query().Get("fal_webhook"))

		var req submitRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)

		assert.Equal(t, "make it anime", req.Prompt)
		assert.Equal(t, "https://cdn.example.com/ref.mp4", req.VideoURL)
		assert.Equal(t, "9:16", req.AspectRatio)
		assert.Equal(t, 30, req.NumInferenceSteps)
		assert.Equal(t, "720p", req.Resolution)
		assert.True(t, req.EnableSafetyChecker)
		assert.InDelta(t, 0.85, req.Strength, 0.001)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(submitResponse{RequestID: "req-123"})
	}))
	defer server.Close()

	client, err := NewClient("fal-ai/test-model", WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	requestID, err := client.Submit(context.Background(), SubmitInput{
		Prompt:      "make it anime",
		VideoURL:    "https://cdn.example.com/ref.mp4",
		AspectRatio: "9:16",
		WebhookURL:  "https://api.example.com/jobs/webhook",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-123", requestID)
}

func TestHTTPClient_Submit_DefaultAspectRatio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "16:9", req.AspectRatio)
		_ = json.NewEncoder(w).Encode(submitResponse{RequestID: "req-123"})
	}))
	defer server.Close()

	client, err := NewClient("fal-ai/test-model", WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), SubmitInput{
		Prompt:   "prompt",
		VideoURL: "https://cdn.example.com/ref.mp4",
	})
	require.NoError(t, err)
}

func TestHTTPClient_Submit_NoRequestID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(submitResponse{})
	}))
	defer server.Close()

	client, err := NewClient("fal-ai/test-model", WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), SubmitInput{Prompt: "p", VideoURL: "https://x.example.com/v.mp4"})
	assert.ErrorIs(t, err, ErrNoRequestIDReturned)
}

func TestHTTPClient_Submit_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"invalid video_url"}`))
	}))
	defer server.Close()

	client, err := NewClient("fal-ai/test-model", WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), SubmitInput{Prompt: "p", VideoURL: "https://x.example.com/v.mp4"})
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusUnprocessableEntity, upstreamErr.StatusCode)
	assert.Contains(t, upstreamErr.Message, "invalid video_url")
}

func TestHTTPClient_Submit_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(submitResponse{RequestID: "req-123"})
	}))
	defer server.Close()

	client, err := NewClient("fal-ai/test-model",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithMaxRetries(3),
		WithBaseBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	requestID, err := client.Submit(context.Background(), SubmitInput{Prompt: "p", VideoURL: "https://x.example.com/v.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "req-123", requestID)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPClient_Submit_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient("fal-ai/test-model",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithMaxRetries(1),
		WithBaseBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), SubmitInput{Prompt: "p", VideoURL: "https://x.example.com/v.mp4"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestHTTPClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/fal-ai/test-model/requests/req-123/status", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("logs"))

		_, _ = w.Write([]byte(`{"status":"IN_PROGRESS","logs":{"progress":0.42}}`))
	}))
	defer server.Close()

	client, err := NewClient("fal-ai/test-model", WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	result, err := client.Status(context.Background(), "req-123")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, result.Status)
	assert.InDelta(t, 0.42, result.Progress, 0.001)
	assert.JSONEq(t, `{"status":"IN_PROGRESS","logs":{"progress":0.42}}`, string(result.Raw))
}

func TestHTTPClient_Status_RequiresRequestID(t *testing.T) {
	client, err := NewClient("fal-ai/test-model", WithAPIKey("test-key"))
	require.NoError(t, err)

	_, err = client.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrRequestIDRequired)
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]Status{
		"IN_QUEUE":    StatusQueued,
		"queued":      StatusQueued,
		"IN_PROGRESS": StatusRunning,
		"processing":  StatusRunning,
		"COMPLETED":   StatusCompleted,
		"OK":          StatusCompleted,
		"ok":          StatusCompleted,
		" Success ":   StatusCompleted,
		"FAILED":      StatusFailed,
		"error":       StatusFailed,
		"CANCELLED":   StatusFailed,
		"":            StatusUnknown,
		"banana":      StatusUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), "raw %q", raw)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusUnknown.IsTerminal())
}
