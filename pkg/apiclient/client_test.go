package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var params SubmitParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "make it anime", params.Prompt)
		assert.Equal(t, "https://cdn.example.com/ref.mp4", params.SourceURL)

		_ = json.NewEncoder(w).Encode(SubmitResult{GenerationID: "gen-1", RequestID: "req-1"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithToken("test-token"))
	require.NoError(t, err)

	result, err := client.Submit(context.Background(), SubmitParams{
		Prompt:    "make it anime",
		SourceURL: "https://cdn.example.com/ref.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "gen-1", result.GenerationID)
	assert.Equal(t, "req-1", result.RequestID)
}

func TestClient_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uploads", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"generation":{"id":"gen-1","status":"processing","sourceUrl":"https://assets.example.com/videos/ref.mp4"}}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithToken("test-token"))
	require.NoError(t, err)

	gen, err := client.Upload(context.Background(), UploadParams{
		VideoURL: "https://uploads.example.com/tmp/ref.mp4",
		Prompt:   "prompt",
	})
	require.NoError(t, err)
	assert.Equal(t, "gen-1", gen.ID)
	assert.Equal(t, "processing", gen.Status)
}

func TestClient_List(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)
		_, _ = w.Write([]byte(`{"generations":[{"id":"gen-1","status":"processing"},{"id":"gen-2","status":"completed"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	generations, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, generations, 2)
	assert.True(t, generations[0].IsProcessing())
	assert.False(t, generations[1].IsProcessing())
}

func TestClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/status", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "req-1", body["requestId"])

		_, _ = w.Write([]byte(`{"status":"running","progress":0.5}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	result, err := client.Status(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "running", result.Status)
	assert.InDelta(t, 0.5, result.Progress, 0.001)
}

func TestClient_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/jobs/gen-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"message":"generation deleted"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)
	assert.NoError(t, client.Delete(context.Background(), "gen-1"))
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"you don't have permission to delete this generation","code":"FORBIDDEN"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	err = client.Delete(context.Background(), "gen-1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
	assert.Contains(t, apiErr.Message, "permission")
}
