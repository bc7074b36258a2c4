// Package server provides the HTTP server for the restyle API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"encoding/json"
	"time"

	"github.com/restylehq/restyle-api/internal/generation"
)

// UploadRequest is the HTTP request body for registering a reference video.
type UploadRequest struct {
	// VideoURL is where the uploaded reference video currently lives.
	VideoURL string `json:"videoUrl" validate:"required,url"`
	// Prompt is the restyle instruction.
	Prompt string `json:"prompt" validate:"required"`
	// Width and Height are the probed video dimensions, if known.
	Width  int `json:"width,omitempty" validate:"omitempty,min=0"`
	Height int `json:"height,omitempty" validate:"omitempty,min=0"`
}

// UploadResponse is the HTTP response after registering a reference video.
type UploadResponse struct {
	Generation GenerationView `json:"generation"`
}

// SubmitRequest is the HTTP request body for submitting a generation.
type SubmitRequest struct {
	// Prompt is the restyle instruction.
	Prompt string `json:"prompt" validate:"required"`
	// SourceURL is the durable URL of the reference video.
	SourceURL string `json:"sourceUrl" validate:"required,url"`
	// GenerationID optionally names a pre-created record. Advisory.
	GenerationID string `json:"generationId,omitempty"`
	// AspectRatio is the optional aspect hint.
	AspectRatio string `json:"aspectRatio,omitempty" validate:"omitempty,oneof=16:9 9:16"`
}

// SubmitResponse is the HTTP response after a successful submission.
type SubmitResponse struct {
	GenerationID string `json:"generationId"`
	RequestID    string `json:"requestId"`
}

// WebhookRequest is the completion notification posted by the generation
// service. The field names follow the service's wire format.
type WebhookRequest struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Payload   struct {
		Video struct {
			URL string `json:"url"`
		} `json:"video"`
	} `json:"payload"`
	Error string `json:"error,omitempty"`
}

// StatusRequest is the HTTP request body for a direct status query.
type StatusRequest struct {
	RequestID string `json:"requestId" validate:"required"`
}

// StatusResponse is the HTTP response for a direct status query.
type StatusResponse struct {
	Status   string          `json:"status"`
	Progress float64         `json:"progress"`
	Error    string          `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// GenerationView is the client-facing representation of a generation.
type GenerationView struct {
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

// ListResponse is the HTTP response for the generation listing.
type ListResponse struct {
	Generations []GenerationView `json:"generations"`
}

// AckResponse is the acknowledgement body for webhook deliveries and deletes.
type AckResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// viewFromGeneration maps a domain generation to its client representation.
func viewFromGeneration(gen *generation.Generation) GenerationView {
	return GenerationView{
		ID:          gen.ID,
		Prompt:      gen.Prompt,
		SourceURL:   gen.SourceURL,
		ResultURL:   gen.ResultURL,
		RequestID:   gen.RequestID,
		AspectRatio: gen.AspectRatio,
		Status:      string(gen.Status),
		Error:       gen.Error,
		CreatedAt:   gen.CreatedAt,
		UpdatedAt:   gen.UpdatedAt,
	}
}
