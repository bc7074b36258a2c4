// Package fal provides an HTTP client for the fal.ai queue API used to run
// the video-to-video restyle model.
package fal

import (
	"encoding/json"
	"strings"
)

// Status is the normalized status of a queued request.
// The upstream service reports the same semantic state under several
// casings and spellings; everything is normalized here, at the client
// boundary, before any internal logic inspects it.
type Status string

const (
	// StatusQueued indicates the request is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusRunning indicates the request is being processed.
	StatusRunning Status = "running"
	// StatusCompleted indicates the request finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the request errored.
	StatusFailed Status = "failed"
	// StatusUnknown is reported for statuses the client does not recognize.
	StatusUnknown Status = "unknown"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NormalizeStatus maps the upstream status vocabulary onto the Status enum.
func NormalizeStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IN_QUEUE", "PENDING", "QUEUED":
		return StatusQueued
	case "IN_PROGRESS", "RUNNING", "PROCESSING":
		return StatusRunning
	case "COMPLETED", "OK", "SUCCESS", "SUCCEEDED":
		return StatusCompleted
	case "FAILED", "ERROR", "CANCELLED", "TIMED_OUT":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Fixed generation parameters sent with every submission.
const (
	numInferenceSteps    = 30
	resolution           = "720p"
	strength             = 0.85
	defaultAspectRatio   = "16:9"
	enableSafetyChecker  = true
)

// SubmitInput contains the caller-supplied parameters for a submission.
type SubmitInput struct {
	// Prompt is the restyle instruction.
	Prompt string
	// VideoURL is the reference video.
	VideoURL string
	// AspectRatio is "16:9" or "9:16". Defaults to "16:9".
	AspectRatio string
	// WebhookURL is where the service posts the completion notification.
	WebhookURL string
}

// submitRequest is the request body for the queue submit endpoint.
type submitRequest struct {
	Prompt              string  `json:"prompt"`
	VideoURL            string  `json:"video_url"`
	NumInferenceSteps   int     `json:"num_inference_steps"`
	AspectRatio         string  `json:"aspect_ratio"`
	Resolution          string  `json:"resolution"`
	EnableSafetyChecker bool    `json:"enable_safety_checker"`
	Strength            float64 `json:"strength"`
}

// submitResponse is the response from the queue submit endpoint.
type submitResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

// statusResponse is the response from the queue status endpoint.
type statusResponse struct {
	Status string `json:"status"`
	Logs   *struct {
		Progress float64 `json:"progress"`
	} `json:"logs,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusResult contains the result of querying a request's status.
type StatusResult struct {
	// Status is the normalized request status.
	Status Status
	// Progress is the completion fraction (0-1) when the service reports one.
	Progress float64
	// Result is the terminal result payload, if present.
	Result json.RawMessage
	// Error is the upstream error message, if present.
	Error string
	// Raw is the unmodified upstream response body, returned to diagnostic
	// callers as-is.
	Raw json.RawMessage
}
