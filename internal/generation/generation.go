// Package generation provides the Generation aggregate for managing
// video restyle requests. It includes the entity with its state machine,
// repository interfaces for persistence, and the Service that coordinates
// submission, completion webhooks, and result relocation.
package generation

import (
	"errors"
	"sync"
	"time"

	"github.com/restylehq/restyle-api/internal/generation/id"
)

// Status represents the current state of a Generation.
type Status string

const (
	// StatusProcessing indicates the generation has been accepted and the
	// result has not arrived yet. This is the initial state.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the generated video was relocated to
	// durable storage. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed indicates generation or relocation failed. Terminal.
	StatusFailed Status = "failed"
)

// IsValid returns true if the status is one of the known states.
func (s Status) IsValid() bool {
	return s == StatusProcessing || s == StatusCompleted || s == StatusFailed
}

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// Terminal states are sticky: nothing transitions out of them.
var validTransitions = map[Status][]Status{
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Generation represents one user-initiated video restyle request and its
// lifecycle record.
type Generation struct {
	mu sync.RWMutex

	// ID is the unique identifier for this generation. Immutable.
	ID string
	// OwnerID identifies the requesting user. Immutable; used for all
	// ownership checks.
	OwnerID string
	// Prompt is the user-supplied instruction text. Immutable.
	Prompt string
	// SourceURL is the reference video supplied by the user.
	// Unique across generations; immutable.
	SourceURL string
	// ResultURL is the durable URL of the generated output.
	// Set if and only if Status is StatusCompleted.
	ResultURL string
	// RequestID is the opaque handle returned by the generation service.
	// Empty until submission succeeds; set exactly once.
	RequestID string
	// AspectRatio is the hint forwarded to the generation service ("16:9" or "9:16").
	AspectRatio string
	// Status is the current lifecycle state.
	Status Status
	// Error contains a human-readable failure reason. Set only on
	// transition to StatusFailed.
	Error string
	// CreatedAt is when the generation was created.
	CreatedAt time.Time
	// UpdatedAt is when the generation was last mutated.
	UpdatedAt time.Time
}

// New creates a new Generation in processing state with a generated ID.
func New(ownerID, prompt, sourceURL string) *Generation {
	now := time.Now().UTC()
	return &Generation{
		ID:        id.Generate(),
		OwnerID:   ownerID,
		Prompt:    prompt,
		SourceURL: sourceURL,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewWithID creates a new Generation with the specified ID.
// Useful for testing or when the ID is externally generated.
func NewWithID(genID, ownerID, prompt, sourceURL string) *Generation {
	g := New(ownerID, prompt, sourceURL)
	g.ID = genID
	return g
}

// TransitionTo attempts to change the status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (g *Generation) TransitionTo(status Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !canTransition(g.Status, status) {
		return ErrInvalidTransition
	}

	g.Status = status
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete transitions the generation to completed and records the durable
// result URL. Returns ErrInvalidTransition if the generation is not processing.
func (g *Generation) Complete(resultURL string) error {
	g.mu.Lock()
	if !canTransition(g.Status, StatusCompleted) {
		g.mu.Unlock()
		return ErrInvalidTransition
	}
	g.ResultURL = resultURL
	g.Status = StatusCompleted
	g.UpdatedAt = time.Now().UTC()
	g.mu.Unlock()
	return nil
}

// Fail transitions the generation to failed with an error message.
// Returns ErrInvalidTransition if the generation is not processing.
func (g *Generation) Fail(errMsg string) error {
	g.mu.Lock()
	if !canTransition(g.Status, StatusFailed) {
		g.mu.Unlock()
		return ErrInvalidTransition
	}
	g.Error = errMsg
	g.Status = StatusFailed
	g.UpdatedAt = time.Now().UTC()
	g.mu.Unlock()
	return nil
}

// AttachRequestID records the external service handle. The handle is set
// exactly once; subsequent calls with a different value return an error.
func (g *Generation) AttachRequestID(requestID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.RequestID != "" && g.RequestID != requestID {
		return ErrRequestIDAttached
	}
	g.RequestID = requestID
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// ErrRequestIDAttached is returned when attaching a second, different
// external handle to a generation.
var ErrRequestIDAttached = errors.New("request ID already attached")

// GetStatus returns the current status (thread-safe).
func (g *Generation) GetStatus() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.Status
}

// IsTerminal returns true if the generation is in a terminal state.
func (g *Generation) IsTerminal() bool {
	return g.GetStatus().IsTerminal()
}

// Clone creates a deep copy of the generation for safe reads.
func (g *Generation) Clone() *Generation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return &Generation{
		ID:          g.ID,
		OwnerID:     g.OwnerID,
		Prompt:      g.Prompt,
		SourceURL:   g.SourceURL,
		ResultURL:   g.ResultURL,
		RequestID:   g.RequestID,
		AspectRatio: g.AspectRatio,
		Status:      g.Status,
		Error:       g.Error,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}
