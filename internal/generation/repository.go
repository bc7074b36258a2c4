package generation

import (
	"context"
	"errors"
)

// Static errors for repository operations.
var (
	// ErrGenerationNotFound is returned when a generation cannot be found.
	ErrGenerationNotFound = errors.New("generation not found")
	// ErrSourceURLTaken is returned when creating a generation whose source
	// URL is already referenced by another generation.
	ErrSourceURLTaken = errors.New("source URL already used by another generation")
	// ErrAlreadyFinalized is returned by Finalize when the generation is no
	// longer in processing state. Duplicate webhook deliveries hit this.
	ErrAlreadyFinalized = errors.New("generation already finalized")
)

// Outcome is the terminal decision applied by Finalize.
type Outcome struct {
	// Status must be StatusCompleted or StatusFailed.
	Status Status
	// ResultURL is the durable asset URL. Required when Status is
	// StatusCompleted, empty otherwise.
	ResultURL string
	// Error is the failure reason. Set only when Status is StatusFailed.
	Error string
}

// Repository defines the interface for generation persistence.
// It acts as a port in the hexagonal architecture pattern.
//
// Only the submission path and the completion path write records; every
// other consumer is read-only.
type Repository interface {
	// Create persists a new generation.
	// Returns ErrSourceURLTaken if the source URL is already in use.
	Create(ctx context.Context, gen *Generation) error

	// FindByID retrieves a generation by its unique identifier.
	// Returns ErrGenerationNotFound if it does not exist.
	FindByID(ctx context.Context, genID string) (*Generation, error)

	// FindByRequestID retrieves a generation by its external service handle.
	// Returns ErrGenerationNotFound if no generation carries the handle.
	FindByRequestID(ctx context.Context, requestID string) (*Generation, error)

	// ListByOwner returns all generations for an owner, most recently
	// updated first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Generation, error)

	// AttachRequestID records the external service handle on a generation.
	// The handle is set exactly once.
	AttachRequestID(ctx context.Context, genID, requestID string) error

	// Finalize applies a terminal outcome if and only if the generation is
	// still processing. The check and the write are a single atomic
	// operation, which is the ordering guard against concurrent or repeated
	// completion notifications.
	// Returns ErrAlreadyFinalized if the generation is already terminal and
	// ErrGenerationNotFound if it does not exist.
	Finalize(ctx context.Context, genID string, outcome Outcome) error

	// Delete removes a generation. Permitted in any state.
	// Returns ErrGenerationNotFound if it does not exist.
	Delete(ctx context.Context, genID string) error
}
