package generation

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; the sqlite store is the
// production implementation.
type MemoryRepository struct {
	mu   sync.Mutex
	gens map[string]*Generation
}

// NewMemoryRepository creates a new in-memory generation repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		gens: make(map[string]*Generation),
	}
}

// Create persists a new generation.
// Creates a clone to avoid external mutations.
func (r *MemoryRepository) Create(_ context.Context, gen *Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.gens {
		if existing.SourceURL == gen.SourceURL {
			return ErrSourceURLTaken
		}
	}
	r.gens[gen.ID] = gen.Clone()
	return nil
}

// FindByID retrieves a generation by its ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, genID string) (*Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen, ok := r.gens[genID]
	if !ok {
		return nil, ErrGenerationNotFound
	}
	return gen.Clone(), nil
}

// FindByRequestID retrieves a generation by its external service handle.
func (r *MemoryRepository) FindByRequestID(_ context.Context, requestID string) (*Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if requestID == "" {
		return nil, ErrGenerationNotFound
	}
	for _, gen := range r.gens {
		if gen.RequestID == requestID {
			return gen.Clone(), nil
		}
	}
	return nil, ErrGenerationNotFound
}

// ListByOwner returns the owner's generations, most recently updated first.
func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]*Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*Generation, 0)
	for _, gen := range r.gens {
		if gen.OwnerID == ownerID {
			result = append(result, gen.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// AttachRequestID records the external service handle on a generation.
func (r *MemoryRepository) AttachRequestID(_ context.Context, genID, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen, ok := r.gens[genID]
	if !ok {
		return ErrGenerationNotFound
	}
	return gen.AttachRequestID(requestID)
}

// Finalize applies a terminal outcome only while the generation is still
// processing. The repository mutex makes the check-then-write atomic, the
// same guarantee the sqlite store gets from its conditional UPDATE.
func (r *MemoryRepository) Finalize(_ context.Context, genID string, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen, ok := r.gens[genID]
	if !ok {
		return ErrGenerationNotFound
	}
	if gen.Status != StatusProcessing {
		return ErrAlreadyFinalized
	}
	switch outcome.Status {
	case StatusCompleted:
		return gen.Complete(outcome.ResultURL)
	case StatusFailed:
		return gen.Fail(outcome.Error)
	default:
		return ErrInvalidTransition
	}
}

// Delete removes a generation from storage.
func (r *MemoryRepository) Delete(_ context.Context, genID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gens[genID]; !ok {
		return ErrGenerationNotFound
	}
	delete(r.gens, genID)
	return nil
}
