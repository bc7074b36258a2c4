package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/restylehq/restyle-api/internal/events"
	"github.com/restylehq/restyle-api/internal/fal"
	"github.com/restylehq/restyle-api/internal/storage"
)

// Static errors for service operations.
var (
	// ErrPromptRequired is returned when the prompt is missing or empty.
	ErrPromptRequired = errors.New("generation: prompt is required")
	// ErrSourceURLRequired is returned when the source URL is missing.
	ErrSourceURLRequired = errors.New("generation: source URL is required")
	// ErrInvalidSourceURL is returned when the source URL is not a
	// well-formed http or https URL.
	ErrInvalidSourceURL = errors.New("generation: source URL must be a valid http(s) URL")
	// ErrNotOwner is returned when a caller operates on another owner's
	// generation.
	ErrNotOwner = errors.New("generation: caller does not own this generation")
)

// Relocator copies a remote asset into durable storage.
type Relocator interface {
	Relocate(ctx context.Context, remoteURL string) (storage.StoredAsset, error)
}

// Publisher pushes lifecycle events to live subscribers.
type Publisher interface {
	Publish(ownerID string, event events.Event)
}

// SubmitInput contains the parameters for submitting a generation.
type SubmitInput struct {
	// OwnerID is the authenticated caller.
	OwnerID string
	// Prompt is the restyle instruction.
	Prompt string
	// SourceURL is the reference video.
	SourceURL string
	// GenerationID optionally names a pre-created record to attach the
	// request to. Advisory: submission proceeds if it does not exist.
	GenerationID string
	// AspectRatio is the optional aspect hint ("16:9" or "9:16").
	AspectRatio string
}

// SubmitOutput is the result of a successful submission.
type SubmitOutput struct {
	GenerationID string
	RequestID    string
}

// UploadInput contains the parameters for registering a reference video.
type UploadInput struct {
	// OwnerID is the authenticated caller.
	OwnerID string
	// VideoURL is where the uploaded reference video currently lives.
	VideoURL string
	// Prompt is the restyle instruction to store with the record.
	Prompt string
	// Width and Height are the probed video dimensions, when known.
	// Used only to derive the aspect hint.
	Width, Height int
}

// CompletionNotice is the parsed body of a completion notification.
type CompletionNotice struct {
	// RequestID is the external service handle.
	RequestID string
	// Status is the raw upstream status string ("OK" on success).
	Status string
	// ResultURL is the transient URL of the generated video, when present.
	ResultURL string
	// ErrorDetail is the upstream failure description, when present.
	ErrorDetail string
}

// CompletionResult describes what a completion notification did.
type CompletionResult int

const (
	// CompletionIgnoredUnknown means no generation carries the handle.
	CompletionIgnoredUnknown CompletionResult = iota
	// CompletionIgnoredDuplicate means the generation was already terminal.
	CompletionIgnoredDuplicate
	// CompletionCompleted means the generation transitioned to completed.
	CompletionCompleted
	// CompletionFailed means the generation transitioned to failed.
	CompletionFailed
)

// Service coordinates the generation lifecycle: reference upload, submission
// to the external service, completion webhooks with result relocation, and
// owner-scoped reads and deletes.
type Service struct {
	repo       Repository
	client     fal.Client
	relocator  Relocator
	publisher  Publisher
	logger     *slog.Logger
	webhookURL string
}

// ServiceOption is a function that configures a Service.
type ServiceOption func(*Service)

// WithPublisher sets the event publisher for terminal transitions.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService creates a new generation Service.
// webhookURL is the externally reachable completion callback address handed
// to the generation service on every submission.
func NewService(repo Repository, client fal.Client, relocator Relocator, webhookURL string, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:       repo,
		client:     client,
		relocator:  relocator,
		logger:     logger,
		webhookURL: webhookURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload relocates a freshly uploaded reference video into durable storage
// and creates the processing record for it.
func (s *Service) Upload(ctx context.Context, input UploadInput) (*Generation, error) {
	if input.VideoURL == "" {
		return nil, ErrSourceURLRequired
	}
	if input.Prompt == "" {
		return nil, ErrPromptRequired
	}

	asset, err := s.relocator.Relocate(ctx, input.VideoURL)
	if err != nil {
		return nil, fmt.Errorf("relocate reference video: %w", err)
	}

	gen := New(input.OwnerID, input.Prompt, asset.URL)
	gen.AspectRatio = aspectHint(input.Width, input.Height)

	if err := s.repo.Create(ctx, gen); err != nil {
		return nil, err
	}

	s.logger.Info("reference video registered",
		slog.String("generation_id", gen.ID),
		slog.String("owner_id", input.OwnerID),
		slog.String("source_url", gen.SourceURL),
	)

	return gen.Clone(), nil
}

// Submit validates the request, makes exactly one call to the generation
// service, and records the returned request ID. An upstream failure is
// returned to the caller verbatim without marking any record failed: a
// record without a request ID is a recoverable, re-submittable state.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	if input.Prompt == "" {
		return SubmitOutput{}, ErrPromptRequired
	}
	if input.SourceURL == "" {
		return SubmitOutput{}, ErrSourceURLRequired
	}
	if !isHTTPURL(input.SourceURL) {
		return SubmitOutput{}, ErrInvalidSourceURL
	}

	// The generation ID is advisory: submission proceeds when the record is
	// missing or belongs to someone else, and a new record is created instead.
	var existing *Generation
	if input.GenerationID != "" {
		found, err := s.repo.FindByID(ctx, input.GenerationID)
		switch {
		case err == nil && found.OwnerID == input.OwnerID:
			existing = found
		case err == nil:
			s.logger.Warn("submission names a generation owned by someone else",
				slog.String("generation_id", input.GenerationID),
				slog.String("owner_id", input.OwnerID),
			)
		case !errors.Is(err, ErrGenerationNotFound):
			return SubmitOutput{}, fmt.Errorf("find generation: %w", err)
		}
	}

	requestID, err := s.client.Submit(ctx, fal.SubmitInput{
		Prompt:      input.Prompt,
		VideoURL:    input.SourceURL,
		AspectRatio: input.AspectRatio,
		WebhookURL:  s.webhookURL,
	})
	if err != nil {
		s.logger.Error("generation service rejected submission",
			slog.String("owner_id", input.OwnerID),
			slog.String("error", err.Error()),
		)
		return SubmitOutput{}, fmt.Errorf("submit to generation service: %w", err)
	}

	if existing != nil {
		if err := s.repo.AttachRequestID(ctx, existing.ID, requestID); err != nil {
			return SubmitOutput{}, fmt.Errorf("attach request ID: %w", err)
		}
		s.logger.Info("generation submitted",
			slog.String("generation_id", existing.ID),
			slog.String("request_id", requestID),
		)
		return SubmitOutput{GenerationID: existing.ID, RequestID: requestID}, nil
	}

	gen := New(input.OwnerID, input.Prompt, input.SourceURL)
	gen.AspectRatio = input.AspectRatio
	gen.RequestID = requestID
	if err := s.repo.Create(ctx, gen); err != nil {
		return SubmitOutput{}, fmt.Errorf("create generation: %w", err)
	}

	s.logger.Info("generation submitted",
		slog.String("generation_id", gen.ID),
		slog.String("request_id", requestID),
	)

	return SubmitOutput{GenerationID: gen.ID, RequestID: requestID}, nil
}

// HandleCompletion applies a completion notification from the generation
// service. Unknown handles and repeated deliveries are acknowledged no-ops.
// On success the result asset is relocated to durable storage before the
// terminal transition is committed; a generation whose asset cannot be
// re-hosted is reported as failed, since the relocated URL is the only
// durable reference.
func (s *Service) HandleCompletion(ctx context.Context, notice CompletionNotice) (CompletionResult, error) {
	gen, err := s.repo.FindByRequestID(ctx, notice.RequestID)
	if err != nil {
		if errors.Is(err, ErrGenerationNotFound) {
			// The generation may belong to another instance or be deleted.
			s.logger.Warn("completion for unknown request",
				slog.String("request_id", notice.RequestID),
			)
			return CompletionIgnoredUnknown, nil
		}
		return 0, fmt.Errorf("find generation by request ID: %w", err)
	}

	if gen.Status != StatusProcessing {
		s.logger.Info("completion for already finalized generation",
			slog.String("generation_id", gen.ID),
			slog.String("request_id", notice.RequestID),
			slog.String("status", string(gen.Status)),
		)
		return CompletionIgnoredDuplicate, nil
	}

	if fal.NormalizeStatus(notice.Status) != fal.StatusCompleted {
		detail := notice.ErrorDetail
		if detail == "" {
			detail = fmt.Sprintf("generation failed with status %q", notice.Status)
		}
		return s.finalize(ctx, gen, Outcome{Status: StatusFailed, Error: detail})
	}

	if notice.ResultURL == "" {
		return s.finalize(ctx, gen, Outcome{Status: StatusFailed, Error: "missing result asset"})
	}

	asset, err := s.relocator.Relocate(ctx, notice.ResultURL)
	if err != nil {
		s.logger.Error("result relocation failed",
			slog.String("generation_id", gen.ID),
			slog.String("request_id", notice.RequestID),
			slog.String("error", err.Error()),
		)
		return s.finalize(ctx, gen, Outcome{
			Status: StatusFailed,
			Error:  fmt.Sprintf("relocate result asset: %v", err),
		})
	}

	return s.finalize(ctx, gen, Outcome{Status: StatusCompleted, ResultURL: asset.URL})
}

// finalize commits a terminal outcome through the repository's conditional
// update and publishes the resulting event. A concurrent delivery that lost
// the race surfaces as ErrAlreadyFinalized and is treated as a duplicate.
func (s *Service) finalize(ctx context.Context, gen *Generation, outcome Outcome) (CompletionResult, error) {
	err := s.repo.Finalize(ctx, gen.ID, outcome)
	switch {
	case errors.Is(err, ErrAlreadyFinalized):
		return CompletionIgnoredDuplicate, nil
	case errors.Is(err, ErrGenerationNotFound):
		return CompletionIgnoredUnknown, nil
	case err != nil:
		return 0, fmt.Errorf("finalize generation: %w", err)
	}

	s.logger.Info("generation finalized",
		slog.String("generation_id", gen.ID),
		slog.String("request_id", gen.RequestID),
		slog.String("status", string(outcome.Status)),
	)

	if s.publisher != nil {
		s.publisher.Publish(gen.OwnerID, events.Event{
			GenerationID: gen.ID,
			RequestID:    gen.RequestID,
			Status:       string(outcome.Status),
			ResultURL:    outcome.ResultURL,
			Error:        outcome.Error,
		})
	}

	if outcome.Status == StatusCompleted {
		return CompletionCompleted, nil
	}
	return CompletionFailed, nil
}

// Status queries the generation service directly for a request's raw status.
// Read-only: used as a fallback when webhook delivery is delayed or lost.
func (s *Service) Status(ctx context.Context, requestID string) (fal.StatusResult, error) {
	if requestID == "" {
		return fal.StatusResult{}, fal.ErrRequestIDRequired
	}
	return s.client.Status(ctx, requestID)
}

// List returns the owner's generations, most recently updated first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Generation, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Get returns a single generation, enforcing ownership.
func (s *Service) Get(ctx context.Context, ownerID, genID string) (*Generation, error) {
	gen, err := s.repo.FindByID(ctx, genID)
	if err != nil {
		return nil, err
	}
	if gen.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return gen, nil
}

// Delete removes a generation after verifying ownership.
// Deletion is unconditional with respect to state.
func (s *Service) Delete(ctx context.Context, ownerID, genID string) error {
	gen, err := s.repo.FindByID(ctx, genID)
	if err != nil {
		return err
	}
	if gen.OwnerID != ownerID {
		return ErrNotOwner
	}
	if err := s.repo.Delete(ctx, genID); err != nil {
		return err
	}

	s.logger.Info("generation deleted",
		slog.String("generation_id", genID),
		slog.String("owner_id", ownerID),
	)
	return nil
}

// isHTTPURL reports whether raw parses as an absolute http(s) URL.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// aspectHint derives the aspect ratio hint from probed dimensions.
// Landscape maps to 16:9, portrait and square to 9:16; unknown dimensions
// leave the hint empty so the service default applies.
func aspectHint(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	if width > height {
		return "16:9"
	}
	return "9:16"
}
