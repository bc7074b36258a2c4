package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/restylehq/restyle-api/internal/auth"
	"github.com/restylehq/restyle-api/internal/events"
	"github.com/restylehq/restyle-api/internal/fal"
	"github.com/restylehq/restyle-api/internal/generation"
)

// Subscriber provides live event subscriptions for the SSE endpoint.
type Subscriber interface {
	Subscribe(ownerID string) (subID string, ch <-chan events.Event)
	Unsubscribe(ownerID, subID string)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service       *generation.Service
	subscriber    Subscriber
	validator     *validator.Validate
	logger        *slog.Logger
	webhookSecret string
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithWebhookSecret enables HMAC verification of completion notifications.
func WithWebhookSecret(secret string) HandlerOption {
	return func(h *Handlers) {
		h.webhookSecret = secret
	}
}

// WithSubscriber sets the event subscription source for the SSE endpoint.
func WithSubscriber(s Subscriber) HandlerOption {
	return func(h *Handlers) {
		h.subscriber = s
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *generation.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Upload handles POST /uploads requests. It relocates the caller's reference
// video into durable storage and creates the processing record.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	var req UploadRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	gen, err := h.service.Upload(r.Context(), generation.UploadInput{
		OwnerID:  ownerID,
		VideoURL: req.VideoURL,
		Prompt:   req.Prompt,
		Width:    req.Width,
		Height:   req.Height,
	})
	if err != nil {
		h.writeServiceError(w, err, "upload failed")
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{Generation: viewFromGeneration(gen)})
}

// Submit handles POST /jobs requests.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	var req SubmitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	out, err := h.service.Submit(r.Context(), generation.SubmitInput{
		OwnerID:      ownerID,
		Prompt:       req.Prompt,
		SourceURL:    req.SourceURL,
		GenerationID: req.GenerationID,
		AspectRatio:  req.AspectRatio,
	})
	if err != nil {
		h.writeServiceError(w, err, "submission failed")
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{
		GenerationID: out.GenerationID,
		RequestID:    out.RequestID,
	})
}

// Webhook handles POST /jobs/webhook requests from the generation service.
// Logically rejected notifications are still acknowledged with a success
// status so the upstream does not pile up retries; only malformed payloads
// and persistence failures after a successful relocation are reported as
// errors.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body", "INVALID_BODY")
		return
	}

	if h.webhookSecret != "" && !h.verifySignature(r, body) {
		h.logger.Warn("webhook signature verification failed",
			slog.String("remote_addr", r.RemoteAddr),
		)
		writeError(w, http.StatusUnauthorized, "invalid signature", "INVALID_SIGNATURE")
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Warn("failed to parse webhook body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if req.RequestID == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "missing request_id or status", "VALIDATION_ERROR")
		return
	}

	result, err := h.service.HandleCompletion(r.Context(), generation.CompletionNotice{
		RequestID:   req.RequestID,
		Status:      req.Status,
		ResultURL:   req.Payload.Video.URL,
		ErrorDetail: req.Error,
	})
	if err != nil {
		// Internal error after the decision point; the service will retry
		// and the duplicate will be absorbed by the finalize condition.
		h.logger.Error("webhook processing failed",
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
		return
	}

	switch result {
	case generation.CompletionIgnoredUnknown:
		writeJSON(w, http.StatusOK, AckResponse{Message: "request not tracked"})
	case generation.CompletionIgnoredDuplicate:
		writeJSON(w, http.StatusOK, AckResponse{Message: "request already processed"})
	case generation.CompletionFailed:
		writeJSON(w, http.StatusAccepted, AckResponse{Message: "failure recorded"})
	default:
		writeJSON(w, http.StatusOK, AckResponse{Message: "video saved"})
	}
}

// Status handles POST /jobs/status requests: a direct, read-only query
// against the generation service, used when webhook delivery is delayed.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Status(r.Context(), req.RequestID)
	if err != nil {
		h.writeServiceError(w, err, "status check failed")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:   string(result.Status),
		Progress: result.Progress,
		Error:    result.Error,
		Response: result.Raw,
	})
}

// List handles GET /jobs requests.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	gens, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list generations",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list generations", "LIST_FAILED")
		return
	}

	views := make([]GenerationView, 0, len(gens))
	for _, gen := range gens {
		views = append(views, viewFromGeneration(gen))
	}
	writeJSON(w, http.StatusOK, ListResponse{Generations: views})
}

// Delete handles DELETE /jobs/{id} requests.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	genID := r.PathValue("id")
	if genID == "" {
		writeError(w, http.StatusBadRequest, "generation ID is required", "MISSING_ID")
		return
	}

	err := h.service.Delete(r.Context(), ownerID, genID)
	switch {
	case errors.Is(err, generation.ErrGenerationNotFound):
		writeError(w, http.StatusNotFound, "generation not found", "NOT_FOUND")
	case errors.Is(err, generation.ErrNotOwner):
		writeError(w, http.StatusForbidden, "you don't have permission to delete this generation", "FORBIDDEN")
	case err != nil:
		h.logger.Error("failed to delete generation",
			slog.String("generation_id", genID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete generation", "DELETE_FAILED")
	default:
		writeJSON(w, http.StatusOK, AckResponse{Message: "generation deleted"})
	}
}

// decodeAndValidate decodes the JSON body into dst and validates it, writing
// the error response itself on failure.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps service-layer errors onto the HTTP taxonomy.
// Upstream rejections keep their original status code so the caller can see
// exactly what the generation service said.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var upstream *fal.UpstreamError
	switch {
	case errors.Is(err, generation.ErrPromptRequired),
		errors.Is(err, generation.ErrSourceURLRequired),
		errors.Is(err, generation.ErrInvalidSourceURL),
		errors.Is(err, fal.ErrRequestIDRequired):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, generation.ErrSourceURLTaken):
		writeError(w, http.StatusConflict, err.Error(), "SOURCE_URL_TAKEN")
	case errors.Is(err, fal.ErrAPIKeyNotSet):
		writeError(w, http.StatusInternalServerError, err.Error(), "CONFIGURATION_ERROR")
	case errors.As(err, &upstream):
		h.logger.Error("upstream rejection",
			slog.Int("upstream_status", upstream.StatusCode),
			slog.String("error", upstream.Message),
		)
		writeError(w, upstream.StatusCode, upstream.Message, "UPSTREAM_ERROR")
	default:
		h.logger.Error(fallback,
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, fallback, "INTERNAL_ERROR")
	}
}

// verifySignature checks the HMAC-SHA256 signature of the webhook body.
func (h *Handlers) verifySignature(r *http.Request, body []byte) bool {
	provided := r.Header.Get("X-Webhook-Signature")
	if provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(provided), []byte(expected))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
