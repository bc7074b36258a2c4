// Package relocate copies transient external result assets into durable
// storage. Generation service outputs expire from the vendor's CDN, so the
// relocated URL is the only reference worth persisting.
package relocate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/restylehq/restyle-api/internal/storage"
)

// Static errors for relocation operations.
var (
	// ErrURLRequired is returned when no source URL is provided.
	ErrURLRequired = errors.New("relocate: source URL is required")
	// ErrUnsupportedContent is returned when the remote asset is not a video.
	ErrUnsupportedContent = errors.New("relocate: remote asset is not a video")
)

// Relocator fetches a remote asset and re-uploads it to durable storage.
// Each attempt is bounded by a timeout; failed attempts are retried a fixed
// number of times with linearly increasing backoff before giving up.
type Relocator struct {
	store          storage.AssetStore
	httpClient     *http.Client
	logger         *slog.Logger
	maxAttempts    int
	baseBackoff    time.Duration
	attemptTimeout time.Duration
}

// Option is a function that configures a Relocator.
type Option func(*Relocator)

// WithHTTPClient sets a custom HTTP client for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relocator) {
		r.httpClient = c
	}
}

// WithMaxAttempts sets the total number of upload attempts.
func WithMaxAttempts(n int) Option {
	return func(r *Relocator) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBaseBackoff sets the backoff unit between attempts. The wait after
// attempt n is n times this duration.
func WithBaseBackoff(d time.Duration) Option {
	return func(r *Relocator) {
		r.baseBackoff = d
	}
}

// WithAttemptTimeout bounds each individual download+upload attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Relocator) {
		r.attemptTimeout = d
	}
}

// New creates a Relocator targeting the given asset store.
func New(store storage.AssetStore, logger *slog.Logger, opts ...Option) *Relocator {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relocator{
		store:          store,
		httpClient:     &http.Client{},
		logger:         logger,
		maxAttempts:    3,
		baseBackoff:    1 * time.Second,
		attemptTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Relocate fetches the asset at remoteURL and uploads it to durable storage,
// returning the stored asset's stable URL. After exhausting all attempts it
// reports the last error rather than retrying indefinitely.
func (r *Relocator) Relocate(ctx context.Context, remoteURL string) (storage.StoredAsset, error) {
	if remoteURL == "" {
		return storage.StoredAsset{}, ErrURLRequired
	}

	key := assetKey(remoteURL)
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff: delay grows with the attempt number.
			wait := time.Duration(attempt-1) * r.baseBackoff
			select {
			case <-ctx.Done():
				return storage.StoredAsset{}, fmt.Errorf("relocate: context cancelled: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		asset, err := r.relocateOnce(ctx, remoteURL, key)
		if err == nil {
			return asset, nil
		}
		lastErr = err

		r.logger.Warn("asset relocation attempt failed",
			slog.String("remote_url", remoteURL),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.maxAttempts),
			slog.String("error", err.Error()),
		)
	}

	return storage.StoredAsset{}, fmt.Errorf("relocate: all %d attempts failed: %w", r.maxAttempts, lastErr)
}

// relocateOnce performs a single bounded download+upload attempt.
func (r *Relocator) relocateOnce(ctx context.Context, remoteURL, key string) (storage.StoredAsset, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return storage.StoredAsset{}, fmt.Errorf("relocate: create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return storage.StoredAsset{}, fmt.Errorf("relocate: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return storage.StoredAsset{}, fmt.Errorf("relocate: download failed with status %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if !strings.HasPrefix(ct, "video/") && !strings.HasPrefix(ct, "application/octet-stream") {
			return storage.StoredAsset{}, fmt.Errorf("%w: content type %q", ErrUnsupportedContent, ct)
		}
	}

	asset, err := r.store.Upload(attemptCtx, key, resp.Body)
	if err != nil {
		return storage.StoredAsset{}, fmt.Errorf("relocate: upload: %w", err)
	}

	return asset, nil
}

// assetKey builds a collision-free storage key for the relocated asset,
// keeping the original extension when it has one.
func assetKey(remoteURL string) string {
	ext := path.Ext(strings.SplitN(path.Base(remoteURL), "?", 2)[0])
	if ext == "" || len(ext) > 8 {
		ext = ".mp4"
	}
	random := make([]byte, 8)
	if _, err := rand.Read(random); err != nil {
		return fmt.Sprintf("videos/%d%s", time.Now().UnixNano(), ext)
	}
	return fmt.Sprintf("videos/%d-%s%s", time.Now().Unix(), hex.EncodeToString(random), ext)
}
