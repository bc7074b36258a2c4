package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/restylehq/restyle-api/internal/auth"
)

// keepAliveInterval is how often an SSE comment is written to keep idle
// connections open through proxies.
const keepAliveInterval = 15 * time.Second

// Events handles GET /jobs/events requests: a server-sent event stream of
// the caller's generation lifecycle changes. The stream stays open until the
// client disconnects.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	if h.subscriber == nil {
		writeError(w, http.StatusNotFound, "event stream not enabled", "NOT_FOUND")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL_ERROR")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subID, ch := h.subscriber.Subscribe(ownerID)
	defer h.subscriber.Unsubscribe(ownerID, subID)

	h.logger.Info("event stream opened",
		slog.String("owner_id", ownerID),
		slog.String("subscriber_id", subID),
	)

	// Initial handshake so clients know the stream is live.
	fmt.Fprintf(w, "data: %s\n\n", fmt.Sprintf(`{"type":"connected","clientId":%q}`, subID))
	flusher.Flush()

	ctx := r.Context()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("event stream closed",
				slog.String("owner_id", ownerID),
				slog.String("subscriber_id", subID),
			)
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to encode event",
					slog.String("error", err.Error()),
				)
				continue
			}
			fmt.Fprintf(w, "event: generation\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
