package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kapicorp/webhook-relay/queue"
	"github.com/kapicorp/webhook-relay/relay"
)

/* HTTP layer DTOs for the collector API
 * Separate from domain entities to avoid leaking internal structure
 */

// webhookResponse represents the API response when a webhook is queued
type webhookResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Source    string `json:"source"`
}

// postWebhook handles POST /webhooks/{source}
func postWebhook(ingestor relay.Ingestor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		if source == "" {
			http.Error(w, "source is required", http.StatusBadRequest)
			return
		}

		// The exact body bytes feed signature recomputation; never re-encode
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		messageID, err := ingestor.Handle(r.Context(), source, r.Header, body)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		// 202: the message is durably queued, delivery happens asynchronously
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		response := webhookResponse{
			Status:    "accepted",
			MessageID: messageID,
			Source:    source,
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

/* statusFor maps the error taxonomy onto sender-facing HTTP semantics
 * 4xx tells the sender not to retry; 503 leans on the sender's own retry
 * logic to re-deliver when the queue is unavailable
 */
func statusFor(err error) int {
	var unknownSource *relay.UnknownSourceError
	if errors.As(err, &unknownSource) {
		return http.StatusNotFound
	}

	var authentication *relay.AuthenticationError
	if errors.As(err, &authentication) {
		return http.StatusUnauthorized
	}

	var publish *queue.PublishError
	if errors.As(err, &publish) {
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
