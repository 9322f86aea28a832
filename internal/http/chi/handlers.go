package chi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"

	"github.com/kapicorp/webhook-relay/relay"
)

// Handlers sets up the collector API routes
func Handlers(logger zerolog.Logger, ingestor relay.Ingestor) *chi.Mux {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Webhook ingest route
	r.Post("/webhooks/{source}", postWebhook(ingestor).ServeHTTP)

	return r
}
