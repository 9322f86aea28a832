package chi_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	chihandlers "github.com/kapicorp/webhook-relay/internal/http/chi"
	"github.com/kapicorp/webhook-relay/queue"
	"github.com/kapicorp/webhook-relay/relay"
	"github.com/kapicorp/webhook-relay/relay/mocks"
)

func TestPostWebhook(t *testing.T) {
	body := []byte(`{"a":1}`)

	t.Run("success - accepted webhook returns 202", func(t *testing.T) {
		ingestor := mocks.NewIngestor(t)
		ingestor.On("Handle", mock.Anything, "github", mock.Anything, body).
			Return("msg-1", nil).Once()

		router := chihandlers.Handlers(zerolog.Nop(), ingestor)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp struct {
			Status    string `json:"status"`
			MessageID string `json:"message_id"`
			Source    string `json:"source"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "accepted", resp.Status)
		assert.Equal(t, "msg-1", resp.MessageID)
		assert.Equal(t, "github", resp.Source)
	})

	t.Run("success - request headers reach the ingestor", func(t *testing.T) {
		ingestor := mocks.NewIngestor(t)
		ingestor.On("Handle", mock.Anything, "github", mock.MatchedBy(func(h http.Header) bool {
			return h.Get("X-Hub-Signature-256") == "sha256=abc"
		}), body).Return("msg-1", nil).Once()

		router := chihandlers.Handlers(zerolog.Nop(), ingestor)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", "sha256=abc")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("error - unknown source returns 404", func(t *testing.T) {
		ingestor := mocks.NewIngestor(t)
		ingestor.On("Handle", mock.Anything, "bitbucket", mock.Anything, body).
			Return("", &relay.UnknownSourceError{Source: "bitbucket"}).Once()

		router := chihandlers.Handlers(zerolog.Nop(), ingestor)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/bitbucket", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("error - invalid signature returns 401", func(t *testing.T) {
		ingestor := mocks.NewIngestor(t)
		ingestor.On("Handle", mock.Anything, "github", mock.Anything, body).
			Return("", &relay.AuthenticationError{Source: "github"}).Once()

		router := chihandlers.Handlers(zerolog.Nop(), ingestor)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("error - queue outage returns 503", func(t *testing.T) {
		pubErr := &queue.PublishError{Queue: "gcp_pubsub", Err: errors.New("deadline exceeded")}

		ingestor := mocks.NewIngestor(t)
		ingestor.On("Handle", mock.Anything, "github", mock.Anything, body).
			Return("", pubErr).Once()

		router := chihandlers.Handlers(zerolog.Nop(), ingestor)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("error - unexpected failure returns 500", func(t *testing.T) {
		ingestor := mocks.NewIngestor(t)
		ingestor.On("Handle", mock.Anything, "github", mock.Anything, body).
			Return("", errors.New("boom")).Once()

		router := chihandlers.Handlers(zerolog.Nop(), ingestor)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("method not allowed on webhook route", func(t *testing.T) {
		ingestor := mocks.NewIngestor(t)
		router := chihandlers.Handlers(zerolog.Nop(), ingestor)

		req := httptest.NewRequest(http.MethodGet, "/webhooks/github", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router := chihandlers.Handlers(zerolog.Nop(), mocks.NewIngestor(t))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	})
}
