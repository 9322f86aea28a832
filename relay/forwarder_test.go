package relay_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapicorp/webhook-relay/config"
	"github.com/kapicorp/webhook-relay/metrics"
	"github.com/kapicorp/webhook-relay/queue"
	"github.com/kapicorp/webhook-relay/relay"
)

/* memoryBackend is an in-memory queue.Receiver for forwarder tests
 * It enforces the receiver contract: a message handed to one worker is
 * invisible to the others until it is acknowledged or released
 */
type memoryBackend struct {
	mu       sync.Mutex
	pending  []queue.Message
	inflight map[string]bool
	acks     map[string]int
	releases map[string]int
}

func newMemoryBackend(msgs ...queue.Message) *memoryBackend {
	return &memoryBackend{
		pending:  msgs,
		inflight: make(map[string]bool),
		acks:     make(map[string]int),
		releases: make(map[string]int),
	}
}

func (b *memoryBackend) Receive(ctx context.Context, maxMessages int, _ time.Duration) ([]queue.Message, error) {
	b.mu.Lock()
	var out []queue.Message
	for _, msg := range b.pending {
		if len(out) >= maxMessages {
			break
		}
		if b.inflight[msg.Receipt] || b.acks[msg.Receipt] > 0 || b.releases[msg.Receipt] > 0 {
			continue
		}
		b.inflight[msg.Receipt] = true
		out = append(out, msg)
	}
	b.mu.Unlock()

	if len(out) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Millisecond):
		}
	}
	return out, nil
}

func (b *memoryBackend) Acknowledge(_ context.Context, receipt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inflight[receipt] {
		return &queue.AckError{Queue: "memory", Receipt: receipt, Err: context.DeadlineExceeded}
	}
	delete(b.inflight, receipt)
	b.acks[receipt]++
	return nil
}

func (b *memoryBackend) Release(_ context.Context, receipt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, receipt)
	b.releases[receipt]++
	return nil
}

func (b *memoryBackend) ackCount(receipt string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks[receipt]
}

func (b *memoryBackend) releaseCount(receipt string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.releases[receipt]
}

func envelopeMessage(t *testing.T, id, source string, body []byte) queue.Message {
	t.Helper()
	env := relay.Envelope{
		SourceName: source,
		RawBody:    body,
		Headers:    map[string]string{"X-GitHub-Event": "push"},
		ReceivedAt: time.Now().UTC(),
	}
	data, err := env.Encode()
	require.NoError(t, err)
	return queue.Message{ID: id, Body: data, Receipt: "receipt-" + id, DeliveryAttempt: 1}
}

func forwarderConfig(target string) config.Forwarder {
	return config.Forwarder{
		TargetURL:     target,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Millisecond,
		Timeout:       time.Second,
		Workers:       1,
		BatchSize:     10,
		WaitTimeout:   10 * time.Millisecond,
	}
}

func runForwarder(t *testing.T, f *relay.Forwarder) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("forwarder did not stop")
		}
	}
}

func TestForwarderDelivery(t *testing.T) {
	t.Run("success - delivered message is acknowledged once", func(t *testing.T) {
		var attempts atomic.Int64
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			assert.Equal(t, "github", r.Header.Get("X-Webhook-Relay-Source"))
			assert.Equal(t, "push", r.Header.Get("X-GitHub-Event"))
			w.WriteHeader(http.StatusOK)
		}))
		defer target.Close()

		backend := newMemoryBackend(envelopeMessage(t, "m1", "github", []byte(`{"a":1}`)))
		forwarder := relay.NewForwarder(backend, forwarderConfig(target.URL), "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		assert.Eventually(t, func() bool {
			return backend.ackCount("receipt-m1") == 1
		}, 2*time.Second, 10*time.Millisecond)
		cancel()

		assert.Equal(t, int64(1), attempts.Load())
		assert.Equal(t, 1, backend.ackCount("receipt-m1"))
	})

	t.Run("success - body bytes reach the target verbatim", func(t *testing.T) {
		body := []byte(`{"ref":"refs/heads/main","commits":[]}`)
		received := make(chan []byte, 1)
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			received <- data
			w.WriteHeader(http.StatusNoContent)
		}))
		defer target.Close()

		backend := newMemoryBackend(envelopeMessage(t, "m1", "github", body))
		forwarder := relay.NewForwarder(backend, forwarderConfig(target.URL), "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		select {
		case got := <-received:
			assert.Equal(t, body, got)
		case <-time.After(2 * time.Second):
			t.Fatal("target never received the webhook")
		}
		cancel()
	})

	t.Run("retryable - 5xx exhausts the attempt budget and leaves the message", func(t *testing.T) {
		var attempts atomic.Int64
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer target.Close()

		backend := newMemoryBackend(envelopeMessage(t, "m1", "github", []byte(`{"a":1}`)))
		forwarder := relay.NewForwarder(backend, forwarderConfig(target.URL), "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		assert.Eventually(t, func() bool {
			return attempts.Load() == 4 // retry_attempts+1 total
		}, 2*time.Second, 10*time.Millisecond)
		cancel()

		assert.Equal(t, int64(4), attempts.Load())
		assert.Equal(t, 0, backend.ackCount("receipt-m1"))
		assert.Equal(t, 0, backend.releaseCount("receipt-m1"))
	})

	t.Run("permanent - 4xx is abandoned without retrying", func(t *testing.T) {
		var attempts atomic.Int64
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer target.Close()

		backend := newMemoryBackend(envelopeMessage(t, "m1", "github", []byte(`{"a":1}`)))
		forwarder := relay.NewForwarder(backend, forwarderConfig(target.URL), "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		assert.Eventually(t, func() bool {
			return backend.releaseCount("receipt-m1") == 1
		}, 2*time.Second, 10*time.Millisecond)
		cancel()

		assert.Equal(t, int64(1), attempts.Load())
		assert.Equal(t, 0, backend.ackCount("receipt-m1"))
	})

	t.Run("permanent - redirects are not followed as success", func(t *testing.T) {
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "/elsewhere")
			w.WriteHeader(http.StatusFound)
		}))
		defer target.Close()

		backend := newMemoryBackend(envelopeMessage(t, "m1", "github", []byte(`{"a":1}`)))
		forwarder := relay.NewForwarder(backend, forwarderConfig(target.URL), "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		assert.Eventually(t, func() bool {
			return backend.releaseCount("receipt-m1") == 1
		}, 2*time.Second, 10*time.Millisecond)
		cancel()

		assert.Equal(t, 0, backend.ackCount("receipt-m1"))
	})

	t.Run("undecodable - released for the backend to deal with", func(t *testing.T) {
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("target must not be called for an undecodable message")
		}))
		defer target.Close()

		backend := newMemoryBackend(queue.Message{ID: "m1", Body: []byte("garbage"), Receipt: "receipt-m1"})
		forwarder := relay.NewForwarder(backend, forwarderConfig(target.URL), "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		assert.Eventually(t, func() bool {
			return backend.releaseCount("receipt-m1") == 1
		}, 2*time.Second, 10*time.Millisecond)
		cancel()
	})

	t.Run("configured headers override forwarded originals", func(t *testing.T) {
		seen := make(chan http.Header, 1)
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen <- r.Header.Clone()
			w.WriteHeader(http.StatusOK)
		}))
		defer target.Close()

		cfg := forwarderConfig(target.URL)
		cfg.Headers = map[string]string{"Authorization": "Bearer internal", "X-GitHub-Event": "overridden"}

		backend := newMemoryBackend(envelopeMessage(t, "m1", "github", []byte(`{"a":1}`)))
		forwarder := relay.NewForwarder(backend, cfg, "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		select {
		case headers := <-seen:
			assert.Equal(t, "Bearer internal", headers.Get("Authorization"))
			assert.Equal(t, "overridden", headers.Get("X-GitHub-Event"))
		case <-time.After(2 * time.Second):
			t.Fatal("target never received the webhook")
		}
		cancel()
	})
}

func TestForwarderConcurrency(t *testing.T) {
	t.Run("each message is delivered exactly once across workers", func(t *testing.T) {
		const total = 20

		var mu sync.Mutex
		deliveries := make(map[string]int)
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			deliveries[r.Header.Get("X-Webhook-Relay-Id")]++
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer target.Close()

		msgs := make([]queue.Message, 0, total)
		for i := 0; i < total; i++ {
			msgs = append(msgs, envelopeMessage(t, "m"+string(rune('a'+i)), "github", []byte(`{"a":1}`)))
		}
		backend := newMemoryBackend(msgs...)

		cfg := forwarderConfig(target.URL)
		cfg.Workers = 4
		cfg.BatchSize = 3
		forwarder := relay.NewForwarder(backend, cfg, "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(deliveries) == total
		}, 5*time.Second, 10*time.Millisecond)
		cancel()

		mu.Lock()
		defer mu.Unlock()
		for _, msg := range msgs {
			assert.Equal(t, 1, deliveries[msg.ID], "message %s delivered more than once", msg.ID)
			assert.Equal(t, 1, backend.ackCount(msg.Receipt))
		}
	})

	t.Run("one slow message does not block the others", func(t *testing.T) {
		release := make(chan struct{})
		var fastDone atomic.Int64
		target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Webhook-Relay-Id") == "slow" {
				<-release
			} else {
				fastDone.Add(1)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer target.Close()

		backend := newMemoryBackend(
			envelopeMessage(t, "slow", "github", []byte(`{"a":1}`)),
			envelopeMessage(t, "fast-1", "github", []byte(`{"a":2}`)),
			envelopeMessage(t, "fast-2", "github", []byte(`{"a":3}`)),
		)

		cfg := forwarderConfig(target.URL)
		cfg.Workers = 2
		cfg.BatchSize = 1
		cfg.Timeout = 5 * time.Second
		forwarder := relay.NewForwarder(backend, cfg, "memory", metrics.Noop{}, zerolog.Nop())

		cancel := runForwarder(t, forwarder)
		assert.Eventually(t, func() bool {
			return fastDone.Load() == 2
		}, 2*time.Second, 10*time.Millisecond)
		close(release)
		assert.Eventually(t, func() bool {
			return backend.ackCount("receipt-slow") == 1
		}, 2*time.Second, 10*time.Millisecond)
		cancel()
	})
}
