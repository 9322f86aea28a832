package relay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kapicorp/webhook-relay/config"
	"github.com/kapicorp/webhook-relay/metrics"
	"github.com/kapicorp/webhook-relay/queue"
)

/* Forwarder drains the queue and delivers each envelope to the one configured
 * target. A bounded pool of workers each pulls a batch and drives every pulled
 * message's full attempt cycle to completion before settling it, so a single
 * message's attempts are strictly sequential while different messages proceed
 * concurrently
 */
type Forwarder struct {
	queue       queue.Receiver
	target      string
	targetLabel string
	headers     map[string]string

	retryAttempts int
	retryDelay    time.Duration
	workers       int
	batchSize     int
	waitTimeout   time.Duration

	client     *http.Client
	queueLabel string
	sink       metrics.Sink
	logger     zerolog.Logger
}

// NewForwarder creates a forwarder with dependency injection
func NewForwarder(receiver queue.Receiver, cfg config.Forwarder, queueLabel string, sink metrics.Sink, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		queue:         receiver,
		target:        cfg.TargetURL,
		targetLabel:   targetLabel(cfg.TargetURL),
		headers:       cfg.Headers,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		workers:       cfg.Workers,
		batchSize:     cfg.BatchSize,
		waitTimeout:   cfg.WaitTimeout,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// Redirects are a target misconfiguration, not something to chase
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		queueLabel:    queueLabel,
		sink:          sink,
		logger:        logger,
	}
}

// targetLabel reduces the target URL to host+path for metrics labels
func targetLabel(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Host + u.Path
}

/* Run blocks until ctx is cancelled, then drains: workers finish the attempt
 * cycle of every message they hold before returning, so acknowledgments are
 * never dropped mid-flight
 */
func (f *Forwarder) Run(ctx context.Context) {
	f.sink.Set(metrics.Up, metrics.Labels{"component": "forwarder"}, 1)
	defer f.sink.Set(metrics.Up, metrics.Labels{"component": "forwarder"}, 0)

	f.logger.Info().Str("target", f.target).Int("workers", f.workers).Msg("forwarder started")

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.worker(ctx)
		}()
	}
	wg.Wait()

	f.logger.Info().Msg("forwarder stopped")
}

func (f *Forwarder) worker(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := f.queue.Receive(ctx, f.batchSize, f.waitTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error().Err(err).Msg("receiving from queue")
			f.pause(ctx, time.Second)
			continue
		}

		for _, msg := range msgs {
			f.sink.Inc(metrics.QueueReceive, metrics.Labels{"queue": f.queueLabel})
			f.process(ctx, msg)
		}
	}
}

/* process drives one message through Received -> Attempting -> terminal state
 * Settlement runs on a context detached from shutdown so an attempt that is
 * already in flight can still be acknowledged cleanly
 */
func (f *Forwarder) process(ctx context.Context, msg queue.Message) {
	settleCtx := context.WithoutCancel(ctx)

	env, err := DecodeEnvelope(msg.Body)
	if err != nil {
		// Undeliverable as-is; leave it to the backend's redelivery/DLQ
		f.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable message")
		f.release(settleCtx, msg)
		return
	}

	for attempt := 1; attempt <= f.retryAttempts+1; attempt++ {
		out := f.attempt(settleCtx, env, msg.ID, attempt)

		switch out.Status {
		case Delivered:
			f.acknowledge(settleCtx, msg)
			f.sink.Inc(metrics.Forwarded, metrics.Labels{"target": f.targetLabel})
			f.logger.Info().
				Str("source", env.SourceName).
				Str("message_id", msg.ID).
				Int("status", out.HTTPStatus).
				Int("attempt", out.Attempt).
				Msg("webhook forwarded")
			return

		case Permanent:
			f.sink.Inc(metrics.ForwardErrs, metrics.Labels{"target": f.targetLabel, "code": out.Code()})
			f.logger.Error().
				Str("source", env.SourceName).
				Str("message_id", msg.ID).
				Int("status", out.HTTPStatus).
				Msg("target rejected webhook, abandoning")
			f.release(settleCtx, msg)
			return

		case Retryable:
			f.sink.Inc(metrics.ForwardErrs, metrics.Labels{"target": f.targetLabel, "code": out.Code()})
			if attempt == f.retryAttempts+1 {
				f.logger.Error().
					Str("source", env.SourceName).
					Str("message_id", msg.ID).
					Int("attempts", attempt).
					Msg("giving up, leaving message for redelivery")
				return
			}
			if !f.pause(ctx, f.retryDelay) {
				// Shutdown during backoff: abandon, the backend redelivers
				return
			}
			f.sink.Inc(metrics.ForwardRetries, metrics.Labels{"target": f.targetLabel})
		}
	}
}

// attempt issues one delivery request, bounded by the configured timeout
func (f *Forwarder) attempt(ctx context.Context, env Envelope, msgID string, attempt int) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.target, bytes.NewReader(env.RawBody))
	if err != nil {
		return Outcome{Status: Permanent, Err: err, Attempt: attempt}
	}

	// Configured headers win over the forwarded originals
	for key, value := range env.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("X-Webhook-Relay-Source", env.SourceName)
	req.Header.Set("X-Webhook-Relay-Id", msgID)

	start := time.Now()
	resp, err := f.client.Do(req)
	f.sink.Observe(metrics.ForwardSeconds, metrics.Labels{"target": f.targetLabel}, time.Since(start).Seconds())

	if err != nil {
		return Outcome{Status: Retryable, Err: err, Attempt: attempt}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return Outcome{Status: classify(resp.StatusCode), HTTPStatus: resp.StatusCode, Attempt: attempt}
}

// classify maps a target response status onto the delivery state machine
func classify(status int) Status {
	switch {
	case status >= 200 && status < 300:
		return Delivered
	case status >= 500:
		return Retryable
	default:
		return Permanent
	}
}

// acknowledge settles a delivered message; a stale receipt only means the
// message was already redelivered, which at-least-once semantics tolerate.
func (f *Forwarder) acknowledge(ctx context.Context, msg queue.Message) {
	if err := f.queue.Acknowledge(ctx, msg.Receipt); err != nil {
		f.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("acknowledge failed")
		return
	}
	f.sink.Inc(metrics.QueueAck, metrics.Labels{"queue": f.queueLabel})
}

// release hands the message back to the queue early where supported
func (f *Forwarder) release(ctx context.Context, msg queue.Message) {
	if err := f.queue.Release(ctx, msg.Receipt); err != nil {
		f.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("release failed")
	}
}

// pause sleeps without blocking other in-flight messages; false on shutdown
func (f *Forwarder) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
