package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kapicorp/webhook-relay/metrics"
	"github.com/kapicorp/webhook-relay/queue"
	"github.com/kapicorp/webhook-relay/relay/signature"
	"github.com/kapicorp/webhook-relay/sources"
)

/* Collector represents the ingest-side business logic
 * Uses pointer semantics as it's an API, not data
 */

// Ingestor defines the business operation behind the webhook endpoint
type Ingestor interface {
	Handle(ctx context.Context, sourceName string, headers http.Header, rawBody []byte) (string, error)
}

type Collector struct {
	sources    *sources.Loader
	queue      queue.Publisher
	queueLabel string
	sink       metrics.Sink
}

// NewCollector creates a collector with dependency injection
func NewCollector(loader *sources.Loader, publisher queue.Publisher, queueLabel string, sink metrics.Sink) *Collector {
	return &Collector{
		sources:    loader,
		queue:      publisher,
		queueLabel: queueLabel,
		sink:       sink,
	}
}

/* Handle verifies one inbound webhook and publishes it
 * Publishing is synchronous: a nil error means the message is durably queued.
 * Nothing is ever published for a webhook that failed verification
 */
func (c *Collector) Handle(ctx context.Context, sourceName string, headers http.Header, rawBody []byte) (string, error) {
	src, err := c.sources.Get(sourceName)
	if err != nil {
		return "", &UnknownSourceError{Source: sourceName}
	}

	c.sink.Inc(metrics.Received, metrics.Labels{"source": sourceName})

	if signature.Verify(src, headers, rawBody) == signature.Unauthentic {
		return "", &AuthenticationError{Source: sourceName}
	}

	envelope := Envelope{
		SourceName: sourceName,
		RawBody:    rawBody,
		Headers:    forwardedHeaders(src, headers),
		ReceivedAt: time.Now().UTC(),
	}

	data, err := envelope.Encode()
	if err != nil {
		return "", fmt.Errorf("encoding webhook from %s: %w", sourceName, err)
	}

	id, err := c.queue.Publish(ctx, data)
	if err != nil {
		c.sink.Inc(metrics.QueuePublishErrs, metrics.Labels{"queue": c.queueLabel})
		return "", err
	}

	c.sink.Inc(metrics.QueuePublish, metrics.Labels{"queue": c.queueLabel})
	return id, nil
}

// forwardedHeaders picks the header subset carried on the queue: the source's
// allowlist when configured, otherwise every original header.
func forwardedHeaders(src *sources.Source, headers http.Header) map[string]string {
	picked := make(map[string]string)

	if len(src.ForwardHeaders) == 0 {
		for key := range headers {
			picked[key] = headers.Get(key)
		}
		return picked
	}

	for _, key := range src.ForwardHeaders {
		if value := headers.Get(key); value != "" {
			picked[http.CanonicalHeaderKey(key)] = value
		}
	}
	return picked
}
