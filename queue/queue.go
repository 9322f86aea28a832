package queue

import (
	"context"
	"fmt"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * The collector only publishes; the forwarder only receives and settles.
 * Backend composes them for the startup factory and adapters.
 */

// Message is one received queue entry: the envelope bytes plus the
// backend-specific delivery metadata needed to settle it.
type Message struct {
	// ID is the backend-assigned message identifier
	ID string

	// Body is the serialized envelope, byte-identical to what was published
	Body []byte

	// Receipt is the opaque settlement token; meaningless after acknowledgment
	Receipt string

	// DeliveryAttempt is the backend-maintained delivery counter, starting at 1
	DeliveryAttempt int
}

// Publisher provides the publish side of a queue backend
type Publisher interface {
	/* Publish places the body on the queue and returns the backend message ID
	 * The call returns only once the message is durably queued; failures are
	 * reported as *PublishError and left to the caller to handle
	 */
	Publish(ctx context.Context, body []byte) (string, error)
}

// Receiver provides the consume side of a queue backend
type Receiver interface {
	/* Receive pulls up to max messages, blocking up to wait for at least one
	 * An empty slice on timeout is not an error. A message is returned to at
	 * most one concurrent caller within the backend's visibility window
	 */
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)

	/* Acknowledge permanently removes the message identified by receipt
	 * A stale or expired receipt fails with *AckError; the message has then
	 * already been made redeliverable and the error is safe to swallow
	 */
	Acknowledge(ctx context.Context, receipt string) error

	/* Release returns an unprocessable message to the queue before its
	 * visibility timeout expires. Backends without an early-release primitive
	 * treat this as a no-op and rely on natural timeout expiry
	 */
	Release(ctx context.Context, receipt string) error
}

// Backend is the full capability set every adapter implements
type Backend interface {
	Publisher
	Receiver
	Close() error
}

// PublishError reports a transport or auth failure while publishing
type PublishError struct {
	Queue string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing to %s: %v", e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// AckError reports a failed acknowledgment, typically a stale receipt
type AckError struct {
	Queue   string
	Receipt string
	Err     error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("acknowledging on %s: %v", e.Queue, e.Err)
}

func (e *AckError) Unwrap() error {
	return e.Err
}
