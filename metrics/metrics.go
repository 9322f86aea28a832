package metrics

/* Sink is the capability the pipelines use to report what happened
 * It is passed explicitly into the collector and forwarder at construction;
 * there is no process-wide registry
 */

// Metric names exposed by the relay, shared by both pipelines
const (
	Received         = "webhook_relay_received_total"
	QueuePublish     = "webhook_relay_queue_publish_total"
	QueuePublishErrs = "webhook_relay_queue_publish_errors_total"
	QueueReceive     = "webhook_relay_queue_receive_total"
	QueueAck         = "webhook_relay_queue_ack_total"
	Forwarded        = "webhook_relay_forward_total"
	ForwardErrs      = "webhook_relay_forward_errors_total"
	ForwardRetries   = "webhook_relay_forward_retry_total"
	ForwardSeconds   = "webhook_relay_forward_seconds"
	Up               = "webhook_relay_up"
)

// Labels tags one observation, e.g. {"source": "github"}
type Labels map[string]string

// Sink receives named counter, histogram, and gauge observations
type Sink interface {
	// Inc increments the named counter by one
	Inc(name string, labels Labels)

	// Observe records one value on the named histogram
	Observe(name string, labels Labels, value float64)

	// Set records the current value of the named gauge
	Set(name string, labels Labels, value float64)
}

// Noop discards every observation; used when metrics are disabled and in tests
type Noop struct{}

func (Noop) Inc(string, Labels)              {}
func (Noop) Observe(string, Labels, float64) {}
func (Noop) Set(string, Labels, float64)     {}
