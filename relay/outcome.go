package relay

import "fmt"

/* Status classifies the result of one delivery attempt
 * Delivered is terminal; Retryable failures consume the in-process attempt
 * budget; Permanent failures abandon the message immediately
 */
type Status int

const (
	Delivered Status = iota + 1
	Retryable
	Permanent
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Retryable:
		return "retryable"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the transient result of one delivery attempt, used only to
// decide the next action.
type Outcome struct {
	Status     Status
	HTTPStatus int
	Err        error
	Attempt    int
}

// Code returns the metrics label for the outcome: the HTTP status when the
// target answered, "error" for network and timeout failures.
func (o Outcome) Code() string {
	if o.HTTPStatus > 0 {
		return fmt.Sprintf("%d", o.HTTPStatus)
	}
	return "error"
}
