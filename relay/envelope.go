package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

/* Envelope is the unit placed on the queue: a verified webhook's exact body
 * bytes plus the headers chosen for forwarding
 * Uses value semantics as it represents data, not behavior
 */
type Envelope struct {
	SourceName string            `json:"source_name"`
	RawBody    []byte            `json:"raw_body"`
	Headers    map[string]string `json:"headers,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

/* The wire format is a flat JSON object; RawBody rides as base64 so the body
 * bytes survive the queue untouched, and unknown extra fields are ignored so
 * collector and forwarder can be deployed at different versions
 */

// Encode serializes the envelope for the queue. Encoding happens exactly once,
// in the collector; the body bytes are never re-serialized after this.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope deserializes a queued envelope, once per delivery attempt
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if e.SourceName == "" {
		return Envelope{}, fmt.Errorf("decoding envelope: missing source_name")
	}
	return e, nil
}
