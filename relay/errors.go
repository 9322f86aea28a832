package relay

import "fmt"

// UnknownSourceError reports a webhook for a source that is not configured.
// Terminal per-request; mapped to 404 at the HTTP layer and never retried.
type UnknownSourceError struct {
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown webhook source: %s", e.Source)
}

// AuthenticationError reports a webhook whose signature was missing or wrong.
// Terminal per-request; mapped to 401 and nothing is published.
type AuthenticationError struct {
	Source string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("invalid signature for source %s", e.Source)
}
