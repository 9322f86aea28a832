package sources

import "fmt"

/* Scheme represents how a source's webhooks are authenticated
 * None skips verification entirely (e.g. custom integrations without signatures)
 * HMACSHA256 is the GitHub-style hex digest with a "sha256=" prefix
 * Token is the GitLab-style verbatim shared token header
 */
type Scheme int

const (
	None Scheme = iota + 1
	HMACSHA256
	Token
)

// String returns the string representation of the scheme
func (s Scheme) String() string {
	switch s {
	case None:
		return "none"
	case HMACSHA256:
		return "hmac-sha256"
	case Token:
		return "token"
	default:
		return "unknown"
	}
}

// NewScheme creates a Scheme from a string
func NewScheme(str string) Scheme {
	switch str {
	case "none", "":
		return None
	case "hmac-sha256":
		return HMACSHA256
	case "token":
		return Token
	default:
		return Scheme(0)
	}
}

// Validate checks if the scheme is valid
func (s Scheme) Validate() error {
	if s < None || s > Token {
		return fmt.Errorf("invalid scheme: %d", s)
	}
	return nil
}
