package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/kapicorp/webhook-relay/sources"
)

// DigestPrefix is the prefix GitHub-style senders put before the hex digest
const DigestPrefix = "sha256="

// Result is the outcome of verifying one inbound webhook
type Result int

const (
	// Authentic means the signature matched the configured secret
	Authentic Result = iota + 1
	// Unauthentic means the signature was missing or did not match
	Unauthentic
	// NotConfigured means the source has no secret; verification is skipped
	NotConfigured
)

// String returns the string representation of the result
func (r Result) String() string {
	switch r {
	case Authentic:
		return "authentic"
	case Unauthentic:
		return "unauthentic"
	case NotConfigured:
		return "not_configured"
	default:
		return "unknown"
	}
}

/* Verify decides whether an inbound webhook is authentic for its claimed source
 * Pure function of the source config, the request headers, and the exact body
 * bytes as received; comparisons are constant-time to avoid timing side-channels
 */
func Verify(src *sources.Source, headers http.Header, body []byte) Result {
	if src.Scheme == sources.None {
		return NotConfigured
	}

	value := headers.Get(src.SignatureHeader)
	if value == "" {
		return Unauthentic
	}

	switch src.Scheme {
	case sources.HMACSHA256:
		return verifyDigest(src.Secret, value, body)
	case sources.Token:
		return verifyToken(src.Secret, value)
	default:
		return Unauthentic
	}
}

// verifyDigest recomputes the HMAC-SHA256 hex digest of the body and compares
// it against the header value after stripping the "sha256=" prefix.
func verifyDigest(secret, value string, body []byte) Result {
	value = strings.TrimPrefix(value, DigestPrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(computed), []byte(value)) == 1 {
		return Authentic
	}
	return Unauthentic
}

// verifyToken compares the header value verbatim against the shared secret.
func verifyToken(secret, value string) Result {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(value)) == 1 {
		return Authentic
	}
	return Unauthentic
}
