package sources

import "fmt"

/* Source represents a trusted webhook sender configuration
 * Maps an inbound path segment to the secret material used to
 * authenticate calls claiming to come from that sender
 */
type Source struct {
	Name            string
	Secret          string
	SignatureHeader string
	Scheme          Scheme
	ForwardHeaders  []string // Headers copied onto the queue; empty means all
}

// Validate checks if the source configuration is valid
func (s *Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if err := s.Scheme.Validate(); err != nil {
		return fmt.Errorf("invalid scheme for source %s: %w", s.Name, err)
	}
	if s.Scheme == None && s.Secret != "" {
		return fmt.Errorf("source %s has a secret but no verification scheme", s.Name)
	}
	if s.Scheme != None && s.Secret == "" {
		return fmt.Errorf("source %s requires a secret for scheme %s", s.Name, s.Scheme)
	}
	if s.Scheme != None && s.SignatureHeader == "" {
		return fmt.Errorf("source %s requires a signature header for scheme %s", s.Name, s.Scheme)
	}
	return nil
}
