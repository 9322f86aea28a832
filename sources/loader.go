package sources

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* Loader manages the static source configuration
 * Sources are resolved and validated once at startup and then
 * only read, so lookups need no locking
 */

// Config represents a single source entry in the configuration file
type Config struct {
	Name            string   `yaml:"name" mapstructure:"name"`
	Secret          string   `yaml:"secret" mapstructure:"secret"`
	Scheme          string   `yaml:"scheme" mapstructure:"scheme"`
	SignatureHeader string   `yaml:"signature_header" mapstructure:"signature_header"`
	ForwardHeaders  []string `yaml:"forward_headers" mapstructure:"forward_headers"`
}

// File represents the structure of a standalone sources YAML file
type File struct {
	Sources []Config `yaml:"sources"`
}

// Loader holds the loaded sources
type Loader struct {
	sources map[string]*Source
}

// NewLoader builds a loader from already-parsed source configs,
// resolving the verification scheme for each source exactly once.
func NewLoader(configs []Config) (*Loader, error) {
	l := &Loader{
		sources: make(map[string]*Source),
	}

	for _, sc := range configs {
		source, err := resolve(sc)
		if err != nil {
			return nil, err
		}
		if _, exists := l.sources[source.Name]; exists {
			return nil, fmt.Errorf("duplicate source: %s", source.Name)
		}
		l.sources[source.Name] = source
	}

	return l, nil
}

// Load reads and parses a standalone sources YAML file
func Load(filePath string) (*Loader, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading sources file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing sources YAML: %w", err)
	}

	return NewLoader(file.Sources)
}

// resolve converts a Config into a Source, applying scheme and
// signature header defaults for the common GitHub/GitLab shapes.
func resolve(sc Config) (*Source, error) {
	scheme := NewScheme(sc.Scheme)
	if sc.Scheme == "" && sc.Secret != "" {
		scheme = HMACSHA256
	}

	header := sc.SignatureHeader
	if header == "" {
		switch scheme {
		case HMACSHA256:
			header = "X-Hub-Signature-256"
		case Token:
			header = "X-Gitlab-Token"
		}
	}

	source := &Source{
		Name:            sc.Name,
		Secret:          sc.Secret,
		SignatureHeader: header,
		Scheme:          scheme,
		ForwardHeaders:  sc.ForwardHeaders,
	}

	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("validating source: %w", err)
	}

	return source, nil
}

// Get retrieves a source by its name
func (l *Loader) Get(name string) (*Source, error) {
	source, exists := l.sources[name]
	if !exists {
		return nil, fmt.Errorf("source not found: %s", name)
	}
	return source, nil
}

// List returns all loaded sources
func (l *Loader) List() []*Source {
	sources := make([]*Source, 0, len(l.sources))
	for _, source := range l.sources {
		sources = append(sources, source)
	}
	return sources
}

// Exists checks if a source name is configured
func (l *Loader) Exists(name string) bool {
	_, exists := l.sources[name]
	return exists
}
