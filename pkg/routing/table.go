// Package routing maps inbound URL paths to named backend descriptors.
//
// The table is built once from configuration and is immutable afterwards;
// concurrent readers need no locking.
package routing

import (
	"fmt"
	"sort"
	"strings"

	"arunlabs/synapse/pkg/config"
)

// TimeoutClass selects a per-call deadline for outbound backend requests.
type TimeoutClass string

const (
	ClassLLM        TimeoutClass = "llm"
	ClassEmbeddings TimeoutClass = "embeddings"
	ClassTTS        TimeoutClass = "tts"
	ClassSTT        TimeoutClass = "stt"
	ClassSpeaker    TimeoutClass = "speaker"
	ClassAudio      TimeoutClass = "audio"
	ClassDefault    TimeoutClass = "default"
)

// Backend describes one upstream service. Immutable after table build.
type Backend struct {
	// Name is the registry key, used for circuit breaker identity and
	// health reporting.
	Name string

	// BaseURL is the backend's base URL without a trailing slash.
	BaseURL string

	// Type tags the backend for proxy translation rules.
	Type string

	// HealthPath is the backend's health endpoint path.
	HealthPath string

	// Timeout is the timeout class applied to calls to this backend.
	Timeout TimeoutClass
}

// HealthURL returns the absolute URL of the backend's health endpoint.
func (b *Backend) HealthURL() string {
	return b.BaseURL + b.HealthPath
}

type route struct {
	pattern string // without the trailing /* for prefixes
	prefix  bool
	backend *Backend
}

// Table is the static routing table: URL path patterns to backends.
// Exact patterns win over wildcard prefixes; among prefixes the longest
// match wins.
type Table struct {
	exact    map[string]*Backend
	prefixes []route // sorted by descending pattern length
	backends map[string]*Backend
}

// NewTable builds a routing table from configuration. The configuration is
// assumed validated; unknown route targets are still reported as errors to
// keep the table safe when constructed directly in tests.
func NewTable(cfg *config.Config) (*Table, error) {
	t := &Table{
		exact:    make(map[string]*Backend),
		backends: make(map[string]*Backend),
	}

	for name, bc := range cfg.Backends {
		t.backends[name] = &Backend{
			Name:       name,
			BaseURL:    strings.TrimSuffix(bc.URL, "/"),
			Type:       bc.Type,
			HealthPath: bc.Health,
			Timeout:    classForType(bc.Type),
		}
	}

	for pattern, target := range cfg.Routes {
		backend, ok := t.backends[target]
		if !ok {
			return nil, fmt.Errorf("route %q targets unknown backend %q", pattern, target)
		}
		if trimmed, isPrefix := strings.CutSuffix(pattern, "/*"); isPrefix {
			t.prefixes = append(t.prefixes, route{pattern: trimmed, prefix: true, backend: backend})
		} else {
			t.exact[pattern] = backend
		}
	}

	sort.Slice(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].pattern) > len(t.prefixes[j].pattern)
	})

	return t, nil
}

// Resolve returns the backend serving the given path, or false when no
// route matches. Exact routes take precedence over wildcard prefixes.
func (t *Table) Resolve(path string) (*Backend, bool) {
	if b, ok := t.exact[path]; ok {
		return b, true
	}
	for _, r := range t.prefixes {
		if path == r.pattern || strings.HasPrefix(path, r.pattern+"/") {
			return r.backend, true
		}
	}
	return nil, false
}

// ResolvePath resolves a backend together with the path to forward to it.
// Exact routes forward the path unchanged; prefix routes forward only the
// remainder after the prefix, matching how the upstream services shape
// their own routes.
func (t *Table) ResolvePath(path string) (*Backend, string, bool) {
	if b, ok := t.exact[path]; ok {
		return b, path, true
	}
	for _, r := range t.prefixes {
		if path == r.pattern {
			return r.backend, "/", true
		}
		if strings.HasPrefix(path, r.pattern+"/") {
			return r.backend, path[len(r.pattern):], true
		}
	}
	return nil, "", false
}

// Backend returns the named backend descriptor, or false if unknown.
func (t *Table) Backend(name string) (*Backend, bool) {
	b, ok := t.backends[name]
	return b, ok
}

// Backends returns all backend descriptors keyed by name. The returned map
// is shared; callers must not mutate it.
func (t *Table) Backends() map[string]*Backend {
	return t.backends
}

func classForType(backendType string) TimeoutClass {
	switch backendType {
	case "llm":
		return ClassLLM
	case "embeddings":
		return ClassEmbeddings
	case "tts":
		return ClassTTS
	case "stt":
		return ClassSTT
	case "speaker":
		return ClassSpeaker
	case "audio":
		return ClassAudio
	default:
		return ClassDefault
	}
}
