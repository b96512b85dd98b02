package cache

import (
	"fmt"
	"net/http"
	"regexp"
	"sync"
)

// State of a cache generation
type State string

const (
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActive     State = "active"
	StateSuperseded State = "superseded"
)

// Generation is one versioned set of namespaces plus the routing table that
// serves from them
type Generation struct {
	Version  string
	Prefix   string
	Manifest Manifest

	routes    []Route
	cacheable []*regexp.Regexp
	state     State // guarded by Proxy.mu

	// requests and background refreshes still using this generation
	inflight sync.WaitGroup
}

func newGeneration(m Manifest) *Generation {
	return &Generation{
		Version:   m.Version,
		Prefix:    m.Prefix,
		Manifest:  m,
		routes:    compileRoutes(m.Routes),
		cacheable: compilePatterns(m.Cacheable),
		state:     StateInstalling,
	}
}

// Namespace returns the namespace name for kind, "<prefix>-<kind>-<version>"
func (g *Generation) Namespace(kind Kind) string {
	return fmt.Sprintf("%s-%s-%s", g.Prefix, kind, g.Version)
}

// Namespaces returns all namespace names owned by the generation
func (g *Generation) Namespaces() []string {
	out := make([]string, len(Kinds))
	for i, k := range Kinds {
		out[i] = g.Namespace(k)
	}
	return out
}

// Owns reports whether namespace belongs to the generation
func (g *Generation) Owns(namespace string) bool {
	for _, n := range g.Namespaces() {
		if n == namespace {
			return true
		}
	}
	return false
}

// match returns the first route matching r, or nil
func (g *Generation) match(r *http.Request) *Route {
	for i := range g.routes {
		if g.routes[i].Matcher.Match(r) {
			return &g.routes[i]
		}
	}
	return nil
}

// isCacheable reports whether a network response for key may be persisted
func (g *Generation) isCacheable(key string) bool {
	for _, re := range g.cacheable {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}
