package cache

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest describes one cache generation: what to pre-cache at install time
// and how to route requests once it is active
type Manifest struct {
	Version   string       `yaml:"version"`
	Prefix    string       `yaml:"prefix"`
	Static    []string     `yaml:"static"`
	External  []string     `yaml:"external"`
	Cacheable []string     `yaml:"cacheable"`
	Routes    []RouteSpec  `yaml:"routes"`
	Fallback  FallbackSpec `yaml:"fallback"`
}

// RouteSpec is the file form of a Route
type RouteSpec struct {
	Name       string   `yaml:"name"`
	Hosts      []string `yaml:"hosts,omitempty"`
	Prefixes   []string `yaml:"prefixes,omitempty"`
	Contains   []string `yaml:"contains,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
	Navigation bool     `yaml:"navigation,omitempty"`
	Strategy   Strategy `yaml:"strategy"`
	Namespace  Kind     `yaml:"namespace,omitempty"`
}

// FallbackSpec lists the cached roots tried when a navigation cannot be served
type FallbackSpec struct {
	Roots []string `yaml:"roots"`
}

// DefaultManifest mirrors the web app's shipped asset list
func DefaultManifest() Manifest {
	return Manifest{
		Version: "v5",
		Prefix:  "magazzino",
		Static: []string{
			"/", "/index.html", "/manifest.json", "/assets/styles/main.css", "/src/app.js",
			"/icon-192.png", "/icon-512.png",
		},
		External:  []string{"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.4.0/css/all.min.css"},
		Cacheable: []string{`\.css$`, `\.js$`, `\.json$`, `\.png$`, `\.jpg$`, `\.svg$`},
		Routes:    DefaultRoutes([]string{"api.airtable.com"}, []string{"/api/"}),
		Fallback:  FallbackSpec{Roots: []string{"/index.html", "/"}},
	}
}

// DefaultRoutes builds the standard routing table: bypass for the remote store
// and no-cache prefixes, network-first for navigation and /data/, cache-first
// for static assets
func DefaultRoutes(bypassHosts, noCache []string) []RouteSpec {
	var hosts, prefixes, contains []string
	hosts = append(hosts, bypassHosts...)
	for _, p := range noCache {
		switch {
		case strings.HasPrefix(p, "/"):
			prefixes = append(prefixes, p)
		case strings.Contains(p, "."):
			hosts = append(hosts, p)
		default:
			contains = append(contains, p)
		}
	}
	return []RouteSpec{
		{Name: "no-cache", Hosts: hosts, Prefixes: prefixes, Contains: contains, Strategy: StrategyBypass},
		{Name: "navigation", Navigation: true, Strategy: StrategyNetworkFirst, Namespace: KindStatic},
		{Name: "data", Prefixes: []string{"/data/"}, Strategy: StrategyNetworkFirst, Namespace: KindData},
		{
			Name:       "static",
			Extensions: []string{".css", ".js", ".mjs", ".json", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".woff", ".woff2", ".ttf"},
			Strategy:   StrategyCacheFirst,
			Namespace:  KindStatic,
		},
	}
}

// LoadManifest reads a YAML manifest file. Missing sections take defaults.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read cache manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse cache manifest: %w", err)
	}

	def := DefaultManifest()
	if m.Prefix == "" {
		m.Prefix = def.Prefix
	}
	if m.Routes == nil {
		m.Routes = def.Routes
	}
	if m.Cacheable == nil {
		m.Cacheable = def.Cacheable
	}
	if len(m.Fallback.Roots) == 0 {
		m.Fallback = def.Fallback
	}
	return m, m.Validate()
}

// Validate checks the manifest can be compiled into a generation
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("cache manifest: version is required")
	}
	if strings.ContainsAny(m.Version, " /") || strings.ContainsAny(m.Prefix, " /") {
		return fmt.Errorf("cache manifest: prefix and version must not contain spaces or slashes")
	}
	for _, p := range m.Cacheable {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("cache manifest: bad cacheable pattern %q: %w", p, err)
		}
	}
	for _, r := range m.Routes {
		switch r.Strategy {
		case StrategyBypass, StrategyNetworkFirst, StrategyCacheFirst:
		default:
			return fmt.Errorf("cache manifest: route %q has unknown strategy %q", r.Name, r.Strategy)
		}
		switch r.Namespace {
		case "", KindStatic, KindData, KindExternal:
		default:
			return fmt.Errorf("cache manifest: route %q has unknown namespace %q", r.Name, r.Namespace)
		}
	}
	return nil
}
