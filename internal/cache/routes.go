package cache

import (
	"net/http"
	"path"
	"regexp"
	"strings"
)

// Strategy selects how a matched request is served
type Strategy string

const (
	StrategyBypass       Strategy = "bypass"
	StrategyNetworkFirst Strategy = "network-first"
	StrategyCacheFirst   Strategy = "cache-first"
)

// Kind names one of a generation's namespaces
type Kind string

const (
	KindStatic   Kind = "static"
	KindData     Kind = "data"
	KindExternal Kind = "external"
)

// Kinds lists every namespace kind of a generation
var Kinds = []Kind{KindStatic, KindData, KindExternal}

// Matcher decides whether a route applies to a request
type Matcher interface {
	Match(r *http.Request) bool
}

// MatcherFunc adapts a function to Matcher
type MatcherFunc func(r *http.Request) bool

func (f MatcherFunc) Match(r *http.Request) bool { return f(r) }

// Route is one entry of the ordered routing table
type Route struct {
	Name      string
	Matcher   Matcher
	Strategy  Strategy
	Namespace Kind
}

// compileRoutes turns file specs into routes. Empty criteria never match.
func compileRoutes(specs []RouteSpec) []Route {
	routes := make([]Route, 0, len(specs))
	for _, spec := range specs {
		ns := spec.Namespace
		if ns == "" {
			ns = KindStatic
		}
		routes = append(routes, Route{
			Name:      spec.Name,
			Matcher:   MatcherFunc(func(r *http.Request) bool { return matchSpec(spec, r) }),
			Strategy:  spec.Strategy,
			Namespace: ns,
		})
	}
	return routes
}

func matchSpec(spec RouteSpec, r *http.Request) bool {
	if spec.Navigation && IsNavigation(r) {
		return true
	}
	host := strings.ToLower(r.URL.Hostname())
	for _, h := range spec.Hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	for _, p := range spec.Prefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	for _, c := range spec.Contains {
		if strings.Contains(r.URL.String(), c) {
			return true
		}
	}
	if len(spec.Extensions) > 0 {
		ext := strings.ToLower(path.Ext(r.URL.Path))
		for _, e := range spec.Extensions {
			if ext == strings.ToLower(e) {
				return true
			}
		}
	}
	return false
}

// IsNavigation reports whether r loads an HTML entry point
func IsNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return true
	}
	p := r.URL.Path
	return p == "" || p == "/" || strings.HasSuffix(p, ".html")
}

// IsImage reports whether r expects an image
func IsImage(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Dest") == "image" {
		return true
	}
	switch strings.ToLower(path.Ext(r.URL.Path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico":
		return true
	}
	return strings.HasPrefix(r.Header.Get("Accept"), "image/")
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}
