package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache status header values
const (
	CacheHeader = "X-Cache"
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
)

// EventActivated is broadcast when a generation becomes active
const EventActivated = "cache.activated"

// ErrNothingWaiting is returned by Activate when no generation is waiting
var ErrNothingWaiting = errors.New("no cache generation waiting for activation")

// Notifier receives cache lifecycle events
type Notifier interface {
	Notify(event string, payload any)
}

// Options configure a Proxy
type Options struct {
	// Origin resolves manifest paths and is the upstream for ServeHTTP
	Origin *url.URL
	// Transport performs network requests; nil uses http.DefaultTransport
	Transport http.RoundTripper
	// BypassHosts are always network-only, ahead of any manifest route
	BypassHosts []string
	// NoCachePrefixes are network-only paths for requests no active route
	// matches, e.g. before the first generation is installed
	NoCachePrefixes []string
	// ManualActivation keeps installed generations waiting until skip-waiting
	ManualActivation bool
	Notifier         Notifier
}

// Proxy intercepts outbound requests and serves them per route strategy from
// versioned cache generations. It is both an http.RoundTripper (for clients
// inside the process) and an http.Handler (for the web app).
type Proxy struct {
	store       Store
	transport   http.RoundTripper
	origin      *url.URL
	bypassHosts []string
	noCache     []string
	manual      bool
	notifier    Notifier

	installMu sync.Mutex
	refreshes singleflight.Group

	// mu is the activation barrier: requests pick their generation under RLock,
	// activation and clearing hold Lock
	mu      sync.RWMutex
	active  *Generation
	waiting *Generation
}

// NewProxy creates a proxy with no active generation; requests pass straight
// through until Install succeeds
func NewProxy(store Store, opts Options) *Proxy {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Proxy{
		store:       store,
		transport:   transport,
		origin:      opts.Origin,
		bypassHosts: opts.BypassHosts,
		noCache:     opts.NoCachePrefixes,
		manual:      opts.ManualActivation,
		notifier:    opts.Notifier,
	}
}

// RoundTrip implements http.RoundTripper
func (p *Proxy) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return p.transport.RoundTrip(req)
	}
	if p.isBypassHost(req) {
		return p.bypass(req)
	}

	p.mu.RLock()
	g := p.active
	var route *Route
	if g != nil {
		route = g.match(req)
		if route != nil && route.Strategy != StrategyBypass {
			g.inflight.Add(1)
		}
	}
	p.mu.RUnlock()

	if route == nil {
		if p.isNoCachePath(req) {
			return p.bypass(req)
		}
		return p.transport.RoundTrip(req)
	}

	switch route.Strategy {
	case StrategyNetworkFirst:
		defer g.inflight.Done()
		return p.networkFirst(g, route, req)
	case StrategyCacheFirst:
		defer g.inflight.Done()
		return p.cacheFirst(g, route, req)
	default:
		return p.bypass(req)
	}
}

// ServeHTTP forwards r to the origin through the proxy's routing
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.origin == nil {
		http.Error(w, "cache proxy has no origin", http.StatusBadGateway)
		return
	}

	out := r.Clone(r.Context())
	out.URL = p.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	out.Host = out.URL.Host
	out.RequestURI = ""
	out.Header.Del("Connection")

	resp, err := p.RoundTrip(out)
	if err != nil {
		log.Printf("❌ Proxy error for %s: %v", r.URL.Path, err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (p *Proxy) isBypassHost(req *http.Request) bool {
	host := strings.ToLower(req.URL.Hostname())
	for _, h := range p.bypassHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (p *Proxy) isNoCachePath(req *http.Request) bool {
	for _, prefix := range p.noCache {
		if strings.HasPrefix(req.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// bypass goes to the network only. A transport failure becomes a flagged
// offline payload; any network answer is returned as is.
func (p *Proxy) bypass(req *http.Request) (*http.Response, error) {
	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, err
		}
		log.Printf("📡 Offline, no-cache request to %s failed: %v", req.URL.Host, err)
		return offlineJSON(req, "Impossibile connettersi al servizio remoto. Verifica la connessione."), nil
	}
	return resp, nil
}

// networkFirst tries the network and refreshes the cache on success. Otherwise
// it falls back to the cached entry, then the cached roots for navigations,
// then the network's own answer, then a synthesized offline response.
func (p *Proxy) networkFirst(g *Generation, route *Route, req *http.Request) (*http.Response, error) {
	key := requestKey(req)

	resp, err := p.transport.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusOK {
		return p.storeResponse(g, p.namespaceFor(g, route, req), key, resp), nil
	}
	if err != nil && req.Context().Err() != nil {
		return nil, err
	}

	if entry := p.lookup(g, key); entry != nil {
		closeBody(resp)
		return entryResponse(req, entry), nil
	}
	navigation := IsNavigation(req)
	if navigation {
		for _, root := range g.Manifest.Fallback.Roots {
			if entry := p.lookup(g, p.resolve(root)); entry != nil {
				closeBody(resp)
				return entryResponse(req, entry), nil
			}
		}
	}

	if err == nil {
		return resp, nil
	}
	log.Printf("📡 Offline, no cached copy of %s", key)
	if navigation {
		return offlineHTML(req), nil
	}
	return offlineJSON(req, "Connessione non disponibile"), nil
}

// cacheFirst serves a cached entry immediately and refreshes it in the
// background, one refresh per key at a time. On a miss the network answer is persisted only when the URL
// matches a cacheable pattern.
func (p *Proxy) cacheFirst(g *Generation, route *Route, req *http.Request) (*http.Response, error) {
	key := requestKey(req)

	if entry := p.lookup(g, key); entry != nil {
		g.inflight.Add(1)
		done := p.refreshes.DoChan(g.Version+" "+key, func() (any, error) {
			p.refresh(g, route, req)
			return nil, nil
		})
		go func() {
			<-done
			g.inflight.Done()
		}()
		return entryResponse(req, entry), nil
	}

	resp, err := p.transport.RoundTrip(req)
	if err == nil {
		if resp.StatusCode == http.StatusOK && g.isCacheable(key) {
			return p.storeResponse(g, p.namespaceFor(g, route, req), key, resp), nil
		}
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}

	if IsImage(req) {
		return offlineImage(req), nil
	}
	return offlineNotFound(req), nil
}

func (p *Proxy) refresh(g *Generation, route *Route, req *http.Request) {
	bg := req.Clone(context.WithoutCancel(req.Context()))
	resp, err := p.transport.RoundTrip(bg)
	if err != nil {
		return
	}
	if resp.StatusCode != http.StatusOK {
		closeBody(resp)
		return
	}
	closeBody(p.storeResponse(g, p.namespaceFor(g, route, req), requestKey(req), resp))
}

// storeResponse persists resp under key and returns an equivalent response
// whose body can still be read
func (p *Proxy) storeResponse(g *Generation, namespace, key string, resp *http.Response) *http.Response {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp
	}

	entry := &Entry{
		Key:        key,
		Generation: g.Version,
		Status:     resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now().UTC(),
	}
	if err := p.store.Put(namespace, entry); err != nil {
		log.Printf("⚠️ Failed to cache %s: %v", key, err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.Header.Set(CacheHeader, cacheMiss)
	return resp
}

// lookup searches the generation's namespaces in order
func (p *Proxy) lookup(g *Generation, key string) *Entry {
	for _, ns := range g.Namespaces() {
		entry, err := p.store.Get(ns, key)
		if err == nil {
			return entry
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("⚠️ Cache read failed for %s: %v", key, err)
		}
	}
	return nil
}

func (p *Proxy) namespaceFor(g *Generation, route *Route, req *http.Request) string {
	if p.origin != nil && !strings.EqualFold(req.URL.Host, p.origin.Host) {
		return g.Namespace(KindExternal)
	}
	return g.Namespace(route.Namespace)
}

func (p *Proxy) resolve(resource string) string {
	u, err := url.Parse(resource)
	if err != nil {
		return resource
	}
	if p.origin != nil {
		u = p.origin.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String()
}

func requestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	return u.String()
}

func entryResponse(req *http.Request, e *Entry) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(CacheHeader, cacheHit)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
