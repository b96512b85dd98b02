package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testOrigin serves a mutable set of paths and counts hits
type testOrigin struct {
	srv *httptest.Server

	mu     sync.Mutex
	bodies map[string]string
	status map[string]int
	hits   map[string]int
	slow   chan struct{} // /data/slow blocks until closed
	inSlow chan struct{}
}

func newTestOrigin(t *testing.T) *testOrigin {
	t.Helper()
	o := &testOrigin{
		bodies: map[string]string{
			"/":           "<html>root</html>",
			"/index.html": "<html>index</html>",
			"/app.css":    "body{color:red}",
			"/app.js":     "console.log(1)",
			"/font.woff2": "font",
		},
		status: map[string]int{},
		hits:   map[string]int{},
		slow:   make(chan struct{}),
		inSlow: make(chan struct{}, 1),
	}
	o.srv = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *testOrigin) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/data/slow" {
		o.inSlow <- struct{}{}
		<-o.slow
	}

	o.mu.Lock()
	o.hits[r.URL.Path]++
	body, ok := o.bodies[r.URL.Path]
	code := o.status[r.URL.Path]
	o.mu.Unlock()

	if code != 0 {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = io.WriteString(w, body)
}

func (o *testOrigin) set(path, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies[path] = body
}

func (o *testOrigin) setStatus(path string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status[path] = code
}

func (o *testOrigin) hitCount(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

// switchTransport fails every request while down is set
type switchTransport struct {
	down atomic.Bool
}

func (s *switchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if s.down.Load() {
		return nil, errors.New("network unreachable")
	}
	return http.DefaultTransport.RoundTrip(req)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(event string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

type fixture struct {
	origin    *testOrigin
	transport *switchTransport
	store     *MemoryStore
	proxy     *Proxy
	notifier  *recordingNotifier
}

func newFixture(t *testing.T, manual bool) *fixture {
	t.Helper()
	o := newTestOrigin(t)
	u, err := url.Parse(o.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		origin:    o,
		transport: &switchTransport{},
		store:     NewMemoryStore(),
		notifier:  &recordingNotifier{},
	}
	f.proxy = NewProxy(f.store, Options{
		Origin:           u,
		Transport:        f.transport,
		ManualActivation: manual,
		Notifier:         f.notifier,
	})
	return f
}

func testManifest(version string) Manifest {
	return Manifest{
		Version:   version,
		Prefix:    "test",
		Static:    []string{"/index.html", "/app.css"},
		Cacheable: []string{`\.css$`, `\.js$`, `\.json$`},
		Routes:    DefaultRoutes(nil, []string{"/api/"}),
		Fallback:  FallbackSpec{Roots: []string{"/index.html", "/"}},
	}
}

func (f *fixture) install(t *testing.T, version string) *Generation {
	t.Helper()
	g, err := f.proxy.Install(context.Background(), testManifest(version))
	if err != nil {
		t.Fatalf("Install(%s) failed: %v", version, err)
	}
	return g
}

func (f *fixture) get(t *testing.T, path string, header ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.origin.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := f.proxy.RoundTrip(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestInstallPrecachesAndActivates(t *testing.T) {
	f := newFixture(t, false)
	g := f.install(t, "v1")

	if f.proxy.Active() != g || g.state != StateActive {
		t.Fatalf("first install should activate immediately, state %s", g.state)
	}
	keys, _ := f.store.Keys("test-static-v1")
	if len(keys) != 2 {
		t.Errorf("static namespace has %d entries, want 2: %v", len(keys), keys)
	}
	if f.notifier.count(EventActivated) != 1 {
		t.Errorf("expected one activation event")
	}

	// same version again is a no-op
	again := f.install(t, "v1")
	if again != g {
		t.Error("reinstalling the active version should return the active generation")
	}
}

func TestCacheFirstServesHitAndRefreshes(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	f.origin.set("/app.css", "body{color:blue}")

	resp, body := f.get(t, "/app.css")
	if resp.Header.Get(CacheHeader) != cacheHit || body != "body{color:red}" {
		t.Fatalf("first read should be the cached copy, got %q (%s)", body, resp.Header.Get(CacheHeader))
	}

	f.proxy.Quiesce()

	_, body = f.get(t, "/app.css")
	if body != "body{color:blue}" {
		t.Errorf("background refresh should have updated the entry, got %q", body)
	}
}

// gatedTransport holds every request until release is closed
type gatedTransport struct {
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	g.calls.Add(1)
	<-g.release
	return http.DefaultTransport.RoundTrip(req)
}

func TestCacheFirstCollapsesRefreshes(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	gate := &gatedTransport{release: make(chan struct{})}
	f.proxy.transport = gate

	for i := 0; i < 8; i++ {
		resp, _ := f.get(t, "/app.css")
		if resp.Header.Get(CacheHeader) != cacheHit {
			t.Fatalf("hit %d was not served from cache", i)
		}
	}
	close(gate.release)
	f.proxy.Quiesce()

	if n := gate.calls.Load(); n != 1 {
		t.Errorf("origin fetched %d times for 8 hits during one refresh, want 1", n)
	}

	f.get(t, "/app.css")
	f.proxy.Quiesce()
	if n := gate.calls.Load(); n != 2 {
		t.Errorf("a hit after the refresh finished should refresh again, got %d fetches", n)
	}
}

func TestCacheFirstPersistsOnlyCacheable(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")

	f.get(t, "/font.woff2")
	f.get(t, "/app.js")

	if _, err := f.store.Get("test-static-v1", f.origin.srv.URL+"/font.woff2"); !errors.Is(err, ErrCacheMiss) {
		t.Error("font does not match a cacheable pattern and must not be stored")
	}
	if _, err := f.store.Get("test-static-v1", f.origin.srv.URL+"/app.js"); err != nil {
		t.Errorf("script should have been stored: %v", err)
	}
}

func TestCacheFirstOffline(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	f.transport.down.Store(true)

	resp, body := f.get(t, "/app.css")
	if resp.StatusCode != http.StatusOK || body != "body{color:red}" {
		t.Errorf("cached asset should be served offline, got %d %q", resp.StatusCode, body)
	}

	resp, _ = f.get(t, "/missing.css")
	if resp.StatusCode != http.StatusNotFound || !IsOffline(resp) {
		t.Errorf("uncached asset offline: got %d offline=%v", resp.StatusCode, IsOffline(resp))
	}

	resp, body = f.get(t, "/logo.png")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Errorf("image offline should get placeholder, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(body, "<svg") {
		t.Errorf("placeholder body missing svg: %q", body)
	}
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	f.origin.set("/data/items.json", `{"n":1}`)

	resp, _ := f.get(t, "/data/items.json")
	if resp.Header.Get(CacheHeader) != cacheMiss {
		t.Errorf("online read should come from network, got %q", resp.Header.Get(CacheHeader))
	}
	if _, err := f.store.Get("test-data-v1", f.origin.srv.URL+"/data/items.json"); err != nil {
		t.Fatalf("data response should be stored in the data namespace: %v", err)
	}

	f.origin.set("/data/items.json", `{"n":2}`)
	f.transport.down.Store(true)

	resp, body := f.get(t, "/data/items.json")
	if resp.Header.Get(CacheHeader) != cacheHit || body != `{"n":1}` {
		t.Errorf("offline read should serve the stored copy, got %q", body)
	}

	resp, body = f.get(t, "/reports/unknown.html")
	if resp.StatusCode != http.StatusOK || body != "<html>index</html>" {
		t.Errorf("navigation offline should fall back to cached index, got %d %q", resp.StatusCode, body)
	}

	resp, _ = f.get(t, "/data/other.json")
	if resp.StatusCode != http.StatusServiceUnavailable || !IsOffline(resp) {
		t.Errorf("uncached data offline: got %d", resp.StatusCode)
	}
}

func TestNetworkFirstOfflinePageWithoutRoots(t *testing.T) {
	f := newFixture(t, false)
	m := testManifest("v1")
	m.Static = []string{"/app.css"}
	if _, err := f.proxy.Install(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	f.transport.down.Store(true)

	resp, body := f.get(t, "/page.html", "Accept", "text/html")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(body, "offline") {
		t.Errorf("expected offline page, got %d %q", resp.StatusCode, body)
	}
}

func TestNetworkFirstReturnsNonOKWithoutCache(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	f.origin.set("/data/broken.json", "boom")
	f.origin.setStatus("/data/broken.json", http.StatusInternalServerError)

	resp, _ := f.get(t, "/data/broken.json")
	if resp.StatusCode != http.StatusInternalServerError || IsOffline(resp) {
		t.Errorf("network error status should pass through, got %d", resp.StatusCode)
	}
	if _, err := f.store.Get("test-data-v1", f.origin.srv.URL+"/data/broken.json"); !errors.Is(err, ErrCacheMiss) {
		t.Error("non-ok responses must not be stored")
	}
}

func TestBypass(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	f.origin.set("/api/limited", "slow down")
	f.origin.setStatus("/api/limited", http.StatusTooManyRequests)

	resp, _ := f.get(t, "/api/limited")
	if resp.StatusCode != http.StatusTooManyRequests || IsOffline(resp) {
		t.Errorf("bypass should return the network answer, got %d", resp.StatusCode)
	}

	f.origin.set("/api/items", "[]")
	f.get(t, "/api/items")
	names, _ := f.store.Namespaces()
	for _, ns := range names {
		keys, _ := f.store.Keys(ns)
		for _, k := range keys {
			if strings.Contains(k, "/api/") {
				t.Errorf("bypassed response was cached in %s: %s", ns, k)
			}
		}
	}

	f.transport.down.Store(true)
	resp, body := f.get(t, "/api/items")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("offline bypass status = %d, want 503", resp.StatusCode)
	}
	var payload OfflinePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("offline payload is not JSON: %v", err)
	}
	if !payload.Offline || payload.Error != "NetworkError" {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestNoCachePrefixBeforeFirstInstall(t *testing.T) {
	f := newFixture(t, false)
	f.proxy.noCache = []string{"/api/"}
	f.transport.down.Store(true)

	resp, _ := f.get(t, "/api/items")
	if resp.StatusCode != http.StatusServiceUnavailable || !IsOffline(resp) {
		t.Errorf("no-cache path without a generation should get the offline payload, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, f.origin.srv.URL+"/app.css", nil)
	if _, err := f.proxy.RoundTrip(req); err == nil {
		t.Error("other unmatched requests should pass straight through and fail offline")
	}
}

func TestBypassHostsAndNonGet(t *testing.T) {
	f := newFixture(t, false)
	f.proxy.bypassHosts = []string{"127.0.0.1"}
	f.install(t, "v1")
	f.transport.down.Store(true)

	resp, _ := f.get(t, "/app.css")
	if resp.StatusCode != http.StatusServiceUnavailable || !IsOffline(resp) {
		t.Errorf("bypass host must never be served from cache, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, f.origin.srv.URL+"/app.css", nil)
	if _, err := f.proxy.RoundTrip(req); err == nil {
		t.Error("non-GET requests should go straight to the network and fail offline")
	}
}

func TestActivationSweepsOldGeneration(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	f.get(t, "/data/x.json")
	f.origin.set("/app.css", "v2 css")
	g2 := f.install(t, "v2")

	if f.proxy.Active() != g2 {
		t.Fatal("v2 should be active")
	}
	names, _ := f.store.Namespaces()
	for _, ns := range names {
		if !g2.Owns(ns) {
			t.Errorf("namespace %s of an old generation survived activation", ns)
		}
	}
	_, body := f.get(t, "/app.css")
	if body != "v2 css" {
		t.Errorf("requests after activation must see the new generation, got %q", body)
	}
	if f.notifier.count(EventActivated) != 2 {
		t.Errorf("expected two activation events, got %d", f.notifier.count(EventActivated))
	}
}

func TestManualActivationWaits(t *testing.T) {
	f := newFixture(t, true)
	g1 := f.install(t, "v1")
	g2 := f.install(t, "v2")

	if f.proxy.Active() != g1 {
		t.Fatal("v1 should stay active until skip-waiting")
	}
	st, err := f.proxy.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Version != "v1" || st.Waiting != "v2" || st.State != StateSuperseded {
		t.Errorf("unexpected status %+v", st)
	}

	if _, err := f.proxy.Control(context.Background(), CommandSkipWaiting); err != nil {
		t.Fatal(err)
	}
	if f.proxy.Active() != g2 {
		t.Error("skip-waiting should activate v2")
	}
	if err := f.proxy.Activate(); !errors.Is(err, ErrNothingWaiting) {
		t.Errorf("Activate with nothing waiting = %v", err)
	}
}

func TestInstallFailureKeepsPrevious(t *testing.T) {
	f := newFixture(t, false)
	g1 := f.install(t, "v1")

	m := testManifest("v2")
	m.Static = append(m.Static, "/missing.css")
	if _, err := f.proxy.Install(context.Background(), m); err == nil {
		t.Fatal("install with a missing resource should fail")
	}

	if f.proxy.Active() != g1 {
		t.Fatal("failed install must leave v1 active")
	}
	names, _ := f.store.Namespaces()
	for _, ns := range names {
		if strings.HasSuffix(ns, "-v2") {
			t.Errorf("partial namespace %s left behind", ns)
		}
	}
	f.transport.down.Store(true)
	if _, body := f.get(t, "/app.css"); body != "body{color:red}" {
		t.Errorf("v1 should still serve its assets, got %q", body)
	}
}

func TestClearCacheGoesToNetwork(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	before := f.origin.hitCount("/app.css")

	out, err := f.proxy.Control(context.Background(), CommandClearCache)
	if err != nil {
		t.Fatal(err)
	}
	if n := out.(map[string]any)["entries"].(int); n != 2 {
		t.Errorf("cleared %d entries, want 2", n)
	}

	resp, _ := f.get(t, "/app.css")
	if resp.Header.Get(CacheHeader) != cacheMiss {
		t.Errorf("request after clear must go to the network, got %q", resp.Header.Get(CacheHeader))
	}
	if f.origin.hitCount("/app.css") != before+1 {
		t.Error("origin was not hit after clear")
	}
}

func TestActivationWaitsForInflight(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")

	req, _ := http.NewRequest(http.MethodGet, f.origin.srv.URL+"/data/slow", nil)
	reqDone := make(chan struct{})
	go func() {
		defer close(reqDone)
		if resp, err := f.proxy.RoundTrip(req); err == nil {
			closeBody(resp)
		}
	}()
	<-f.origin.inSlow

	installed := make(chan error, 1)
	go func() {
		_, err := f.proxy.Install(context.Background(), testManifest("v2"))
		installed <- err
	}()

	select {
	case <-installed:
		t.Fatal("activation completed while a v1 request was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(f.origin.slow)
	<-reqDone
	select {
	case err := <-installed:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("activation never completed")
	}
	if f.proxy.Active().Version != "v2" {
		t.Error("v2 should be active")
	}
}

func TestControlVersionAndUnknown(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")

	out, err := f.proxy.Control(context.Background(), CommandGetVersion)
	if err != nil {
		t.Fatal(err)
	}
	v := out.(map[string]string)
	if v["version"] != "v1" || v["cacheName"] != "test-static-v1" {
		t.Errorf("unexpected version answer %v", v)
	}

	if _, err := f.proxy.Control(context.Background(), "self-destruct"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command error = %v", err)
	}
}

func TestServeHTTPForwardsToOrigin(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")
	f.transport.down.Store(true)

	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.css", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "body{color:red}" {
		t.Errorf("ServeHTTP offline = %d %q", rec.Code, rec.Body.String())
	}
}
