package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Control commands
const (
	CommandGetStatus   = "get-status"
	CommandGetVersion  = "get-version"
	CommandClearCache  = "clear-cache"
	CommandSkipWaiting = "skip-waiting"
)

// ErrUnknownCommand is returned by Control for unsupported commands
var ErrUnknownCommand = errors.New("unknown cache control command")

// NamespaceStatus describes one namespace in the store
type NamespaceStatus struct {
	Name      string   `json:"name"`
	Size      int      `json:"size"`
	Resources []string `json:"resources,omitempty"`
}

// Status is the answer to get-status
type Status struct {
	Version    string            `json:"version"`
	State      State             `json:"state"`
	Waiting    string            `json:"waiting,omitempty"`
	Namespaces []NamespaceStatus `json:"namespaces"`
	NoCache    []string          `json:"noCacheUrls"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Install pre-caches m's manifest into a new generation. Any failure discards
// the new generation and leaves the current one active. On success the new
// generation waits, and is activated at once when nothing is active yet or
// activation is automatic.
func (p *Proxy) Install(ctx context.Context, m Manifest) (*Generation, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	p.installMu.Lock()
	defer p.installMu.Unlock()

	p.mu.RLock()
	current := p.active
	p.mu.RUnlock()
	if current != nil && current.Version == m.Version && current.Prefix == m.Prefix {
		return current, nil
	}

	g := newGeneration(m)
	log.Printf("🔧 Installing cache generation %s (%d static, %d external)", g.Version, len(m.Static), len(m.External))

	if err := p.precache(ctx, g); err != nil {
		for _, ns := range g.Namespaces() {
			if current != nil && current.Owns(ns) {
				continue
			}
			if delErr := p.store.DeleteNamespace(ns); delErr != nil {
				log.Printf("⚠️ Failed to discard namespace %s: %v", ns, delErr)
			}
		}
		log.Printf("❌ Cache install %s aborted: %v", g.Version, err)
		return nil, fmt.Errorf("install of cache generation %s failed: %w", g.Version, err)
	}

	p.mu.Lock()
	g.state = StateWaiting
	if p.active != nil {
		p.active.state = StateSuperseded
	}
	p.waiting = g
	first := p.active == nil
	p.mu.Unlock()
	log.Printf("✅ Cache generation %s installed, waiting", g.Version)

	if first || !p.manual {
		if err := p.Activate(); err != nil {
			return g, err
		}
	}
	return g, nil
}

func (p *Proxy) precache(ctx context.Context, g *Generation) error {
	fetch := func(kind Kind, resource string) error {
		key := p.resolve(resource)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
		if err != nil {
			return fmt.Errorf("bad resource %q: %w", resource, err)
		}
		resp, err := p.transport.RoundTrip(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", key, err)
		}
		if resp.StatusCode != http.StatusOK {
			closeBody(resp)
			return fmt.Errorf("fetch %s: status %d", key, resp.StatusCode)
		}
		closeBody(p.storeResponse(g, g.Namespace(kind), key, resp))
		return nil
	}

	for _, res := range g.Manifest.Static {
		if err := fetch(KindStatic, res); err != nil {
			return err
		}
	}
	for _, res := range g.Manifest.External {
		if err := fetch(KindExternal, res); err != nil {
			return err
		}
	}
	return nil
}

// Activate makes the waiting generation active. It waits for requests still
// served by the current generation, sweeps every namespace not owned by the
// new generation, and only then lets requests through again.
func (p *Proxy) Activate() error {
	p.mu.Lock()
	g := p.waiting
	if g == nil {
		p.mu.Unlock()
		return ErrNothingWaiting
	}

	old := p.active
	if old != nil {
		old.inflight.Wait()
	}

	names, err := p.store.Namespaces()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to list cache namespaces: %w", err)
	}
	for _, ns := range names {
		if g.Owns(ns) {
			continue
		}
		if err := p.store.DeleteNamespace(ns); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("failed to evict namespace %s: %w", ns, err)
		}
		log.Printf("🗑️ Evicted cache namespace %s", ns)
	}

	if old != nil {
		old.state = StateSuperseded
	}
	g.state = StateActive
	p.active = g
	p.waiting = nil
	p.mu.Unlock()

	log.Printf("✅ Cache generation %s active", g.Version)
	if p.notifier != nil {
		p.notifier.Notify(EventActivated, map[string]any{
			"version":   g.Version,
			"timestamp": time.Now().UTC(),
		})
	}
	return nil
}

// Clear deletes every namespace once in-flight work has drained. The active
// generation keeps serving, now from an empty cache.
func (p *Proxy) Clear() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		p.active.inflight.Wait()
	}

	names, err := p.store.Namespaces()
	if err != nil {
		return 0, fmt.Errorf("failed to list cache namespaces: %w", err)
	}
	cleared := 0
	for _, ns := range names {
		if p.waiting != nil && p.waiting.Owns(ns) {
			continue
		}
		keys, _ := p.store.Keys(ns)
		if err := p.store.DeleteNamespace(ns); err != nil {
			return cleared, fmt.Errorf("failed to clear namespace %s: %w", ns, err)
		}
		cleared += len(keys)
	}
	log.Printf("✅ Cache cleared (%d entries)", cleared)
	return cleared, nil
}

// Quiesce blocks until in-flight requests and background refreshes of the
// active generation have finished
func (p *Proxy) Quiesce() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		p.active.inflight.Wait()
	}
}

// Active returns the active generation, or nil
func (p *Proxy) Active() *Generation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Status reports the generations and namespace contents
func (p *Proxy) Status() (Status, error) {
	p.mu.RLock()
	st := Status{Timestamp: time.Now().UTC()}
	if p.active != nil {
		st.Version = p.active.Version
		st.State = p.active.state
		for _, r := range p.active.Manifest.Routes {
			if r.Strategy == StrategyBypass {
				st.NoCache = append(st.NoCache, r.Hosts...)
				st.NoCache = append(st.NoCache, r.Prefixes...)
				st.NoCache = append(st.NoCache, r.Contains...)
			}
		}
	}
	if p.waiting != nil {
		st.Waiting = p.waiting.Version
	}
	st.NoCache = append(st.NoCache, p.bypassHosts...)
	st.NoCache = append(st.NoCache, p.noCache...)
	p.mu.RUnlock()

	names, err := p.store.Namespaces()
	if err != nil {
		return st, fmt.Errorf("failed to list cache namespaces: %w", err)
	}
	for _, ns := range names {
		keys, err := p.store.Keys(ns)
		if err != nil {
			return st, err
		}
		st.Namespaces = append(st.Namespaces, NamespaceStatus{Name: ns, Size: len(keys), Resources: keys})
	}
	return st, nil
}

// Control executes a control channel command
func (p *Proxy) Control(ctx context.Context, command string) (any, error) {
	switch command {
	case CommandGetStatus:
		return p.Status()

	case CommandGetVersion:
		g := p.Active()
		if g == nil {
			return map[string]string{"version": ""}, nil
		}
		return map[string]string{"version": g.Version, "cacheName": g.Namespace(KindStatic)}, nil

	case CommandClearCache:
		n, err := p.Clear()
		if err != nil {
			return nil, err
		}
		return map[string]any{"cleared": true, "entries": n}, nil

	case CommandSkipWaiting:
		if err := p.Activate(); err != nil && !errors.Is(err, ErrNothingWaiting) {
			return nil, err
		}
		return p.Status()
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}
