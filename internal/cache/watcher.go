package cache

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// manifestDebounce coalesces the burst of events editors produce on save
const manifestDebounce = 200 * time.Millisecond

// ManifestWatcher installs a new generation whenever the manifest file changes
type ManifestWatcher struct {
	path    string
	proxy   *Proxy
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManifestWatcher creates a watcher for path. It must be started with Start.
func NewManifestWatcher(path string, proxy *Proxy) (*ManifestWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &ManifestWatcher{path: abs, proxy: proxy, watcher: w, done: make(chan struct{})}, nil
}

// Start watches the manifest's directory, so atomic renames are seen too
func (mw *ManifestWatcher) Start(ctx context.Context) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.running {
		return fmt.Errorf("manifest watcher already running")
	}
	if err := mw.watcher.Add(filepath.Dir(mw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(mw.path), err)
	}
	mw.running = true
	mw.wg.Add(1)
	go mw.loop(ctx)
	return nil
}

// Stop ends the watch and waits for a pending install to finish
func (mw *ManifestWatcher) Stop() error {
	mw.mu.Lock()
	if !mw.running {
		mw.mu.Unlock()
		return nil
	}
	mw.running = false
	mw.mu.Unlock()

	close(mw.done)
	err := mw.watcher.Close()
	mw.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (mw *ManifestWatcher) loop(ctx context.Context) {
	defer mw.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-mw.done:
			return
		case <-ctx.Done():
			return

		case ev, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != mw.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(manifestDebounce)
			} else {
				timer.Reset(manifestDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			mw.reload(ctx)

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ Manifest watcher error: %v", err)
		}
	}
}

func (mw *ManifestWatcher) reload(ctx context.Context) {
	m, err := LoadManifest(mw.path)
	if err != nil {
		log.Printf("❌ Ignoring manifest change: %v", err)
		return
	}
	if _, err := mw.proxy.Install(ctx, m); err != nil {
		log.Printf("❌ Manifest %s not installed: %v", m.Version, err)
	}
}
