package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/xelth-com/magazzino/internal/cache"
	"github.com/xelth-com/magazzino/internal/config"
	"github.com/xelth-com/magazzino/internal/database"
	"github.com/xelth-com/magazzino/internal/handlers"
	"github.com/xelth-com/magazzino/internal/history"
	"github.com/xelth-com/magazzino/internal/inventory"
	"github.com/xelth-com/magazzino/internal/logging"
	"github.com/xelth-com/magazzino/internal/remote"
	"github.com/xelth-com/magazzino/internal/store"
	"github.com/xelth-com/magazzino/internal/sync"
	"github.com/xelth-com/magazzino/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Logging (rotated file when LOG_FILE is set)
	logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize database (embedded vs external detected automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Database.Alter {
		log.Println("🚀 Synchronizing database schema...")
		if err := db.Migrate(); err != nil {
			log.Printf("⚠️ Migration warning: %v", err)
		}
	}

	// 4. Local stores
	kv := store.NewGormKV(db.DB)
	settings := config.NewSettingsStore(kv)
	collection := store.NewCollection(kv)
	historyLog := history.NewLog(history.NewRing(history.DefaultRecent), history.NewGormSink(db.DB))
	runLog := history.NewRunLog(db.DB)

	// 5. Websocket hub, the notifier for sync and cache events
	hub := websocket.NewHub()
	go hub.Run(ctx)

	// 6. Cache proxy
	proxy, cacheStore, watcher := startCache(ctx, cfg, hub)

	// 7. Sync orchestrator; remote calls go through the proxy, which bypasses
	// the cache for the remote host and answers offline failures
	remoteOpts := remote.Options{
		BaseURL:         cfg.Remote.BaseURL,
		MaxAttempts:     cfg.Remote.MaxAttempts,
		BackoffBase:     cfg.Remote.BackoffBase,
		PageSize:        cfg.Remote.PageSize,
		MaxPages:        cfg.Remote.MaxPages,
		BatchSize:       cfg.Remote.BatchSize,
		DeleteBatchSize: cfg.Remote.DeleteBatchSize,
		BatchPause:      cfg.Remote.BatchPause,
	}
	httpClient := &http.Client{Transport: proxy, Timeout: 60 * time.Second}
	orchestrator := sync.NewOrchestrator(settings, collection,
		sync.NewTableFactory(remoteOpts, httpClient, remote.ContextSleep),
		sync.WithNotifier(hub),
		sync.WithRunRecorder(runLog),
	)

	// 8. HTTP router
	router := handlers.NewRouter(handlers.Deps{
		Config:    cfg,
		Inventory: inventory.NewService(collection, historyLog),
		Sync:      orchestrator,
		Settings:  settings,
		Cache:     proxy,
		Hub:       hub,
		History:   historyLog,
		Runs:      runLog,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on port %s (%s)", cfg.Port, cfg.NodeEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("⚠️ Shutdown signal received, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if watcher != nil {
		watcher.Stop()
	}
	proxy.Quiesce()
	if err := cacheStore.Close(); err != nil {
		log.Printf("Cache store close error: %v", err)
	}

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

// startCache opens the cache store, creates the proxy and installs the first
// generation in the background so a slow origin does not delay startup
func startCache(ctx context.Context, cfg *config.Config, hub *websocket.Hub) (*cache.Proxy, cache.Store, *cache.ManifestWatcher) {
	var cacheStore cache.Store = cache.NewMemoryStore()
	if cfg.Cache.DBPath != "" {
		s, err := cache.OpenSQLiteStore(cfg.Cache.DBPath)
		if err != nil {
			log.Fatalf("Failed to open cache store: %v", err)
		}
		cacheStore = s
	}

	origin, err := url.Parse(cfg.Cache.Origin)
	if err != nil {
		log.Fatalf("Invalid CACHE_ORIGIN: %v", err)
	}

	var bypass, noCachePaths []string
	if u, err := url.Parse(cfg.Remote.BaseURL); err == nil && u.Hostname() != "" {
		bypass = append(bypass, u.Hostname())
	}
	for _, nc := range cfg.Cache.NoCache {
		if strings.HasPrefix(nc, "/") {
			noCachePaths = append(noCachePaths, nc)
		}
	}

	proxy := cache.NewProxy(cacheStore, cache.Options{
		Origin:          origin,
		BypassHosts:     bypass,
		NoCachePrefixes: noCachePaths,
		Notifier:        hub,

		ManualActivation: cfg.Cache.Manual,
	})

	manifest, fromFile := loadManifest(cfg, bypass)
	go func() {
		installCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := proxy.Install(installCtx, manifest); err != nil {
			log.Printf("⚠️ Cache generation %s not installed, requests pass through: %v", manifest.Version, err)
		}
	}()

	if !fromFile {
		return proxy, cacheStore, nil
	}
	watcher, err := cache.NewManifestWatcher(cfg.Cache.ManifestPath, proxy)
	if err != nil {
		log.Printf("⚠️ Manifest watcher disabled: %v", err)
		return proxy, cacheStore, nil
	}
	if err := watcher.Start(ctx); err != nil {
		log.Printf("⚠️ Manifest watcher disabled: %v", err)
		return proxy, cacheStore, nil
	}
	log.Printf("👀 Watching %s for new cache generations", cfg.Cache.ManifestPath)
	return proxy, cacheStore, watcher
}

func loadManifest(cfg *config.Config, bypass []string) (cache.Manifest, bool) {
	m, err := cache.LoadManifest(cfg.Cache.ManifestPath)
	if err == nil {
		return m, true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("⚠️ Ignoring cache manifest: %v", err)
	}
	m = cache.DefaultManifest()
	m.Prefix = cfg.Cache.Prefix
	m.Routes = cache.DefaultRoutes(bypass, cfg.Cache.NoCache)
	return m, false
}
