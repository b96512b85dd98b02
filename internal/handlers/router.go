package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/xelth-com/magazzino/internal/buildinfo"
	"github.com/xelth-com/magazzino/internal/cache"
	"github.com/xelth-com/magazzino/internal/config"
	"github.com/xelth-com/magazzino/internal/history"
	"github.com/xelth-com/magazzino/internal/inventory"
	"github.com/xelth-com/magazzino/internal/middleware"
	"github.com/xelth-com/magazzino/internal/models"
	syncpkg "github.com/xelth-com/magazzino/internal/sync"
	"github.com/xelth-com/magazzino/internal/websocket"
)

// RunLister lists recorded sync runs
type RunLister interface {
	Runs(limit int) ([]models.SyncHistory, error)
}

// Deps are the services the router exposes
type Deps struct {
	Config    *config.Config
	Inventory *inventory.Service
	Sync      *syncpkg.Orchestrator
	Settings  *config.SettingsStore
	Cache     *cache.Proxy
	Hub       *websocket.Hub
	History   history.Reader
	Runs      RunLister
}

// Router wraps the mux router and the services behind it
type Router struct {
	*mux.Router
	deps Deps
	now  func() time.Time
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		deps:   deps,
		now:    time.Now,
	}
	r.Use(middleware.RequestLogger)

	// Public endpoints
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	r.HandleFunc("/api/status", r.getStatus).Methods("GET")
	r.HandleFunc("/auth/login", r.login).Methods("POST")
	if deps.Hub != nil {
		r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWs(deps.Hub, w, req)
		})
	}

	// Protected API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(deps.Config.JWTSecret))

	inv := api.PathPrefix("/inventory").Subrouter()
	inv.HandleFunc("", r.getInventory).Methods("GET")
	inv.HandleFunc("/low-stock", r.getLowStock).Methods("GET")
	inv.HandleFunc("/warehouses", r.addWarehouse).Methods("POST")
	inv.HandleFunc("/warehouses/{warehouse}", r.renameWarehouse).Methods("PUT")
	inv.HandleFunc("/warehouses/{warehouse}", r.removeWarehouse).Methods("DELETE")
	inv.HandleFunc("/warehouses/{warehouse}/categories", r.addCategory).Methods("POST")
	inv.HandleFunc("/warehouses/{warehouse}/categories/{category}", r.removeCategory).Methods("DELETE")
	inv.HandleFunc("/warehouses/{warehouse}/categories/{category}/items", r.addItem).Methods("POST")
	inv.HandleFunc("/warehouses/{warehouse}/categories/{category}/items/{item}", r.updateItem).Methods("PATCH")
	inv.HandleFunc("/warehouses/{warehouse}/categories/{category}/items/{item}", r.removeItem).Methods("DELETE")
	api.HandleFunc("/history", r.listHistory).Methods("GET")

	sync := api.PathPrefix("/sync").Subrouter()
	sync.HandleFunc("/config", r.getSyncConfig).Methods("GET")
	sync.HandleFunc("/config", r.saveSyncConfig).Methods("PUT")
	sync.HandleFunc("/test", r.testConnection).Methods("POST")
	sync.HandleFunc("/upload", r.upload).Methods("POST")
	sync.HandleFunc("/download", r.download).Methods("POST")
	sync.HandleFunc("/full", r.fullSync).Methods("POST")
	sync.HandleFunc("/status", r.syncStatus).Methods("GET")
	sync.HandleFunc("/runs", r.listRuns).Methods("GET")

	if deps.Cache != nil {
		api.HandleFunc("/cache/control", r.cacheControl).Methods("POST")
		api.HandleFunc("/cache/status", r.cacheStatus).Methods("GET")

		// The web app itself, served through the cache proxy
		r.PathPrefix("/").Handler(deps.Cache)
	}

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"server": "local",
	})
}

// getStatus returns build and runtime information
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	status := map[string]any{
		"status": "running",
		"build":  buildinfo.Current(),
	}
	if r.deps.Sync != nil {
		status["syncInProgress"] = r.deps.Sync.InProgress()
	}
	if r.deps.Cache != nil {
		if g := r.deps.Cache.Active(); g != nil {
			status["cacheVersion"] = g.Version
		}
	}
	if r.deps.Hub != nil {
		status["clients"] = r.deps.Hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, status)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func decodeJSON(req *http.Request, v any) error {
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
