package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xelth-com/magazzino/internal/cache"
	"github.com/xelth-com/magazzino/internal/config"
	"github.com/xelth-com/magazzino/internal/history"
	"github.com/xelth-com/magazzino/internal/inventory"
	"github.com/xelth-com/magazzino/internal/remote/remotetest"
	"github.com/xelth-com/magazzino/internal/store"
	syncpkg "github.com/xelth-com/magazzino/internal/sync"
	"github.com/xelth-com/magazzino/internal/utils"
)

const testSecret = "test-secret"

type testEnv struct {
	router *Router
	remote *remotetest.Server
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := remotetest.NewServer("key")
	t.Cleanup(srv.Close)

	hash, err := utils.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{JWTSecret: testSecret, Admin: config.AdminConfig{Username: "admin", PasswordHash: hash}}

	kv := store.NewMemoryKV()
	settings := config.NewSettingsStore(kv)
	collection := store.NewCollection(kv)
	ring := history.NewRing(0)
	noSleep := func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	router := NewRouter(Deps{
		Config:    cfg,
		Inventory: inventory.NewService(collection, ring),
		Sync:      syncpkg.NewOrchestrator(settings, collection, syncpkg.NewTableFactory(srv.Options(), srv.Client(), noSleep)),
		Settings:  settings,
		Cache:     cache.NewProxy(cache.NewMemoryStore(), cache.Options{}),
		History:   ring,
	})

	token, err := utils.GenerateToken("admin", testSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{router: router, remote: srv, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndStatusArePublic(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	if rec := env.do(t, "GET", "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/status", nil); rec.Code != http.StatusOK {
		t.Errorf("/api/status = %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/inventory", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/inventory without token = %d, want 401", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.do(t, "POST", "/auth/login", LoginRequest{Username: "admin", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", rec.Code)
	}

	rec = env.do(t, "POST", "/auth/login", LoginRequest{Username: "admin", Password: "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.AccessToken == "" {
		t.Fatalf("no token in %s", rec.Body.String())
	}

	env.token = out.AccessToken
	if rec := env.do(t, "GET", "/api/inventory", nil); rec.Code != http.StatusOK {
		t.Errorf("issued token rejected: %d", rec.Code)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, "POST", "/api/inventory/warehouses", nameRequest{Name: "Magazzino 2"}); rec.Code != http.StatusCreated {
		t.Fatalf("add warehouse = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, "POST", "/api/inventory/warehouses", nameRequest{Name: "Magazzino 2"}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate warehouse = %d, want 409", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/inventory/warehouses/Magazzino%202/categories", nameRequest{Name: "bevande"}); rec.Code != http.StatusCreated {
		t.Fatalf("add category = %d: %s", rec.Code, rec.Body.String())
	}
	rec := env.do(t, "POST", "/api/inventory/warehouses/Magazzino%202/categories/bevande/items", map[string]any{"name": "Acqua", "quantity": 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item = %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, "PATCH", "/api/inventory/warehouses/Magazzino%202/categories/bevande/items/Acqua", map[string]any{"quantity": 20})
	if rec.Code != http.StatusOK {
		t.Fatalf("update item = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, "DELETE", "/api/inventory/warehouses/Magazzino%202/categories/bevande/items/Birra", nil); rec.Code != http.StatusNotFound {
		t.Errorf("remove missing item = %d, want 404", rec.Code)
	}

	rec = env.do(t, "GET", "/api/history", nil)
	var entries []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil || len(entries) != 4 {
		t.Errorf("history has %d entries (%v), want 4", len(entries), err)
	}
}

func TestSyncEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, "POST", "/api/sync/upload", nil); rec.Code != http.StatusPreconditionFailed {
		t.Errorf("upload without config = %d, want 412", rec.Code)
	}

	rec := env.do(t, "PUT", "/api/sync/config", SyncConfigRequest{APIKey: "key", BaseID: "appTest"})
	if rec.Code != http.StatusOK {
		t.Fatalf("save config = %d: %s", rec.Code, rec.Body.String())
	}
	var saved config.SyncSettings
	json.Unmarshal(rec.Body.Bytes(), &saved)
	if saved.APIKey == "key" {
		t.Error("API key must be masked in responses")
	}

	rec = env.do(t, "POST", "/api/sync/test", nil)
	var conn map[string]any
	json.Unmarshal(rec.Body.Bytes(), &conn)
	if conn["connected"] != true {
		t.Errorf("connection test = %s", rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/sync/upload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload = %d: %s", rec.Code, rec.Body.String())
	}
	if got := len(env.remote.Records()); got != 5 {
		t.Errorf("remote has %d records after upload, want 5", got)
	}

	rec = env.do(t, "GET", "/api/sync/status", nil)
	var status struct {
		Stats config.SyncStats `json:"stats"`
	}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status.Stats.Uploaded != 5 {
		t.Errorf("uploaded stat = %d, want 5", status.Stats.Uploaded)
	}

	env.remote.Close()
	if rec := env.do(t, "POST", "/api/sync/download", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("download with remote down = %d, want 503", rec.Code)
	}
}

func TestCacheControl(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/cache/control", CacheControlRequest{Type: cache.CommandGetVersion})
	if rec.Code != http.StatusOK {
		t.Errorf("get-version = %d", rec.Code)
	}
	rec = env.do(t, "POST", "/api/cache/control", CacheControlRequest{Type: "explode"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown command = %d, want 400", rec.Code)
	}
}
