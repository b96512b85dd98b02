package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/xelth-com/magazzino/internal/config"
	"github.com/xelth-com/magazzino/internal/remote"
	syncpkg "github.com/xelth-com/magazzino/internal/sync"
)

// SyncConfigRequest carries the remote table credentials
type SyncConfigRequest struct {
	APIKey    string `json:"apiKey"`
	BaseID    string `json:"baseId"`
	TableName string `json:"tableName"`
}

// getSyncConfig returns the settings with the API key masked
func (r *Router) getSyncConfig(w http.ResponseWriter, req *http.Request) {
	settings, err := r.deps.Settings.Load()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read sync settings")
		return
	}
	respondJSON(w, http.StatusOK, settings.Redacted())
}

// saveSyncConfig stores new credentials. The connection flag is reset until
// the next successful test.
func (r *Router) saveSyncConfig(w http.ResponseWriter, req *http.Request) {
	var body SyncConfigRequest
	if err := decodeJSON(req, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if body.APIKey == "" || body.BaseID == "" {
		respondError(w, http.StatusBadRequest, "apiKey and baseId are required")
		return
	}

	settings, err := r.deps.Settings.Update(func(s *config.SyncSettings) {
		s.APIKey = body.APIKey
		s.CollectionID = body.BaseID
		s.TableName = body.TableName
		s.IsConnected = false
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save sync settings")
		return
	}
	respondJSON(w, http.StatusOK, settings.Redacted())
}

// testConnection probes the remote table
func (r *Router) testConnection(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Sync.TestConnection(req.Context()); err != nil {
		if errors.Is(err, remote.ErrConfigInvalid) {
			respondSyncError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"connected": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"connected": true})
}

func (r *Router) upload(w http.ResponseWriter, req *http.Request) {
	report, err := r.deps.Sync.Upload(req.Context())
	respondReport(w, report, err)
}

func (r *Router) download(w http.ResponseWriter, req *http.Request) {
	report, err := r.deps.Sync.Download(req.Context())
	respondReport(w, report, err)
}

func (r *Router) fullSync(w http.ResponseWriter, req *http.Request) {
	report, err := r.deps.Sync.FullSync(req.Context())
	respondReport(w, report, err)
}

// syncStatus reports settings, stats and whether a run is active
func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	settings, err := r.deps.Settings.Load()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read sync settings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"configured":  settings.IsConfigured(),
		"isConnected": settings.IsConnected,
		"lastSync":    settings.LastSync,
		"stats":       settings.Stats,
		"inProgress":  r.deps.Sync.InProgress(),
	})
}

// listRuns returns recent sync runs
func (r *Router) listRuns(w http.ResponseWriter, req *http.Request) {
	if r.deps.Runs == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	runs, err := r.deps.Runs.Runs(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read sync runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// respondReport answers a sync run. A run with failed batches still answers
// 200; its report carries the failure counts.
func respondReport(w http.ResponseWriter, report *syncpkg.Report, err error) {
	if err != nil {
		if report != nil && report.Result != nil {
			respondJSON(w, syncErrorStatus(err), map[string]any{"error": err.Error(), "report": report})
			return
		}
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func respondSyncError(w http.ResponseWriter, err error) {
	respondError(w, syncErrorStatus(err), err.Error())
}

func syncErrorStatus(err error) int {
	var statusErr *remote.StatusError
	switch {
	case errors.Is(err, remote.ErrConfigInvalid):
		return http.StatusPreconditionFailed
	case errors.Is(err, syncpkg.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, syncpkg.ErrSyncUnavailable),
		errors.Is(err, remote.ErrRemoteUnavailable),
		errors.Is(err, remote.ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
