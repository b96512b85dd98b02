package handlers

import (
	"errors"
	"net/http"

	"github.com/xelth-com/magazzino/internal/cache"
)

// CacheControlRequest is a control channel message
type CacheControlRequest struct {
	Type string `json:"type"`
}

// cacheControl runs a cache control command: get-status, get-version,
// clear-cache or skip-waiting
func (r *Router) cacheControl(w http.ResponseWriter, req *http.Request) {
	var body CacheControlRequest
	if err := decodeJSON(req, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	out, err := r.deps.Cache.Control(req.Context(), body.Type)
	if err != nil {
		if errors.Is(err, cache.ErrUnknownCommand) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (r *Router) cacheStatus(w http.ResponseWriter, req *http.Request) {
	st, err := r.deps.Cache.Status()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}
