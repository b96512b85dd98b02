package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/xelth-com/magazzino/internal/inventory"
	"github.com/xelth-com/magazzino/internal/models"
)

type nameRequest struct {
	Name string `json:"name"`
}

// getInventory returns the whole collection
func (r *Router) getInventory(w http.ResponseWriter, req *http.Request) {
	c, err := r.deps.Inventory.Snapshot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read inventory")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// getLowStock lists items at or below their alert threshold
func (r *Router) getLowStock(w http.ResponseWriter, req *http.Request) {
	refs, err := r.deps.Inventory.LowStock()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read inventory")
		return
	}
	if refs == nil {
		refs = []models.ItemRef{}
	}
	respondJSON(w, http.StatusOK, refs)
}

func (r *Router) addWarehouse(w http.ResponseWriter, req *http.Request) {
	var body nameRequest
	if err := decodeJSON(req, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := r.deps.Inventory.AddWarehouse(body.Name); err != nil {
		respondInventoryError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"name": body.Name})
}

func (r *Router) renameWarehouse(w http.ResponseWriter, req *http.Request) {
	var body nameRequest
	if err := decodeJSON(req, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := r.deps.Inventory.RenameWarehouse(mux.Vars(req)["warehouse"], body.Name); err != nil {
		respondInventoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"name": body.Name})
}

func (r *Router) removeWarehouse(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Inventory.RemoveWarehouse(mux.Vars(req)["warehouse"]); err != nil {
		respondInventoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) addCategory(w http.ResponseWriter, req *http.Request) {
	var body nameRequest
	if err := decodeJSON(req, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := r.deps.Inventory.AddCategory(mux.Vars(req)["warehouse"], body.Name); err != nil {
		respondInventoryError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"name": body.Name})
}

func (r *Router) removeCategory(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	if err := r.deps.Inventory.RemoveCategory(vars["warehouse"], vars["category"]); err != nil {
		respondInventoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) addItem(w http.ResponseWriter, req *http.Request) {
	var item models.Item
	if err := decodeJSON(req, &item); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	vars := mux.Vars(req)
	created, err := r.deps.Inventory.AddItem(vars["warehouse"], vars["category"], item)
	if err != nil {
		respondInventoryError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (r *Router) updateItem(w http.ResponseWriter, req *http.Request) {
	var patch inventory.ItemPatch
	if err := decodeJSON(req, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	updated, err := r.deps.Inventory.UpdateItem(itemRef(req), patch)
	if err != nil {
		respondInventoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (r *Router) removeItem(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Inventory.RemoveItem(itemRef(req)); err != nil {
		respondInventoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listHistory returns the most recent inventory changes
func (r *Router) listHistory(w http.ResponseWriter, req *http.Request) {
	if r.deps.History == nil {
		respondJSON(w, http.StatusOK, []models.HistoryEntry{})
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	entries, err := r.deps.History.Recent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func itemRef(req *http.Request) models.ItemRef {
	vars := mux.Vars(req)
	return models.ItemRef{Warehouse: vars["warehouse"], Category: vars["category"], Name: vars["item"]}
}

func respondInventoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrInvalidName):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inventory.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, inventory.ErrExists):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Failed to update inventory")
	}
}
