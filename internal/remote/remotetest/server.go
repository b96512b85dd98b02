// Package remotetest provides an in-memory remote table served over httptest.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xelth-com/magazzino/internal/remote"
)

// Fault decides the status to answer a request with; 0 serves it normally
type Fault func(r *http.Request, call int) int

// Server is a fake remote table
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	records  map[string]remote.Record
	order    []string
	calls    int
	requests []string
	fault    Fault
	offsetFn func(next string) string
	now      func() time.Time

	APIKey string
}

// NewServer starts a fake table that accepts APIKey as bearer token
func NewServer(apiKey string) *Server {
	s := &Server{
		records: make(map[string]remote.Record),
		APIKey:  apiKey,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Options returns client options pointed at the server with no waits
func (s *Server) Options() remote.Options {
	opts := remote.DefaultOptions()
	opts.BaseURL = s.URL
	opts.BatchPause = 0
	return opts
}

// SetFault installs a fault injector
func (s *Server) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// SetOffset rewrites the continuation token of every list page. f receives
// the token the table would send ("" on the last page).
func (s *Server) SetOffset(f func(next string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsetFn = f
}

// SetClock overrides the timestamp source used for created records
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Seed inserts a record and returns its id
func (s *Server) Seed(fields remote.Fields) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(fields)
}

// Records returns a copy of the table in insertion order
func (s *Server) Records() []remote.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Requests returns "METHOD rawquery" for every request received
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Calls returns the number of requests received
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Server) insert(fields remote.Fields) string {
	id := "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	s.records[id] = remote.Record{ID: id, CreatedTime: s.now().Format(time.RFC3339), Fields: fields}
	s.order = append(s.order, id)
	return id
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.requests = append(s.requests, r.Method+" "+r.URL.RawQuery)

	if r.Header.Get("Authorization") != "Bearer "+s.APIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "AUTHENTICATION_REQUIRED"})
		return
	}
	if s.fault != nil {
		if status := s.fault(r, s.calls); status != 0 {
			writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		s.list(w, r)
	case http.MethodPost, http.MethodPatch:
		s.write(w, r)
	case http.MethodDelete:
		s.delete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size := 100
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil && v > 0 {
		size = v
	}
	if v, err := strconv.Atoi(q.Get("maxRecords")); err == nil && v > 0 && v < size {
		size = v
	}
	start := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		start = v
	}

	end := start + size
	if end > len(s.order) {
		end = len(s.order)
	}
	page := struct {
		Records []remote.Record `json:"records"`
		Offset  string          `json:"offset,omitempty"`
	}{Records: []remote.Record{}}
	for _, id := range s.order[min(start, end):end] {
		page.Records = append(page.Records, s.records[id])
	}
	if end < len(s.order) && q.Get("maxRecords") == "" {
		page.Offset = strconv.Itoa(end)
	}
	if s.offsetFn != nil {
		page.Offset = s.offsetFn(page.Offset)
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Records []remote.Record `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "INVALID_REQUEST_BODY"})
		return
	}

	out := make([]remote.Record, 0, len(body.Records))
	for _, rec := range body.Records {
		if r.Method == http.MethodPost {
			id := s.insert(rec.Fields)
			out = append(out, s.records[id])
			continue
		}
		existing, ok := s.records[rec.ID]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
			return
		}
		for k, v := range rec.Fields {
			existing.Fields[k] = v
		}
		s.records[rec.ID] = existing
		out = append(out, existing)
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["records[]"]
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
			return
		}
	}
	for _, id := range ids {
		delete(s.records, id)
		out = append(out, map[string]any{"id": id, "deleted": true})
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.records[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

// SortedIDs returns the current record ids sorted
func (s *Server) SortedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]string(nil), s.order...)
	sort.Strings(ids)
	return ids
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
