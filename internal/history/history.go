// Package history records structural inventory changes and sync runs
package history

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/xelth-com/magazzino/internal/models"
)

// DefaultRecent is how many entries the in-memory ring keeps
const DefaultRecent = 10

// Sink receives history entries. Appends are best effort from the caller's
// point of view: a failing sink never undoes the change it describes.
type Sink interface {
	Append(entry models.HistoryEntry) error
}

// Reader lists the most recent entries, newest first
type Reader interface {
	Recent(limit int) ([]models.HistoryEntry, error)
}

// Details is the JSON payload attached to an entry
type Details struct {
	Message   string `json:"message"`
	Warehouse string `json:"warehouse"`
	Category  string `json:"category,omitempty"`
	Item      string `json:"item,omitempty"`
}

// NewEntry builds an entry stamped now
func NewEntry(action string, d Details) models.HistoryEntry {
	raw, _ := json.Marshal(d)
	return models.HistoryEntry{
		ID:        uuid.New(),
		Action:    action,
		Details:   datatypes.JSON(raw),
		CreatedAt: time.Now().UTC(),
	}
}

// Nop discards entries
type Nop struct{}

func (Nop) Append(models.HistoryEntry) error { return nil }

// Ring keeps the last N entries in memory
type Ring struct {
	mu      sync.Mutex
	size    int
	entries []models.HistoryEntry // newest first
}

// NewRing creates a ring holding size entries (DefaultRecent when size <= 0)
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRecent
	}
	return &Ring{size: size}
}

func (r *Ring) Append(entry models.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]models.HistoryEntry{entry}, r.entries...)
	if len(r.entries) > r.size {
		r.entries = r.entries[:r.size]
	}
	return nil
}

func (r *Ring) Recent(limit int) ([]models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]models.HistoryEntry, limit)
	copy(out, r.entries[:limit])
	return out, nil
}

// Log writes to the in-memory ring and a durable sink. Recent reads are served
// from the ring when it holds enough entries.
type Log struct {
	ring    *Ring
	durable interface {
		Sink
		Reader
	}
}

// NewLog combines ring with durable; durable may be nil
func NewLog(ring *Ring, durable interface {
	Sink
	Reader
}) *Log {
	return &Log{ring: ring, durable: durable}
}

func (l *Log) Append(entry models.HistoryEntry) error {
	l.ring.Append(entry)
	if l.durable == nil {
		return nil
	}
	return l.durable.Append(entry)
}

func (l *Log) Recent(limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	if limit <= l.ring.size || l.durable == nil {
		entries, _ := l.ring.Recent(limit)
		if len(entries) == limit || l.durable == nil {
			return entries, nil
		}
	}
	return l.durable.Recent(limit)
}
