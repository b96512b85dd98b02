package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xelth-com/magazzino/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is a synchronous key-value store of opaque blobs
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// MemoryKV keeps blobs in process memory
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns a copy of the blob stored under key
func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores a copy of value under key
func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// GormKV persists blobs in the kv_blobs table
type GormKV struct {
	db *gorm.DB
}

// NewGormKV creates a store over db. The kv_blobs table must be migrated.
func NewGormKV(db *gorm.DB) *GormKV {
	return &GormKV{db: db}
}

// Get loads the blob stored under key
func (g *GormKV) Get(key string) ([]byte, bool, error) {
	var entry models.KVEntry
	err := g.db.Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set upserts the blob stored under key
func (g *GormKV) Set(key string, value []byte) error {
	entry := models.KVEntry{Key: key, Value: value}
	err := g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}
