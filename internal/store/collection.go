package store

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/xelth-com/magazzino/internal/models"
)

// CollectionKey is the key-value entry holding the full local collection
const CollectionKey = "warehouseData"

// Collection is the locally authoritative inventory, persisted as one JSON blob.
// Every read-modify-write goes through Update, which holds the store's mutex.
type Collection struct {
	mu sync.Mutex
	kv KV
}

// NewCollection creates a collection store over kv
func NewCollection(kv KV) *Collection {
	return &Collection{kv: kv}
}

// Snapshot returns a deep copy of the current collection
func (c *Collection) Snapshot() (models.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// Replace overwrites the whole collection
func (c *Collection) Replace(data models.Collection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(data)
}

// Update runs fn against the current collection and persists the result when fn
// returns nil. The store lock is held for the whole sequence.
func (c *Collection) Update(fn func(models.Collection) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.load()
	if err != nil {
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	return c.save(data)
}

func (c *Collection) load() (models.Collection, error) {
	raw, ok, err := c.kv.Get(CollectionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	if !ok || len(raw) == 0 {
		log.Println("📦 Local store empty, starting from the default dataset")
		return models.DefaultCollection(), nil
	}

	var data models.Collection
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	if data == nil {
		data = models.Collection{}
	}
	return data, nil
}

func (c *Collection) save(data models.Collection) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	if err := c.kv.Set(CollectionKey, raw); err != nil {
		return fmt.Errorf("failed to write collection: %w", err)
	}
	return nil
}
