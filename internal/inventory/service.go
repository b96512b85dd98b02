// Package inventory applies operator edits to the local collection
package inventory

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xelth-com/magazzino/internal/history"
	"github.com/xelth-com/magazzino/internal/models"
	"github.com/xelth-com/magazzino/internal/store"
)

var (
	ErrInvalidName = errors.New("invalid name")
	ErrExists      = errors.New("already exists")
	ErrNotFound    = errors.New("not found")
)

// maxNameLength bounds warehouse names
const maxNameLength = 50

// History actions
const (
	ActionWarehouseAdded   = "warehouse.added"
	ActionWarehouseRenamed = "warehouse.renamed"
	ActionWarehouseRemoved = "warehouse.removed"
	ActionCategoryAdded    = "category.added"
	ActionCategoryRemoved  = "category.removed"
	ActionItemAdded        = "item.added"
	ActionItemUpdated      = "item.updated"
	ActionItemRemoved      = "item.removed"
)

// ItemPatch carries the fields of an item edit; nil fields are left alone
type ItemPatch struct {
	Name           *string `json:"name,omitempty"`
	Quantity       *int    `json:"quantity,omitempty"`
	AlertThreshold *int    `json:"alertThreshold,omitempty"`
}

// Service edits the collection under the store lock and reports each
// structural change to the history sink
type Service struct {
	store *store.Collection
	sink  history.Sink
	now   func() time.Time
}

// NewService creates a service. A nil sink discards history.
func NewService(s *store.Collection, sink history.Sink) *Service {
	if sink == nil {
		sink = history.Nop{}
	}
	return &Service{store: s, sink: sink, now: time.Now}
}

// Snapshot returns the current collection
func (s *Service) Snapshot() (models.Collection, error) {
	return s.store.Snapshot()
}

// AddWarehouse creates an empty warehouse
func (s *Service) AddWarehouse(name string) error {
	name = strings.TrimSpace(name)
	if err := checkName(name); err != nil {
		return err
	}
	err := s.store.Update(func(c models.Collection) error {
		if _, ok := c[name]; ok {
			return fmt.Errorf("warehouse %q %w", name, ErrExists)
		}
		c[name] = models.Warehouse{}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ActionWarehouseAdded, history.Details{
		Message:   fmt.Sprintf("Aggiunto magazzino %s", name),
		Warehouse: name,
	})
	return nil
}

// RenameWarehouse moves every category to newName. Existing names are refused.
func (s *Service) RenameWarehouse(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if err := checkName(newName); err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	err := s.store.Update(func(c models.Collection) error {
		wh, ok := c[oldName]
		if !ok {
			return fmt.Errorf("warehouse %q %w", oldName, ErrNotFound)
		}
		if _, exists := c[newName]; exists {
			return fmt.Errorf("warehouse %q %w", newName, ErrExists)
		}
		c[newName] = wh
		delete(c, oldName)
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ActionWarehouseRenamed, history.Details{
		Message:   fmt.Sprintf("Rinominato magazzino da %q a %q", oldName, newName),
		Warehouse: newName,
	})
	return nil
}

// RemoveWarehouse deletes a warehouse with everything in it
func (s *Service) RemoveWarehouse(name string) error {
	err := s.store.Update(func(c models.Collection) error {
		if _, ok := c[name]; !ok {
			return fmt.Errorf("warehouse %q %w", name, ErrNotFound)
		}
		delete(c, name)
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ActionWarehouseRemoved, history.Details{
		Message:   fmt.Sprintf("Rimosso magazzino %s", name),
		Warehouse: name,
	})
	return nil
}

// AddCategory creates an empty category
func (s *Service) AddCategory(warehouse, name string) error {
	name = strings.TrimSpace(name)
	if err := checkName(name); err != nil {
		return err
	}
	err := s.store.Update(func(c models.Collection) error {
		wh, ok := c[warehouse]
		if !ok {
			return fmt.Errorf("warehouse %q %w", warehouse, ErrNotFound)
		}
		if _, ok := wh[name]; ok {
			return fmt.Errorf("category %q %w", name, ErrExists)
		}
		wh[name] = models.Category{}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ActionCategoryAdded, history.Details{
		Message:   fmt.Sprintf("Aggiunta nuova categoria: %s", name),
		Warehouse: warehouse,
		Category:  name,
	})
	return nil
}

// RemoveCategory deletes a category with its items
func (s *Service) RemoveCategory(warehouse, name string) error {
	err := s.store.Update(func(c models.Collection) error {
		wh, ok := c[warehouse]
		if !ok {
			return fmt.Errorf("warehouse %q %w", warehouse, ErrNotFound)
		}
		if _, ok := wh[name]; !ok {
			return fmt.Errorf("category %q %w", name, ErrNotFound)
		}
		delete(wh, name)
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ActionCategoryRemoved, history.Details{
		Message:   fmt.Sprintf("Rimossa categoria: %s", name),
		Warehouse: warehouse,
		Category:  name,
	})
	return nil
}

// AddItem inserts a new, never-synced item. Names are unique per category.
func (s *Service) AddItem(warehouse, category string, item models.Item) (models.Item, error) {
	item = item.Normalize()
	item.RemoteID = ""
	if item.Name == "" {
		return models.Item{}, fmt.Errorf("item name: %w", ErrInvalidName)
	}
	item.Touch(s.now())

	err := s.store.Update(func(c models.Collection) error {
		wh, ok := c[warehouse]
		if !ok {
			return fmt.Errorf("warehouse %q %w", warehouse, ErrNotFound)
		}
		cat, ok := wh[category]
		if !ok {
			return fmt.Errorf("category %q %w", category, ErrNotFound)
		}
		if cat.Find(item.Name) >= 0 {
			return fmt.Errorf("item %q %w", item.Name, ErrExists)
		}
		wh[category] = append(cat, item)
		return nil
	})
	if err != nil {
		return models.Item{}, err
	}
	s.record(ActionItemAdded, history.Details{
		Message:   fmt.Sprintf("Aggiunto nuovo articolo in %s", category),
		Warehouse: warehouse,
		Category:  category,
		Item:      item.Name,
	})
	return item, nil
}

// UpdateItem applies patch and stamps the item's modification time. The
// remote link is kept so the next upload updates rather than recreates.
func (s *Service) UpdateItem(ref models.ItemRef, patch ItemPatch) (models.Item, error) {
	var (
		before, after models.Item
		changes       []string
	)
	err := s.store.Update(func(c models.Collection) error {
		cur, ok := c.Lookup(ref)
		if !ok {
			return fmt.Errorf("item %q %w", ref.Name, ErrNotFound)
		}
		before = cur
		next := cur
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return fmt.Errorf("item name: %w", ErrInvalidName)
			}
			if models.ItemKey(name) != cur.Key() && c[ref.Warehouse][ref.Category].Find(name) >= 0 {
				return fmt.Errorf("item %q %w", name, ErrExists)
			}
			next.Name = name
		}
		if patch.Quantity != nil {
			next.Quantity = *patch.Quantity
		}
		if patch.AlertThreshold != nil {
			next.AlertThreshold = *patch.AlertThreshold
		}
		next = next.Normalize()

		changes = diff(before, next)
		if len(changes) == 0 {
			after = cur
			return nil
		}
		next.Touch(s.now())
		after = next
		c.Mutate(ref, func(it *models.Item) { *it = next })
		return nil
	})
	if err != nil {
		return models.Item{}, err
	}
	for _, change := range changes {
		s.record(ActionItemUpdated, history.Details{
			Message:   fmt.Sprintf("Modificato %s di %s in %s", change, before.Name, ref.Category),
			Warehouse: ref.Warehouse,
			Category:  ref.Category,
			Item:      after.Name,
		})
	}
	return after, nil
}

// RemoveItem deletes an item. A linked remote record is deleted by the next upload.
func (s *Service) RemoveItem(ref models.ItemRef) error {
	err := s.store.Update(func(c models.Collection) error {
		cat, ok := c[ref.Warehouse][ref.Category]
		if !ok {
			return fmt.Errorf("category %q %w", ref.Category, ErrNotFound)
		}
		idx := cat.Find(ref.Name)
		if idx < 0 {
			return fmt.Errorf("item %q %w", ref.Name, ErrNotFound)
		}
		c[ref.Warehouse][ref.Category] = append(cat[:idx], cat[idx+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ActionItemRemoved, history.Details{
		Message:   fmt.Sprintf("Rimosso articolo %s da %s", ref.Name, ref.Category),
		Warehouse: ref.Warehouse,
		Category:  ref.Category,
		Item:      ref.Name,
	})
	return nil
}

// LowStock lists items at or below their threshold
func (s *Service) LowStock() ([]models.ItemRef, error) {
	c, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return c.LowStock(), nil
}

func (s *Service) record(action string, d history.Details) {
	if err := s.sink.Append(history.NewEntry(action, d)); err != nil {
		log.Printf("⚠️ History append failed (%s): %v", action, err)
	}
}

func checkName(name string) error {
	if !models.ValidName(name) || len(name) > maxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func diff(a, b models.Item) []string {
	var out []string
	if a.Name != b.Name {
		out = append(out, fmt.Sprintf("nome da %s a %s", a.Name, b.Name))
	}
	if a.Quantity != b.Quantity {
		out = append(out, fmt.Sprintf("quantita da %d a %d", a.Quantity, b.Quantity))
	}
	if a.AlertThreshold != b.AlertThreshold {
		out = append(out, fmt.Sprintf("alertThreshold da %d a %d", a.AlertThreshold, b.AlertThreshold))
	}
	return out
}
