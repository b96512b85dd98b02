package models

import (
	"sort"
	"strings"
)

// Category holds the items of one category. Order carries no meaning.
type Category []Item

// Warehouse maps category names to their items
type Warehouse map[string]Category

// Collection is the full local dataset: warehouse name -> warehouse
type Collection map[string]Warehouse

// ItemRef locates an item inside a collection
type ItemRef struct {
	Warehouse string `json:"warehouse"`
	Category  string `json:"category"`
	Name      string `json:"name"`
}

// Find returns the index of the item named name (case-insensitive), or -1
func (c Category) Find(name string) int {
	key := ItemKey(name)
	for idx, item := range c {
		if item.Key() == key {
			return idx
		}
	}
	return -1
}

// FindRemote returns the index of the item linked to remoteID, or -1
func (c Category) FindRemote(remoteID string) int {
	if remoteID == "" {
		return -1
	}
	for idx, item := range c {
		if item.RemoteID == remoteID {
			return idx
		}
	}
	return -1
}

// Upsert inserts item or, when an item with the same name exists, replaces it in place
func (c Category) Upsert(item Item) Category {
	if idx := c.Find(item.Name); idx >= 0 {
		c[idx] = item
		return c
	}
	return append(c, item)
}

// Clone returns a deep copy of the collection
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for whName, wh := range c {
		cp := make(Warehouse, len(wh))
		for catName, cat := range wh {
			items := make(Category, len(cat))
			for idx, item := range cat {
				if item.LastModified != nil {
					ts := *item.LastModified
					item.LastModified = &ts
				}
				items[idx] = item
			}
			cp[catName] = items
		}
		out[whName] = cp
	}
	return out
}

// Lookup returns the item at ref
func (c Collection) Lookup(ref ItemRef) (Item, bool) {
	cat, ok := c[ref.Warehouse][ref.Category]
	if !ok {
		return Item{}, false
	}
	idx := cat.Find(ref.Name)
	if idx < 0 {
		return Item{}, false
	}
	return cat[idx], true
}

// Mutate applies fn to the item at ref in place. It reports whether the item was found.
func (c Collection) Mutate(ref ItemRef, fn func(*Item)) bool {
	wh, ok := c[ref.Warehouse]
	if !ok {
		return false
	}
	cat, ok := wh[ref.Category]
	if !ok {
		return false
	}
	idx := cat.Find(ref.Name)
	if idx < 0 {
		return false
	}
	fn(&cat[idx])
	return true
}

// Walk visits every item in deterministic (sorted) order
func (c Collection) Walk(fn func(ref ItemRef, item Item)) {
	for _, whName := range sortedKeys(c) {
		wh := c[whName]
		for _, catName := range sortedKeys(wh) {
			for _, item := range wh[catName] {
				fn(ItemRef{Warehouse: whName, Category: catName, Name: item.Name}, item)
			}
		}
	}
}

// Count returns the number of items in the collection
func (c Collection) Count() int {
	n := 0
	for _, wh := range c {
		for _, cat := range wh {
			n += len(cat)
		}
	}
	return n
}

// LowStock returns references to all items at or below their alert threshold
func (c Collection) LowStock() []ItemRef {
	var refs []ItemRef
	c.Walk(func(ref ItemRef, item Item) {
		if item.IsLowStock() {
			refs = append(refs, ref)
		}
	})
	return refs
}

// ValidName reports whether a warehouse or category name is usable
func ValidName(name string) bool {
	return strings.TrimSpace(name) != "" && strings.TrimSpace(name) == name
}

// DefaultCollection is the dataset a fresh installation starts with
func DefaultCollection() Collection {
	return Collection{
		"Magazzino 1": Warehouse{
			"cibo": Category{
				{Name: "Pasta", Quantity: 15, AlertThreshold: 5},
				{Name: "Riso", Quantity: 12, AlertThreshold: 3},
				{Name: "Olio", Quantity: 8, AlertThreshold: 2},
			},
			"pulizie": Category{
				{Name: "Detersivo", Quantity: 10, AlertThreshold: 4},
				{Name: "Sapone per piatti", Quantity: 7, AlertThreshold: 3},
			},
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
