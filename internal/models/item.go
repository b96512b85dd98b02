package models

import (
	"strings"
	"time"
)

// DefaultAlertThreshold is applied when an item is created without a threshold
const DefaultAlertThreshold = 5

// Item is a stocked article inside a category.
// RemoteID links the item to its record in the remote table; empty means never synced.
type Item struct {
	Name           string     `json:"name"`
	Quantity       int        `json:"quantity"`
	AlertThreshold int        `json:"alertThreshold"`
	RemoteID       string     `json:"remoteId,omitempty"`
	LastModified   *time.Time `json:"lastModified,omitempty"`
}

// Key returns the case-insensitive identity of the item within its category
func (i Item) Key() string {
	return ItemKey(i.Name)
}

// IsLowStock reports whether the quantity reached the alert threshold
func (i Item) IsLowStock() bool {
	threshold := i.AlertThreshold
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}
	return i.Quantity <= threshold
}

// Normalize trims the name and clamps quantity and threshold into their valid ranges
func (i Item) Normalize() Item {
	i.Name = strings.TrimSpace(i.Name)
	if i.Quantity < 0 {
		i.Quantity = 0
	}
	if i.AlertThreshold < 1 {
		i.AlertThreshold = DefaultAlertThreshold
	}
	return i
}

// Touch stamps the item as modified at t (UTC, millisecond precision like the remote store)
func (i *Item) Touch(t time.Time) {
	ts := t.UTC().Truncate(time.Millisecond)
	i.LastModified = &ts
}

// ModifiedAt returns LastModified or the zero time
func (i Item) ModifiedAt() time.Time {
	if i.LastModified == nil {
		return time.Time{}
	}
	return *i.LastModified
}

// ItemKey normalizes an item name for case-insensitive comparison
func ItemKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
