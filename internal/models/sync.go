package models

import (
	"time"

	"gorm.io/gorm"
)

// KVEntry is one opaque blob in the key-value store that backs the local collection
// and the persisted sync configuration
type KVEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(255)" json:"key"`
	Value     []byte    `gorm:"type:bytea;not null" json:"value"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName specifies the table name
func (KVEntry) TableName() string {
	return "kv_blobs"
}

// BeforeSave hook
func (e *KVEntry) BeforeSave(tx *gorm.DB) error {
	e.UpdatedAt = time.Now().UTC()
	return nil
}
