package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sync run statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusError   = "error"
)

// SyncHistory records each sync run against the remote table
type SyncHistory struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Operation   string         `gorm:"column:operation;not null;index" json:"operation"` // "upload", "download", "full"
	Status      string         `gorm:"column:status;not null;index" json:"status"`       // "success", "partial", "error"
	StartedAt   time.Time      `gorm:"column:started_at;not null" json:"startedAt"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completedAt"`
	Duration    int            `gorm:"column:duration;default:0" json:"duration"` // milliseconds
	Created     int            `gorm:"column:created;default:0" json:"created"`
	Updated     int            `gorm:"column:updated;default:0" json:"updated"`
	Deleted     int            `gorm:"column:deleted;default:0" json:"deleted"`
	Downloaded  int            `gorm:"column:downloaded;default:0" json:"downloaded"`
	Errors      int            `gorm:"column:errors;default:0" json:"errors"`
	ErrorDetail string         `gorm:"column:error_detail;type:text" json:"errorDetail"`
	DebugInfo   datatypes.JSON `gorm:"column:debug_info" json:"debugInfo"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"-"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"-"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (SyncHistory) TableName() string {
	return "sync_history"
}
