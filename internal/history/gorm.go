package history

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/xelth-com/magazzino/internal/models"
)

// GormSink persists entries in the inventory_history table
type GormSink struct {
	db *gorm.DB
}

// NewGormSink creates a sink over db
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Append(entry models.HistoryEntry) error {
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (s *GormSink) Recent(limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	var entries []models.HistoryEntry
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// RunLog persists one sync_history row per sync run
type RunLog struct {
	db *gorm.DB
}

// NewRunLog creates a run log over db
func NewRunLog(db *gorm.DB) *RunLog {
	return &RunLog{db: db}
}

// RecordRun stores run
func (l *RunLog) RecordRun(run *models.SyncHistory) error {
	if err := l.db.Create(run).Error; err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first
func (l *RunLog) Runs(limit int) ([]models.SyncHistory, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	var runs []models.SyncHistory
	if err := l.db.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to read sync runs: %w", err)
	}
	return runs, nil
}
