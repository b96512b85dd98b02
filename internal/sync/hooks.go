package sync

import "github.com/xelth-com/magazzino/internal/models"

// Notifier receives sync lifecycle events for connected clients
type Notifier interface {
	Notify(event string, payload any)
}

// RunRecorder persists one row per sync run
type RunRecorder interface {
	RecordRun(run *models.SyncHistory) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, any) {}

type nopRecorder struct{}

func (nopRecorder) RecordRun(*models.SyncHistory) error { return nil }

// Sync events
const (
	EventSyncStarted   = "sync.started"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
	EventConnection    = "sync.connection"
)
