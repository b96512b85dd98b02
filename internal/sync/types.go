package sync

import (
	"context"
	"errors"

	"github.com/xelth-com/magazzino/internal/models"
	"github.com/xelth-com/magazzino/internal/remote"
)

var (
	// ErrSyncInProgress rejects a sync call while another one is running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncUnavailable aborts a reconciliation before any local change
	ErrSyncUnavailable = errors.New("remote store unavailable, sync aborted")
)

// Table is the remote table surface the engine drives
type Table interface {
	Ping(ctx context.Context) error
	ListAll(ctx context.Context) ([]remote.Record, error)
	BatchWrite(ctx context.Context, kind remote.BatchKind, records []remote.Record, onBatch remote.BatchCallback) (*remote.BatchResult, error)
}

// PlannedItem pairs a local item with the record that will be sent for it
type PlannedItem struct {
	Ref    models.ItemRef
	Item   models.Item
	Record remote.Record
}

// Plan is the create/update/delete set of one reconciliation pass. Never persisted.
type Plan struct {
	ToCreate []PlannedItem
	ToUpdate []PlannedItem
	ToDelete []remote.Record
}

// Empty reports whether the plan has nothing to apply
func (p *Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToUpdate) == 0 && len(p.ToDelete) == 0
}

// Result reports what a reconciliation actually applied
type Result struct {
	Created       int      `json:"created"`
	Updated       int      `json:"updated"`
	Deleted       int      `json:"deleted"`
	FailedCreate  int      `json:"failedCreate"`
	FailedUpdate  int      `json:"failedUpdate"`
	FailedDelete  int      `json:"failedDelete"`
	Errors        []error  `json:"-"`
	ErrorMessages []string `json:"errors,omitempty"`
}

// Partial reports whether some batches failed
func (r *Result) Partial() bool {
	return r.FailedCreate+r.FailedUpdate+r.FailedDelete > 0
}

// Failed returns the number of records that were not applied
func (r *Result) Failed() int {
	return r.FailedCreate + r.FailedUpdate + r.FailedDelete
}

func (r *Result) addErrors(errs []error) {
	for _, err := range errs {
		r.Errors = append(r.Errors, err)
		r.ErrorMessages = append(r.ErrorMessages, err.Error())
	}
}
