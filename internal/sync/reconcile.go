package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xelth-com/magazzino/internal/models"
	"github.com/xelth-com/magazzino/internal/remote"
	"github.com/xelth-com/magazzino/internal/store"
)

// Engine computes and applies the plan that makes the remote table match the
// local collection
type Engine struct {
	store *store.Collection
	now   func() time.Time
}

// NewEngine creates an engine writing remote ids back into st
func NewEngine(st *store.Collection, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: st, now: now}
}

// BuildPlan partitions local items and remote records.
// A local item whose remoteId is present remotely is updated only when newer;
// a missing or unknown remoteId means create; unclaimed remote records are deleted.
// Items without a timestamp are stamped with now so the remote row carries one.
func BuildPlan(local models.Collection, records []remote.Record, now time.Time) *Plan {
	byID := make(map[string]remote.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	claimed := make(map[string]bool, len(records))

	plan := &Plan{}
	local.Walk(func(ref models.ItemRef, item models.Item) {
		if item.LastModified == nil {
			item.Touch(now)
		}

		if item.RemoteID != "" && !claimed[item.RemoteID] {
			if rec, ok := byID[item.RemoteID]; ok {
				claimed[item.RemoteID] = true
				if ResolveConflict(item.LastModified, RecordTimestamp(rec)) == WinnerLocal {
					plan.ToUpdate = append(plan.ToUpdate, PlannedItem{Ref: ref, Item: item, Record: EncodeItem(ref, item)})
				}
				return
			}
		}

		// never synced, deleted remotely, or a duplicate claim on the same id
		item.RemoteID = ""
		plan.ToCreate = append(plan.ToCreate, PlannedItem{Ref: ref, Item: item, Record: EncodeItem(ref, item)})
	})

	for _, rec := range records {
		if !claimed[rec.ID] {
			plan.ToDelete = append(plan.ToDelete, remote.Record{ID: rec.ID})
		}
	}
	return plan
}

// Reconcile lists the remote table and applies the plan for snapshot
func (e *Engine) Reconcile(ctx context.Context, table Table, snapshot models.Collection) (*Result, error) {
	records, err := table.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyncUnavailable, err)
	}
	log.Printf("📥 Fetched %d remote records", len(records))
	return e.Apply(ctx, table, snapshot, records)
}

// Apply submits creates, then updates, then deletes. Failed batches are recorded
// in the result and skipped. Created ids are written back after every
// successful create batch.
func (e *Engine) Apply(ctx context.Context, table Table, snapshot models.Collection, records []remote.Record) (*Result, error) {
	plan := BuildPlan(snapshot, records, e.now())
	log.Printf("📊 Plan: %d creates, %d updates, %d deletes", len(plan.ToCreate), len(plan.ToUpdate), len(plan.ToDelete))

	result := &Result{}
	if plan.Empty() {
		return result, nil
	}

	if len(plan.ToCreate) > 0 {
		br, err := table.BatchWrite(ctx, remote.BatchCreate, recordsOf(plan.ToCreate), e.writeBack(plan.ToCreate, true))
		if br != nil {
			result.Created = br.Applied
			result.FailedCreate = br.Failed
			result.addErrors(br.Errors)
		}
		if err != nil {
			return result, fmt.Errorf("create phase aborted: %w", err)
		}
	}

	if len(plan.ToUpdate) > 0 {
		br, err := table.BatchWrite(ctx, remote.BatchUpdate, recordsOf(plan.ToUpdate), e.writeBack(plan.ToUpdate, false))
		if br != nil {
			result.Updated = br.Applied
			result.FailedUpdate = br.Failed
			result.addErrors(br.Errors)
		}
		if err != nil {
			return result, fmt.Errorf("update phase aborted: %w", err)
		}
	}

	if len(plan.ToDelete) > 0 {
		br, err := table.BatchWrite(ctx, remote.BatchDelete, plan.ToDelete, nil)
		if br != nil {
			result.Deleted = br.Applied
			result.FailedDelete = br.Failed
			result.addErrors(br.Errors)
		}
		if err != nil {
			return result, fmt.Errorf("delete phase aborted: %w", err)
		}
	}

	log.Printf("✅ Reconciled: %d created, %d updated, %d deleted, %d failed",
		result.Created, result.Updated, result.Deleted, result.Failed())
	return result, nil
}

// writeBack links the local items of a successful batch to their remote records.
// The remote timestamp is adopted only when the item was not edited after the
// snapshot; the id is always adopted (last writer wins).
func (e *Engine) writeBack(planned []PlannedItem, linkID bool) remote.BatchCallback {
	return func(offset int, echoed []remote.Record) {
		err := e.store.Update(func(data models.Collection) error {
			for i, rec := range echoed {
				p := planned[offset+i]
				data.Mutate(p.Ref, func(item *models.Item) {
					if linkID {
						item.RemoteID = rec.ID
					} else if item.RemoteID != rec.ID {
						return
					}
					if ResolveConflict(item.LastModified, p.Item.LastModified) == WinnerLocal {
						return
					}
					if ts := RecordTimestamp(rec); ts != nil {
						item.LastModified = ts
					} else {
						item.LastModified = p.Item.LastModified
					}
				})
			}
			return nil
		})
		if err != nil {
			log.Printf("❌ Failed to write back %d remote ids: %v", len(echoed), err)
		}
	}
}

func recordsOf(planned []PlannedItem) []remote.Record {
	out := make([]remote.Record, len(planned))
	for i, p := range planned {
		out[i] = p.Record
	}
	return out
}
