package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/xelth-com/magazzino/internal/config"
	"github.com/xelth-com/magazzino/internal/models"
	"github.com/xelth-com/magazzino/internal/remote"
	"github.com/xelth-com/magazzino/internal/store"
	"gorm.io/datatypes"
)

// Sync operations
const (
	OpUpload   = "upload"
	OpDownload = "download"
	OpFull     = "full"
)

// TableFactory builds a remote table client for the current credentials
type TableFactory func(creds remote.Credentials) Table

// NewTableFactory returns a factory producing remote.Client instances that share
// httpClient (typically routed through the cache proxy)
func NewTableFactory(opts remote.Options, httpClient *http.Client, sleep remote.Sleeper) TableFactory {
	return func(creds remote.Credentials) Table {
		return remote.NewClient(creds, opts, httpClient, sleep)
	}
}

// Report is what a sync operation returns to its caller
type Report struct {
	Operation   string           `json:"operation"`
	Result      *Result          `json:"result,omitempty"`
	Downloaded  int              `json:"downloaded"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
	Stats       config.SyncStats `json:"stats"`
}

// Partial reports whether the run completed with failed batches
func (r *Report) Partial() bool {
	return r.Result != nil && r.Result.Partial()
}

// Orchestrator is the entry point for connection tests and sync runs.
// Upload, Download and FullSync share one in-flight slot.
type Orchestrator struct {
	settings *config.SettingsStore
	store    *store.Collection
	engine   *Engine
	tables   TableFactory
	notifier Notifier
	recorder RunRecorder
	now      func() time.Time

	inFlight atomic.Bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithNotifier sets the event notifier
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithRunRecorder sets the run log
func WithRunRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator wires the orchestrator
func NewOrchestrator(settings *config.SettingsStore, st *store.Collection, tables TableFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings: settings,
		store:    st,
		tables:   tables,
		notifier: nopNotifier{},
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.engine = NewEngine(st, o.now)
	return o
}

// InProgress reports whether a sync run is active
func (o *Orchestrator) InProgress() bool {
	return o.inFlight.Load()
}

// TestConnection probes the remote table and persists the connection flag
func (o *Orchestrator) TestConnection(ctx context.Context) error {
	settings, err := o.settings.Load()
	if err != nil {
		return err
	}
	if !settings.IsConfigured() {
		return remote.ErrConfigInvalid
	}

	pingErr := o.tables(credentials(settings)).Ping(ctx)
	if _, err := o.settings.Update(func(s *config.SyncSettings) { s.IsConnected = pingErr == nil }); err != nil {
		log.Printf("⚠️ Failed to persist connection state: %v", err)
	}
	o.notifier.Notify(EventConnection, map[string]any{"connected": pingErr == nil})

	if pingErr != nil {
		log.Printf("❌ Remote connection test failed: %v", pingErr)
		return pingErr
	}
	log.Println("✅ Remote connection test succeeded")
	return nil
}

// Upload reconciles the local collection into the remote table
func (o *Orchestrator) Upload(ctx context.Context) (*Report, error) {
	return o.run(ctx, OpUpload, func(ctx context.Context, table Table, report *Report) error {
		snapshot, err := o.store.Snapshot()
		if err != nil {
			return err
		}
		result, err := o.engine.Reconcile(ctx, table, snapshot)
		report.Result = result
		return err
	})
}

// Download replaces the local collection with the remote table
func (o *Orchestrator) Download(ctx context.Context) (*Report, error) {
	return o.run(ctx, OpDownload, func(ctx context.Context, table Table, report *Report) error {
		records, err := table.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSyncUnavailable, err)
		}
		if err := o.store.Replace(DecodeRecords(records)); err != nil {
			return err
		}
		report.Downloaded = len(records)
		log.Printf("📥 Downloaded %d records", len(records))
		return nil
	})
}

// FullSync merges the remote table into the local collection (remote wins on
// matched items, never-synced local items are kept) and then reconciles the
// merged state back to the remote table.
func (o *Orchestrator) FullSync(ctx context.Context) (*Report, error) {
	return o.run(ctx, OpFull, func(ctx context.Context, table Table, report *Report) error {
		records, err := table.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSyncUnavailable, err)
		}
		report.Downloaded = len(records)

		var merged models.Collection
		err = o.store.Update(func(local models.Collection) error {
			merged = MergeRemote(local, DecodeRecords(records))
			for k := range local {
				delete(local, k)
			}
			for k, v := range merged.Clone() {
				local[k] = v
			}
			return nil
		})
		if err != nil {
			return err
		}

		result, err := o.engine.Apply(ctx, table, merged, records)
		report.Result = result
		return err
	})
}

type runFunc func(ctx context.Context, table Table, report *Report) error

func (o *Orchestrator) run(ctx context.Context, op string, fn runFunc) (*Report, error) {
	settings, err := o.settings.Load()
	if err != nil {
		return nil, err
	}
	if !settings.IsConfigured() {
		return nil, remote.ErrConfigInvalid
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer o.inFlight.Store(false)

	report := &Report{Operation: op, StartedAt: o.now().UTC()}
	log.Printf("🔄 Sync %s started (table %s)", op, settings.Table())
	o.notifier.Notify(EventSyncStarted, map[string]any{"operation": op})

	runErr := fn(ctx, o.tables(credentials(settings)), report)
	report.CompletedAt = o.now().UTC()

	// a run that got as far as applying anything counts as completed
	completed := runErr == nil || report.Result != nil
	if completed {
		stats, err := o.recordStats(report)
		if err != nil {
			log.Printf("⚠️ Failed to persist sync stats: %v", err)
		}
		report.Stats = stats
	}

	o.recordRun(report, runErr)

	if runErr != nil {
		log.Printf("❌ Sync %s failed: %v", op, runErr)
		o.notifier.Notify(EventSyncFailed, map[string]any{"operation": op, "error": runErr.Error()})
		return report, runErr
	}

	o.notifier.Notify(EventSyncCompleted, report)
	log.Printf("✅ Sync %s completed in %v", op, report.CompletedAt.Sub(report.StartedAt))
	return report, nil
}

func (o *Orchestrator) recordStats(report *Report) (config.SyncStats, error) {
	settings, err := o.settings.Update(func(s *config.SyncSettings) {
		if report.Result != nil {
			s.Stats.Uploaded += report.Result.Created + report.Result.Updated
		}
		s.Stats.Downloaded += report.Downloaded
		done := report.CompletedAt
		s.LastSync = &done
		s.Stats.LastSuccess = &done
	})
	return settings.Stats, err
}

func (o *Orchestrator) recordRun(report *Report, runErr error) {
	completed := report.CompletedAt
	run := &models.SyncHistory{
		Operation:   report.Operation,
		Status:      models.SyncStatusSuccess,
		StartedAt:   report.StartedAt,
		CompletedAt: &completed,
		Duration:    int(report.CompletedAt.Sub(report.StartedAt).Milliseconds()),
		Downloaded:  report.Downloaded,
	}
	if r := report.Result; r != nil {
		run.Created, run.Updated, run.Deleted = r.Created, r.Updated, r.Deleted
		run.Errors = r.Failed()
		if r.Partial() {
			run.Status = models.SyncStatusPartial
		}
		if len(r.ErrorMessages) > 0 {
			if debug, err := json.Marshal(map[string]any{"batchErrors": r.ErrorMessages}); err == nil {
				run.DebugInfo = datatypes.JSON(debug)
			}
		}
	}
	if runErr != nil {
		run.Status = models.SyncStatusError
		run.ErrorDetail = runErr.Error()
		if errors.Is(runErr, remote.ErrRateLimited) {
			run.ErrorDetail = "rate limited: " + runErr.Error()
		}
	}

	if err := o.recorder.RecordRun(run); err != nil {
		log.Printf("⚠️ Failed to record sync run: %v", err)
	}
}

// MergeRemote overlays the remote collection onto local. Remote values win for
// every item it contains; local items never synced are kept unless the remote
// has an item of the same name there; synced local items missing remotely are
// dropped. Local warehouses and categories are kept even when empty.
func MergeRemote(local, remoteData models.Collection) models.Collection {
	merged := remoteData.Clone()

	for whName, wh := range local {
		mwh, ok := merged[whName]
		if !ok {
			mwh = models.Warehouse{}
			merged[whName] = mwh
		}
		for catName, cat := range wh {
			mcat := mwh[catName]
			if mcat == nil {
				mcat = models.Category{}
			}
			for _, item := range cat {
				if item.RemoteID != "" {
					continue
				}
				if mcat.Find(item.Name) < 0 {
					mcat = append(mcat, item)
				}
			}
			mwh[catName] = mcat
		}
	}
	return merged
}

func credentials(s config.SyncSettings) remote.Credentials {
	return remote.Credentials{APIKey: s.APIKey, CollectionID: s.CollectionID, Table: s.Table()}
}
