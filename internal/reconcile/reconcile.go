// Package reconcile pushes a local backup package to the remote service: it
// synchronizes custom-field schemas (phase A), then creates or updates
// records entity by entity (phase B), tracking local-to-remote id mappings
// for reference fields, with dry-run, resume and post-run local rewrite.
package reconcile

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/schema"
	"github.com/shopmonkeyus/go-common/logger"
)

// ErrAborted is returned when the user declines to continue the whole run.
var ErrAborted = errors.New("aborted by user")

// Decision is a confirmation outcome.
type Decision int

const (
	// No skips the single action and continues the run.
	No Decision = iota
	// Yes performs the action.
	Yes
	// Abort stops the entire run.
	Abort
)

// Confirmer asks the user before a destructive action. Engines never prompt
// when force or dry-run is set.
type Confirmer func(prompt string) (Decision, error)

// RemoteService is the remote side of a reconciliation. Implemented by
// remote.Client and faked in tests. Retry and rate limiting are the
// implementation's concern; every call is a single fallible operation.
type RemoteService interface {
	FetchFields(ctx context.Context, ent entity.Config) ([]schema.Field, error)
	FetchAllIDs(ctx context.Context, ent entity.Config) (map[int]bool, error)
	Exists(ctx context.Context, ent entity.Config, id int) (bool, error)
	Get(ctx context.Context, ent entity.Config, id int) (datapkg.Record, error)
	Create(ctx context.Context, ent entity.Config, payload datapkg.Record) (int, error)
	Update(ctx context.Context, ent entity.Config, id int, payload datapkg.Record) error
	Delete(ctx context.Context, ent entity.Config, id int) error
	CreateField(ctx context.Context, ent entity.Config, field schema.Field) (schema.Field, error)
	UpdateField(ctx context.Context, ent entity.Config, field schema.Field) error
	DeleteField(ctx context.Context, ent entity.Config, fieldID int) error
}

// MappingStore is the durable local-to-remote id mapping table. Implemented
// by tracker.Tracker; dry runs swap in an in-memory store so nothing touches
// disk.
type MappingStore interface {
	Get(entity string, localID int) (int, bool, error)
	Put(entity string, localID, remoteID int) error
	Entity(entity string) (map[int]int, error)
	All() (map[string]map[int]int, error)
}

// Action is one line of the structured run log.
type Action struct {
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     any    `json:"id,omitempty"`
	Key    string `json:"key,omitempty"`
	Error  string `json:"error,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// Stats counts outcomes for one entity phase.
type Stats struct {
	Created int
	Updated int
	Skipped int
	Failed  int
	Deleted int
}

func (s Stats) String() string {
	return fmt.Sprintf("created: %d, updated: %d, skipped: %d, failed: %d, deleted: %d",
		s.Created, s.Updated, s.Skipped, s.Failed, s.Deleted)
}

// Empty reports an all-zero stats.
func (s Stats) Empty() bool {
	return s == Stats{}
}

// EntityReport is the outcome for one entity.
type EntityReport struct {
	Entity  string
	Fields  Stats
	Records Stats
}

// Report is the outcome of a whole run.
type Report struct {
	Entities []EntityReport
	DryRun   bool
}

// Options configures a run.
type Options struct {
	// Entities to process, already in dependency order.
	Entities []entity.Config

	// DryRun simulates every action: no remote mutation, no local write.
	DryRun bool

	// Resume skips records whose local id already has a mapping.
	Resume bool

	// DeleteExtraFields removes remote custom fields absent locally.
	DeleteExtraFields bool

	// DeleteExtraRecords removes remote records absent locally.
	DeleteExtraRecords bool

	// SkipUnchanged compares before updating and skips equal records.
	SkipUnchanged bool

	// NoRewriteLocal opts out of the post-run rewrite of local files to
	// remote ids.
	NoRewriteLocal bool

	// Force suppresses confirmation prompts.
	Force bool

	// Log receives every state-changing action (or its simulation).
	Log func(action Action)
}

// Engine runs one reconciliation.
type Engine struct {
	logger   logger.Logger
	remote   RemoteService
	pkg      *datapkg.Package
	mappings MappingStore
	confirm  Confirmer
	opts     Options
}

// New creates an engine. mappings may be nil (a fresh in-memory store is
// used); dry-run always uses an in-memory overlay seeded from the store so a
// simulated run never persists anything.
func New(log logger.Logger, remoteSvc RemoteService, pkg *datapkg.Package, mappings MappingStore, confirm Confirmer, opts Options) *Engine {
	if mappings == nil {
		mappings = newMemoryStore()
	}
	if opts.DryRun {
		mappings = newMemoryOverlay(mappings)
	}
	if confirm == nil {
		confirm = func(string) (Decision, error) { return No, nil }
	}
	return &Engine{
		logger:   log.WithPrefix("[reconcile]"),
		remote:   remoteSvc,
		pkg:      pkg,
		mappings: mappings,
		confirm:  confirm,
		opts:     opts,
	}
}

// Run executes the reconciliation and returns the per-entity report. A user
// abort returns ErrAborted together with the partial report.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{DryRun: e.opts.DryRun}
	entities := e.opts.Entities
	if len(entities) == 0 {
		for _, name := range entity.StoreOrder {
			if ent, ok := entity.Get(name); ok {
				entities = append(entities, ent)
			}
		}
	}

	for _, ent := range entities {
		if ent.ReadOnly {
			e.logger.Info("skipping read-only entity %s", ent.Name)
			continue
		}
		er := EntityReport{Entity: ent.Name}

		if ent.HasFields() {
			stats, err := e.syncFields(ctx, ent)
			er.Fields = stats
			if err != nil {
				report.Entities = append(report.Entities, er)
				return report, err
			}
		}

		stats, err := e.syncRecords(ctx, ent)
		er.Records = stats
		report.Entities = append(report.Entities, er)
		if err != nil {
			return report, err
		}
		e.logger.Info("%s: fields %s; records %s", ent.Name, er.Fields, er.Records)
	}

	if !e.opts.DryRun && !e.opts.NoRewriteLocal {
		if err := e.rewriteLocal(); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (e *Engine) log(action Action) {
	action.DryRun = e.opts.DryRun
	if e.opts.Log != nil {
		e.opts.Log(action)
	}
}

// rewriteLocal is the post-pass: every record's own id and every reference
// field is re-resolved against the now-complete mapping tables, so the local
// copy points at remote ids after a successful run.
func (e *Engine) rewriteLocal() error {
	all, err := e.mappings.All()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return nil
	}
	for _, res := range e.pkg.Resources {
		records, err := e.pkg.LoadRecords(res.Entity)
		if err != nil {
			return err
		}
		fields := e.pkg.Fields(res.Entity)
		changed := false
		own := all[res.Entity]
		for _, record := range records {
			if id, ok := datapkg.RecordID(record); ok {
				if remoteID, ok := own[id]; ok {
					record["id"] = remoteID
					changed = true
				}
			}
			for _, f := range fields {
				target, ok := entity.ReferencedEntity(f.Type)
				if !ok {
					continue
				}
				v := record[f.Key]
				// reference cells from a backup can be {"value": id, ...}
				if m, isObj := v.(map[string]any); isObj {
					v = m["value"]
				}
				if localID, ok := datapkg.AsInt(v); ok {
					if remoteID, ok := all[target][localID]; ok {
						record[f.Key] = remoteID
						changed = true
					}
				}
			}
		}
		if changed {
			if err := e.pkg.SaveRecords(res.Entity, records); err != nil {
				return err
			}
			e.logger.Debug("rewrote %s with remote ids", res.Entity)
		}
	}
	return e.pkg.Save()
}
