package reconcile

import (
	"context"
	"fmt"

	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/schema"
)

const progressEvery = 10

// syncRecords is phase B: push every local record of an entity, in file
// order, creating or updating remotely. Strictly sequential: each record's
// reference rewriting depends on mappings accumulated by earlier entities.
func (e *Engine) syncRecords(ctx context.Context, ent entity.Config) (Stats, error) {
	var stats Stats
	records, err := e.pkg.LoadRecords(ent.Name)
	if err != nil {
		return stats, err
	}
	fields := e.pkg.Fields(ent.Name)

	// one id-set fetch instead of a per-record existence call
	var remoteIDs map[int]bool
	if e.opts.DryRun || e.opts.DeleteExtraRecords {
		remoteIDs, err = e.remote.FetchAllIDs(ctx, ent)
		if err != nil {
			return stats, err
		}
	}

	if e.opts.DeleteExtraRecords {
		if err := e.deleteExtras(ctx, ent, records, remoteIDs, &stats); err != nil {
			return stats, err
		}
	}

	for i, record := range records {
		localID, hasID := datapkg.RecordID(record)

		if hasID {
			if _, mapped, err := e.mappings.Get(ent.Name, localID); err != nil {
				return stats, err
			} else if mapped && e.opts.Resume {
				stats.Skipped++
				e.log(Action{Entity: ent.Name, Action: "skip_synced", ID: localID})
				continue
			}
		}

		payload := e.cleanPayload(record, ent)
		if err := e.rewriteReferences(payload, fields); err != nil {
			stats.Failed++
			e.log(Action{Entity: ent.Name, Action: "rewrite", ID: localID, Error: err.Error()})
			continue
		}
		if len(payload) == 0 {
			stats.Skipped++
			e.log(Action{Entity: ent.Name, Action: "skip_empty", ID: localID})
			continue
		}

		exists := false
		if hasID {
			if remoteIDs != nil {
				exists = remoteIDs[localID]
			} else {
				exists, err = e.remote.Exists(ctx, ent, localID)
				if err != nil {
					stats.Failed++
					e.logger.Warn("%s %d: exists check: %s", ent.Name, localID, err)
					e.log(Action{Entity: ent.Name, Action: "exists", ID: localID, Error: err.Error()})
					continue
				}
			}
		}

		switch {
		case !exists:
			e.createRecord(ctx, ent, localID, hasID, payload, &stats)
		case e.opts.SkipUnchanged:
			e.updateIfChanged(ctx, ent, localID, payload, &stats)
		default:
			e.updateRecord(ctx, ent, localID, payload, &stats)
		}

		if (i+1)%progressEvery == 0 {
			e.logger.Info("%s: %d/%d records", ent.Name, i+1, len(records))
		}
	}
	return stats, nil
}

func (e *Engine) createRecord(ctx context.Context, ent entity.Config, localID int, hasID bool, payload datapkg.Record, stats *Stats) {
	if e.opts.DryRun {
		if hasID {
			// simulated remote id so later references still rewrite
			if err := e.mappings.Put(ent.Name, localID, -localID); err != nil {
				stats.Failed++
				e.log(Action{Entity: ent.Name, Action: "map", ID: localID, Error: err.Error()})
				return
			}
		}
		stats.Created++
		e.log(Action{Entity: ent.Name, Action: "create", ID: localID})
		return
	}
	remoteID, err := e.remote.Create(ctx, ent, payload)
	if err != nil {
		stats.Failed++
		e.logger.Warn("%s %d: create: %s", ent.Name, localID, err)
		e.log(Action{Entity: ent.Name, Action: "create", ID: localID, Error: err.Error()})
		return
	}
	if hasID {
		// the mapping must be durable before the creation counts as done
		if err := e.mappings.Put(ent.Name, localID, remoteID); err != nil {
			stats.Failed++
			e.logger.Error("%s %d: persist mapping to %d: %s", ent.Name, localID, remoteID, err)
			e.log(Action{Entity: ent.Name, Action: "map", ID: localID, Error: err.Error()})
			return
		}
	}
	stats.Created++
	e.log(Action{Entity: ent.Name, Action: "create", ID: remoteID})
}

func (e *Engine) updateRecord(ctx context.Context, ent entity.Config, localID int, payload datapkg.Record, stats *Stats) {
	if e.opts.DryRun {
		stats.Updated++
		e.log(Action{Entity: ent.Name, Action: "update", ID: localID})
		return
	}
	if err := e.remote.Update(ctx, ent, localID, payload); err != nil {
		stats.Failed++
		e.logger.Warn("%s %d: update: %s", ent.Name, localID, err)
		e.log(Action{Entity: ent.Name, Action: "update", ID: localID, Error: err.Error()})
		return
	}
	stats.Updated++
	e.log(Action{Entity: ent.Name, Action: "update", ID: localID})
}

// updateIfChanged fetches the remote record and compares field by field with
// the shared normalization; equal records are skipped.
func (e *Engine) updateIfChanged(ctx context.Context, ent entity.Config, localID int, payload datapkg.Record, stats *Stats) {
	remoteRecord, err := e.remote.Get(ctx, ent, localID)
	if err != nil {
		stats.Failed++
		e.logger.Warn("%s %d: fetch for compare: %s", ent.Name, localID, err)
		e.log(Action{Entity: ent.Name, Action: "compare", ID: localID, Error: err.Error()})
		return
	}
	changed := false
	for key, v := range payload {
		if datapkg.NormalizeValue(remoteRecord[key]) != datapkg.NormalizeValue(v) {
			changed = true
			break
		}
	}
	if !changed {
		stats.Skipped++
		e.log(Action{Entity: ent.Name, Action: "skip_unchanged", ID: localID})
		return
	}
	e.updateRecord(ctx, ent, localID, payload, stats)
}

func (e *Engine) deleteExtras(ctx context.Context, ent entity.Config, records []datapkg.Record, remoteIDs map[int]bool, stats *Stats) error {
	local := make(map[int]bool, len(records))
	for _, r := range records {
		if id, ok := datapkg.RecordID(r); ok {
			local[id] = true
		}
	}
	// remote ids the local backup maps to are not extras either
	mapped, err := e.mappings.Entity(ent.Name)
	if err != nil {
		return err
	}
	for _, remoteID := range mapped {
		local[remoteID] = true
	}
	for remoteID := range remoteIDs {
		if local[remoteID] {
			continue
		}
		if !e.opts.Force && !e.opts.DryRun {
			decision, err := e.confirm(fmt.Sprintf("Delete remote %s record %d not present locally?", ent.Name, remoteID))
			if err != nil {
				return err
			}
			switch decision {
			case Abort:
				return ErrAborted
			case No:
				stats.Skipped++
				continue
			}
		}
		if e.opts.DryRun {
			stats.Deleted++
			e.log(Action{Entity: ent.Name, Action: "delete", ID: remoteID})
			continue
		}
		if err := e.remote.Delete(ctx, ent, remoteID); err != nil {
			stats.Failed++
			e.logger.Warn("%s %d: delete: %s", ent.Name, remoteID, err)
			e.log(Action{Entity: ent.Name, Action: "delete", ID: remoteID, Error: err.Error()})
			continue
		}
		stats.Deleted++
		e.log(Action{Entity: ent.Name, Action: "delete", ID: remoteID})
	}
	return nil
}

// cleanPayload strips the id, read-only/system fields and empty values.
func (e *Engine) cleanPayload(record datapkg.Record, ent entity.Config) datapkg.Record {
	payload := make(datapkg.Record, len(record))
	for key, v := range record {
		if key == "id" || entity.ReadonlyFields[key] {
			continue
		}
		if v == nil || v == "" {
			continue
		}
		payload[key] = v
	}
	return payload
}

// rewriteReferences replaces reference-field values with the mapped remote
// ids accumulated so far and unwraps reference objects to bare ids.
// References to entities not yet processed stay as-is; the post-pass fixes
// them once all mappings exist.
func (e *Engine) rewriteReferences(payload datapkg.Record, fields []schema.Field) error {
	for _, f := range fields {
		target, isRef := entity.ReferencedEntity(f.Type)
		if !isRef {
			continue
		}
		v, ok := payload[f.Key]
		if !ok {
			continue
		}
		// unwrap {"value": id, ...} objects first
		if m, isObj := v.(map[string]any); isObj {
			v = m["value"]
		}
		localID, ok := datapkg.AsInt(v)
		if !ok {
			continue
		}
		if remoteID, mapped, err := e.mappings.Get(target, localID); err != nil {
			return err
		} else if mapped {
			payload[f.Key] = remoteID
		} else {
			payload[f.Key] = localID
		}
	}
	return nil
}
