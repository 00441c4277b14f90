package reconcile

import (
	"context"
	"fmt"

	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/schema"
)

// syncFields is phase A: align the remote custom-field schema with the local
// one. Creates missing fields (label-only options), renames drifted display
// names, optionally deletes extras after confirmation, and propagates any
// remote-assigned key renames into the local schema and CSV before phase B.
func (e *Engine) syncFields(ctx context.Context, ent entity.Config) (Stats, error) {
	var stats Stats
	local := e.pkg.Fields(ent.Name)
	remoteFields, err := e.remote.FetchFields(ctx, ent)
	if err != nil {
		return stats, err
	}
	remoteByKey := make(map[string]schema.Field, len(remoteFields))
	for _, f := range remoteFields {
		remoteByKey[f.Key] = f
	}
	localByKey := make(map[string]schema.Field, len(local))
	for _, f := range local {
		localByKey[f.Key] = f
	}

	renames := make(map[string]string)

	for i, f := range local {
		if !f.Editable {
			continue
		}
		remoteField, exists := remoteByKey[f.Key]
		if !exists {
			if e.opts.DryRun {
				stats.Created++
				e.log(Action{Entity: ent.Name, Action: "create_field", Key: f.Key})
				continue
			}
			created, err := e.remote.CreateField(ctx, ent, f)
			if err != nil {
				stats.Skipped++
				e.logger.Warn("%s: create field %s: %s", ent.Name, f.Key, err)
				e.log(Action{Entity: ent.Name, Action: "create_field", Key: f.Key, Error: err.Error()})
				continue
			}
			stats.Created++
			e.log(Action{Entity: ent.Name, Action: "create_field", Key: created.Key, ID: created.ID})
			if created.Key != f.Key {
				renames[f.Key] = created.Key
			}
			// adopt remote ids and option numbering
			local[i] = created
			local[i].Editable = true
			continue
		}
		if remoteField.Name != f.Name {
			if e.opts.DryRun {
				stats.Updated++
				e.log(Action{Entity: ent.Name, Action: "rename_field", Key: f.Key})
				continue
			}
			remoteField.Name = f.Name
			if err := e.remote.UpdateField(ctx, ent, remoteField); err != nil {
				stats.Skipped++
				e.logger.Warn("%s: rename field %s: %s", ent.Name, f.Key, err)
				e.log(Action{Entity: ent.Name, Action: "rename_field", Key: f.Key, Error: err.Error()})
				continue
			}
			stats.Updated++
			e.log(Action{Entity: ent.Name, Action: "rename_field", Key: f.Key, ID: remoteField.ID})
		}
	}

	if e.opts.DeleteExtraFields {
		for _, f := range remoteFields {
			if !f.Editable {
				continue
			}
			if _, exists := localByKey[f.Key]; exists {
				continue
			}
			if !e.opts.Force && !e.opts.DryRun {
				decision, err := e.confirm(fmt.Sprintf("Delete remote field %q (%s) of %s?", f.Name, f.Key, ent.Name))
				if err != nil {
					return stats, err
				}
				switch decision {
				case Abort:
					return stats, ErrAborted
				case No:
					stats.Skipped++
					continue
				}
			}
			if e.opts.DryRun {
				stats.Deleted++
				e.log(Action{Entity: ent.Name, Action: "delete_field", Key: f.Key})
				continue
			}
			if err := e.remote.DeleteField(ctx, ent, f.ID); err != nil {
				stats.Skipped++
				e.logger.Warn("%s: delete field %s: %s", ent.Name, f.Key, err)
				e.log(Action{Entity: ent.Name, Action: "delete_field", Key: f.Key, Error: err.Error()})
				continue
			}
			stats.Deleted++
			e.log(Action{Entity: ent.Name, Action: "delete_field", Key: f.Key, ID: f.ID})
		}
	}

	if len(renames) > 0 {
		if err := e.applyKeyRenames(ent, local, renames); err != nil {
			return stats, err
		}
	} else if stats.Created > 0 && !e.opts.DryRun {
		// created fields may have new remote ids/options worth keeping
		e.pkg.SetFields(ent.Name, local)
		if err := e.pkg.Save(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// applyKeyRenames rewrites the local schema and CSV headers to the
// remote-assigned field keys so phase B sends remote-valid payloads.
func (e *Engine) applyKeyRenames(ent entity.Config, fields []schema.Field, renames map[string]string) error {
	e.pkg.SetFields(ent.Name, fields)
	records, err := e.pkg.LoadRecords(ent.Name)
	if err != nil {
		return err
	}
	for oldKey, newKey := range renames {
		datapkg.RenameColumn(records, oldKey, newKey)
		e.logger.Debug("%s: renamed column %s -> %s", ent.Name, oldKey, newKey)
	}
	if err := e.pkg.SaveRecords(ent.Name, records); err != nil {
		return err
	}
	return e.pkg.Save()
}
