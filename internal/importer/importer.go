// Package importer merges a batch of incoming records into an existing
// record set, deduplicating by configurable key fields.
package importer

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/shopmonkeyus/go-common/logger"
)

// DuplicatePolicy decides what happens when an incoming row matches an
// existing record on the key fields.
type DuplicatePolicy string

const (
	// Update partially merges the incoming row's valid fields onto the match.
	Update DuplicatePolicy = "update"
	// Skip leaves the existing record untouched.
	Skip DuplicatePolicy = "skip"
	// Fail records a row-level error without aborting the batch.
	Fail DuplicatePolicy = "error"
)

// Options configures a merge run.
type Options struct {
	// KeyFields identify duplicates. Empty means every row is new.
	KeyFields []string

	// OnDuplicate is the policy for key matches. Defaults to Update.
	OnDuplicate DuplicatePolicy

	// AutoID assigns max(existing id)+1 to rows without an id.
	AutoID bool

	// IncludeNullKeys indexes all-blank key tuples too. Off by default so
	// blank rows never collide with each other.
	IncludeNullKeys bool

	// Log receives one audit entry per processed row.
	Log func(entry LogEntry)
}

// LogEntry is one row's audit record.
type LogEntry struct {
	Row    int            `json:"row"`
	Action string         `json:"action"` // created, updated, skipped, error
	ID     any            `json:"id,omitempty"`
	Old    map[string]any `json:"old,omitempty"`
	New    map[string]any `json:"new,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Stats aggregates a merge run.
type Stats struct {
	Created int
	Updated int
	Skipped int
	Errors  int
}

func (s Stats) String() string {
	return fmt.Sprintf("created: %d, updated: %d, skipped: %d, errors: %d", s.Created, s.Updated, s.Skipped, s.Errors)
}

// RowResult is the outcome for a single incoming row.
type RowResult struct {
	Row    int
	Action string
	ID     any
	Err    error
}

const blankTupleMarker = "\x00blank"

// Merge merges incoming rows into existing records. Only keys present in
// validFields survive into created or updated records; existing records are
// modified in place on update and the (possibly extended) slice is returned.
func Merge(log logger.Logger, incoming, existing []datapkg.Record, validFields []string, opts Options) (Stats, []datapkg.Record, []RowResult) {
	var stats Stats
	results := make([]RowResult, 0, len(incoming))
	if opts.OnDuplicate == "" {
		opts.OnDuplicate = Update
	}
	valid := make(map[string]bool, len(validFields)+1)
	for _, f := range validFields {
		valid[f] = true
	}
	valid["id"] = true

	index := make(map[string]int)
	if len(opts.KeyFields) > 0 {
		for i, record := range existing {
			tuple, blank := keyTuple(record, opts.KeyFields)
			if blank && !opts.IncludeNullKeys {
				continue
			}
			if _, exists := index[tuple]; !exists {
				index[tuple] = i
			}
		}
	}

	merged := existing
	nextID := datapkg.MaxID(existing) + 1

	for rowNum, row := range incoming {
		outcome := rowOutcome{Row: rowNum + 1}

		matchPos := -1
		tuple := ""
		indexable := false
		if len(opts.KeyFields) > 0 {
			var blank bool
			tuple, blank = keyTuple(row, opts.KeyFields)
			indexable = !blank || opts.IncludeNullKeys
			if indexable {
				if pos, ok := index[tuple]; ok {
					matchPos = pos
				}
			}
		}

		if matchPos < 0 {
			record := make(datapkg.Record, len(row))
			for k, v := range row {
				if valid[k] {
					record[k] = v
				}
			}
			if _, hasID := record["id"]; !hasID && opts.AutoID {
				record["id"] = nextID
				nextID++
			}
			merged = append(merged, record)
			if indexable {
				index[tuple] = len(merged) - 1
			}
			outcome.Action = "created"
			outcome.ID = record["id"]
		} else {
			target := merged[matchPos]
			outcome.ID = target["id"]
			switch opts.OnDuplicate {
			case Skip:
				outcome.Action = "skipped"
			case Fail:
				outcome.Action = "error"
				outcome.Err = errors.Newf("duplicate of existing record %v on %s", target["id"], strings.Join(opts.KeyFields, ","))
			default:
				old := make(map[string]any)
				changed := make(map[string]any)
				for k, v := range row {
					if !valid[k] || k == "id" {
						continue
					}
					if prev, ok := target[k]; !ok || datapkg.NormalizeValue(prev) != datapkg.NormalizeValue(v) {
						old[k] = prev
						changed[k] = v
						target[k] = v
					}
				}
				outcome.Action = "updated"
				outcome.old = old
				outcome.changed = changed
			}
		}

		switch outcome.Action {
		case "created":
			stats.Created++
		case "updated":
			stats.Updated++
		case "skipped":
			stats.Skipped++
		case "error":
			stats.Errors++
			log.Warn("row %d: %s", outcome.Row, outcome.Err)
		}
		if opts.Log != nil {
			entry := LogEntry{Row: outcome.Row, Action: outcome.Action, ID: outcome.ID, Old: outcome.old, New: outcome.changed}
			if outcome.Err != nil {
				entry.Error = outcome.Err.Error()
			}
			opts.Log(entry)
		}
		results = append(results, RowResult{Row: outcome.Row, Action: outcome.Action, ID: outcome.ID, Err: outcome.Err})
	}

	log.Debug("merge complete: %s", stats)
	return stats, merged, results
}

type rowOutcome struct {
	Row     int
	Action  string
	ID      any
	Err     error
	old     map[string]any
	changed map[string]any
}

// keyTuple projects a record's key fields onto a comparable string tuple.
// The bool reports an all-blank tuple.
func keyTuple(record datapkg.Record, keyFields []string) (string, bool) {
	parts := make([]string, len(keyFields))
	blank := true
	for i, key := range keyFields {
		parts[i] = datapkg.ExtractComparable(record[key])
		if strings.TrimSpace(parts[i]) != "" {
			blank = false
		}
	}
	if blank {
		return blankTupleMarker, true
	}
	return strings.Join(parts, "\x00"), false
}
