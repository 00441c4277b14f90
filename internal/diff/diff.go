// Package diff compares field schemas and record sets, and groups records by
// duplicate keys. All functions are pure.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/schema"
)

// FieldChange is one schema difference between two field lists.
type FieldChange struct {
	Kind  string // added, removed, type_changed, name_changed, options_changed
	Key   string
	A, B  string // old/new rendering of the changed attribute
	Field schema.Field
}

func (c FieldChange) String() string {
	switch c.Kind {
	case "added":
		return fmt.Sprintf("+ %s (%s)", c.Key, c.Field.Type)
	case "removed":
		return fmt.Sprintf("- %s (%s)", c.Key, c.Field.Type)
	}
	return fmt.Sprintf("~ %s %s: %s -> %s", c.Key, strings.TrimSuffix(c.Kind, "_changed"), c.A, c.B)
}

// Fields diffs two field lists keyed by field key. Fields only in b are
// added, only in a removed; shared keys are compared on type, display name
// and option labels.
func Fields(a, b []schema.Field) []FieldChange {
	var changes []FieldChange
	byKey := make(map[string]schema.Field, len(a))
	for _, f := range a {
		byKey[f.Key] = f
	}
	seen := make(map[string]bool, len(b))
	for _, f := range b {
		seen[f.Key] = true
		old, ok := byKey[f.Key]
		if !ok {
			changes = append(changes, FieldChange{Kind: "added", Key: f.Key, Field: f})
			continue
		}
		if old.Type != f.Type {
			changes = append(changes, FieldChange{Kind: "type_changed", Key: f.Key, A: old.Type, B: f.Type, Field: f})
		}
		if old.Name != f.Name {
			changes = append(changes, FieldChange{Kind: "name_changed", Key: f.Key, A: old.Name, B: f.Name, Field: f})
		}
		if oldOpts, newOpts := optionLabels(old), optionLabels(f); oldOpts != newOpts {
			changes = append(changes, FieldChange{Kind: "options_changed", Key: f.Key, A: oldOpts, B: newOpts, Field: f})
		}
	}
	for _, f := range a {
		if !seen[f.Key] {
			changes = append(changes, FieldChange{Kind: "removed", Key: f.Key, Field: f})
		}
	}
	return changes
}

func optionLabels(f schema.Field) string {
	if !f.HasOptions() {
		return ""
	}
	labels := make([]string, len(f.Options))
	for i, o := range f.Options {
		labels[i] = o.Label
	}
	return strings.Join(labels, "|")
}

// RecordChange is one record difference between two record sets.
type RecordChange struct {
	Kind   string // added, removed, modified
	Key    string // key-field projection identifying the record
	Fields map[string][2]string
}

// Records diffs two record sets on the projection of keyField, comparing the
// intersection field-by-field with the shared normalization. Keys listed in
// exclude are ignored during comparison.
func Records(a, b []datapkg.Record, keyField string, exclude []string) []RecordChange {
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[e] = true
	}

	aByKey := indexByKey(a, keyField)
	bByKey := indexByKey(b, keyField)

	var changes []RecordChange
	for _, key := range sortedKeys(bByKey) {
		recB := bByKey[key]
		recA, ok := aByKey[key]
		if !ok {
			changes = append(changes, RecordChange{Kind: "added", Key: key})
			continue
		}
		fields := make(map[string][2]string)
		for _, fkey := range unionKeys(recA, recB) {
			if excluded[fkey] {
				continue
			}
			va := datapkg.NormalizeValue(recA[fkey])
			vb := datapkg.NormalizeValue(recB[fkey])
			if va != vb {
				fields[fkey] = [2]string{va, vb}
			}
		}
		if len(fields) > 0 {
			changes = append(changes, RecordChange{Kind: "modified", Key: key, Fields: fields})
		}
	}
	for _, key := range sortedKeys(aByKey) {
		if _, ok := bByKey[key]; !ok {
			changes = append(changes, RecordChange{Kind: "removed", Key: key})
		}
	}
	return changes
}

func indexByKey(records []datapkg.Record, keyField string) map[string]datapkg.Record {
	index := make(map[string]datapkg.Record, len(records))
	for _, r := range records {
		key := datapkg.NormalizeValue(r[keyField])
		if key == "" {
			continue
		}
		index[key] = r
	}
	return index
}

func sortedKeys(m map[string]datapkg.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionKeys(a, b datapkg.Record) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Group is a set of records sharing the same key-field projection.
type Group struct {
	Key     string
	Records []datapkg.Record
}

// FindDuplicates groups records on the comparable projection of keyFields,
// keeping groups of two or more, sorted by size descending (ties by key).
// Records with an all-blank key tuple are excluded unless includeNulls.
func FindDuplicates(records []datapkg.Record, keyFields []string, includeNulls bool) []Group {
	groups := make(map[string][]datapkg.Record)
	for _, r := range records {
		parts := make([]string, len(keyFields))
		blank := true
		for i, key := range keyFields {
			parts[i] = datapkg.NormalizeValue(r[key])
			if parts[i] != "" {
				blank = false
			}
		}
		if blank && !includeNulls {
			continue
		}
		tuple := strings.Join(parts, "\x00")
		groups[tuple] = append(groups[tuple], r)
	}
	var out []Group
	for key, members := range groups {
		if len(members) >= 2 {
			out = append(out, Group{Key: strings.ReplaceAll(key, "\x00", ", "), Records: members})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Records) != len(out[j].Records) {
			return len(out[i].Records) > len(out[j].Records)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
