package datapkg

import (
	"strconv"
	"strings"
)

// ExtractComparable reduces a record value to the scalar string used for
// key-field dedup, diffing and duplicate grouping: nil becomes "", numbers
// their canonical decimal form, reference objects their "value", multi-value
// arrays the primary element's "value" (or the first element's).
func ExtractComparable(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		if len(t) == 0 {
			return ""
		}
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if primary, _ := m["primary"].(bool); primary {
					return ExtractComparable(m["value"])
				}
			}
		}
		if m, ok := t[0].(map[string]any); ok {
			return ExtractComparable(m["value"])
		}
		return ExtractComparable(t[0])
	case map[string]any:
		return ExtractComparable(t["value"])
	}
	return FormatCSVValue(v)
}

// NormalizeValue is the comparison form shared by the diff engine and the
// skip-unchanged check: comparable extraction plus whitespace trim.
func NormalizeValue(v any) string {
	return strings.TrimSpace(ExtractComparable(v))
}

// RecordID returns a record's id as an int, when it has one.
func RecordID(r Record) (int, bool) {
	return AsInt(r["id"])
}

// AsInt coerces a scalar id value (int, float or numeric string) to an int.
func AsInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int64(t)) {
			return int(t), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// MaxID returns the largest integer id across the records.
func MaxID(records []Record) int {
	var max int
	for _, r := range records {
		if id, ok := RecordID(r); ok && id > max {
			max = id
		}
	}
	return max
}
