package expr

import (
	"strconv"
	"strings"
)

// OptionValue wraps a stored enum/set option id together with its display
// label so expressions can compare against either. The canonical string form
// is the raw id, which keeps round-tripping and set comma-joining stable.
type OptionValue struct {
	id    string
	label string
}

// NewOptionValue wraps a stored option id and its label (may be empty).
func NewOptionValue(id, label string) OptionValue {
	return OptionValue{id: id, label: label}
}

// String returns the raw stored id, never the label.
func (o OptionValue) String() string { return o.id }

// Label returns the display label.
func (o OptionValue) Label() string { return o.label }

// EqualsValue compares against an expression value: ints compare as numeric
// strings, strings compare to the id first and then case-insensitively to the
// label, everything else is unequal.
func (o OptionValue) EqualsValue(v any) bool {
	switch t := v.(type) {
	case int:
		return o.id == strconv.Itoa(t)
	case int64:
		return o.id == strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return o.id == strconv.FormatInt(int64(t), 10)
		}
		return false
	case string:
		if o.id == t {
			return true
		}
		return o.label != "" && strings.EqualFold(o.label, t)
	case OptionValue:
		return o.id == t.id
	}
	return false
}

// PreprocessRecord wraps every non-null, non-empty value of a field present
// in the option lookup into OptionValue before evaluation. Set fields stored
// as comma-joined ids (or arrays) wrap element-wise. The input record is not
// mutated.
func PreprocessRecord(record map[string]any, lookup map[string]map[string]string) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		options, ok := lookup[k]
		if !ok || v == nil {
			out[k] = v
			continue
		}
		out[k] = wrapOption(v, options)
	}
	return out
}

func wrapOption(v any, options map[string]string) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return t
		}
		if strings.Contains(t, ",") {
			parts := strings.Split(t, ",")
			wrapped := make([]any, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p == "" {
					continue
				}
				wrapped = append(wrapped, NewOptionValue(p, options[p]))
			}
			return wrapped
		}
		return NewOptionValue(t, options[t])
	case int:
		id := strconv.Itoa(t)
		return NewOptionValue(id, options[id])
	case int64:
		id := strconv.FormatInt(t, 10)
		return NewOptionValue(id, options[id])
	case float64:
		if t == float64(int64(t)) {
			id := strconv.FormatInt(int64(t), 10)
			return NewOptionValue(id, options[id])
		}
		return v
	case []any:
		wrapped := make([]any, len(t))
		for i, item := range t {
			wrapped[i] = wrapOption(item, options)
		}
		return wrapped
	}
	return v
}
