package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is a single custom or system field definition for an entity.
type Field struct {
	ID       int      `json:"id,omitempty"`
	Key      string   `json:"key"`
	Name     string   `json:"name"`
	Type     string   `json:"field_type"`
	Editable bool     `json:"edit_flag"`
	Options  []Option `json:"options,omitempty"`
}

// Option is one choice of an enum or set field.
type Option struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// HasOptions reports whether the field type carries an option list.
func (f Field) HasOptions() bool {
	return f.Type == "enum" || f.Type == "set"
}

// IsReference reports whether the field holds an id of another entity's record.
func (f Field) IsReference() bool {
	switch f.Type {
	case "org", "people", "user":
		return true
	}
	return false
}

// FindKey returns the field with the given key.
func FindKey(fields []Field, key string) (Field, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Keys returns the field keys in definition order.
func Keys(fields []Field) []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// OptionLookup builds fieldKey -> optionID(string) -> label for every
// enum/set field. The expression engine uses it to wrap stored option ids.
func OptionLookup(fields []Field) map[string]map[string]string {
	lookup := make(map[string]map[string]string)
	for _, f := range fields {
		if !f.HasOptions() || len(f.Options) == 0 {
			continue
		}
		m := make(map[string]string, len(f.Options))
		for _, o := range f.Options {
			m[strconv.Itoa(o.ID)] = o.Label
		}
		lookup[f.Key] = m
	}
	return lookup
}

// OptionLabel returns the label for an option id, or the id itself when the
// field has no such option.
func (f Field) OptionLabel(id string) string {
	for _, o := range f.Options {
		if strconv.Itoa(o.ID) == id {
			return o.Label
		}
	}
	return id
}

// OptionIDForLabel returns the id of the option whose label matches
// case-insensitively.
func (f Field) OptionIDForLabel(label string) (int, bool) {
	for _, o := range f.Options {
		if strings.EqualFold(o.Label, label) {
			return o.ID, true
		}
	}
	return 0, false
}

// FormatOptionValue renders a stored option id (or comma-joined set of ids)
// for display as "label (id)".
func FormatOptionValue(f Field, raw string) string {
	if raw == "" {
		return raw
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		label := f.OptionLabel(p)
		if label == p {
			out = append(out, p)
		} else {
			out = append(out, fmt.Sprintf("%s (%s)", label, p))
		}
	}
	return strings.Join(out, ", ")
}

// CoerceValue converts a raw CSV string into the native value the declared
// field type implies, so declared-numeric fields compare as numbers in
// expressions without explicit conversion calls. Unparseable values are
// returned unchanged.
func CoerceValue(fieldType, raw string) any {
	if raw == "" {
		return raw
	}
	switch fieldType {
	case "int", "org", "people", "user", "visible_to":
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case "double", "monetary":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

// CoerceRecord applies CoerceValue to every field of the record that has a
// declared type. Returns a new record; the input is not modified.
func CoerceRecord(record map[string]any, fields []Field) map[string]any {
	types := make(map[string]string, len(fields))
	for _, f := range fields {
		types[f.Key] = f.Type
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		if s, ok := v.(string); ok {
			if t, ok := types[k]; ok {
				out[k] = CoerceValue(t, s)
				continue
			}
		}
		out[k] = v
	}
	return out
}
