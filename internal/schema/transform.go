package schema

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02.01.2006",
	"01/02/2006",
	time.RFC3339,
}

// TransformValue converts a raw string value for storage in a field of the
// target type. Used by field copy. Enum/set targets map labels (or raw ids)
// to option ids; unknown labels are an error so a copy never invents options
// silently.
func TransformValue(target Field, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	switch target.Type {
	case "int":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", errors.Newf("cannot convert %q to int", raw)
		}
		return strconv.Itoa(int(f)), nil
	case "double", "monetary":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", errors.Newf("cannot convert %q to double", raw)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case "varchar", "text":
		return raw, nil
	case "date":
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return "", errors.Newf("cannot parse %q as a date", raw)
	case "enum":
		id, err := resolveOption(target, raw)
		if err != nil {
			return "", err
		}
		return id, nil
	case "set":
		parts := strings.Split(raw, ",")
		ids := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			id, err := resolveOption(target, p)
			if err != nil {
				return "", err
			}
			ids = append(ids, id)
		}
		return strings.Join(ids, ","), nil
	}
	return raw, nil
}

func resolveOption(f Field, value string) (string, error) {
	for _, o := range f.Options {
		if strconv.Itoa(o.ID) == value {
			return value, nil
		}
	}
	if id, ok := f.OptionIDForLabel(value); ok {
		return strconv.Itoa(id), nil
	}
	return "", errors.Newf("field %s has no option matching %q", f.Key, value)
}

// CollectUniqueValues gathers the distinct non-empty values of a column,
// splitting comma-joined set values element-wise. Sorted for stable output.
func CollectUniqueValues(records []map[string]any, key string, split bool) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(toString(v))
		if s == "" {
			continue
		}
		if split {
			for _, p := range strings.Split(s, ",") {
				if p = strings.TrimSpace(p); p != "" {
					seen[p] = true
				}
			}
		} else {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MissingOptions returns the values with no matching option id or label in
// the field, i.e. the options a sync would need to add.
func MissingOptions(f Field, values []string) []string {
	var missing []string
	for _, v := range values {
		if _, err := resolveOption(f, v); err != nil {
			missing = append(missing, v)
		}
	}
	return missing
}

// UnusedOptions returns the labels of options never referenced by the values.
func UnusedOptions(f Field, values []string) []string {
	used := make(map[string]bool)
	for _, v := range values {
		if id, err := resolveOption(f, v); err == nil {
			used[id] = true
		}
	}
	var unused []string
	for _, o := range f.Options {
		if !used[strconv.Itoa(o.ID)] {
			unused = append(unused, o.Label)
		}
	}
	return unused
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	return ""
}
