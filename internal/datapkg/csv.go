package datapkg

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// LoadCSV reads a CSV file into records, decoding JSON cells back into their
// structured values.
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(Record, len(header))
		for i, key := range header {
			if i >= len(row) {
				break
			}
			record[key] = ParseCSVValue(row[i])
		}
		records = append(records, record)
	}
	return records, nil
}

// ParseCSVValue decodes a CSV cell: JSON arrays and objects round-trip as
// structured values, everything else stays a string.
func ParseCSVValue(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return cell
}

// FormatCSVValue is the inverse of ParseCSVValue.
func FormatCSVValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
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
		return strconv.FormatBool(t)
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(buf)
}

// SaveCSV writes records to path. Columns follow fieldOrder first, then any
// remaining record keys alphabetically.
func SaveCSV(path string, records []Record, fieldOrder []string) error {
	header := Columns(records, fieldOrder)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	row := make([]string, len(header))
	for _, record := range records {
		for i, key := range header {
			row[i] = FormatCSVValue(record[key])
		}
		if err := w.Write(row); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	w.Flush()
	return errors.Wrapf(w.Error(), "flushing %s", path)
}

// Columns computes the header for a record set: "id" first if present, then
// fieldOrder, then leftover keys alphabetically.
func Columns(records []Record, fieldOrder []string) []string {
	seen := make(map[string]bool)
	var header []string
	add := func(key string) {
		if !seen[key] {
			seen[key] = true
			header = append(header, key)
		}
	}
	hasID := false
	for _, r := range records {
		if _, ok := r["id"]; ok {
			hasID = true
			break
		}
	}
	if hasID {
		add("id")
	}
	for _, key := range fieldOrder {
		add(key)
	}
	var extras []string
	for _, r := range records {
		for key := range r {
			if !seen[key] {
				seen[key] = true
				extras = append(extras, key)
			}
		}
	}
	sort.Strings(extras)
	header = append(header, extras...)
	return header
}

// RenameColumn renames a key across all records in place.
func RenameColumn(records []Record, from, to string) {
	for _, r := range records {
		if v, ok := r[from]; ok {
			delete(r, from)
			r[to] = v
		}
	}
}

// RemoveColumn drops a key from all records in place.
func RemoveColumn(records []Record, key string) {
	for _, r := range records {
		delete(r, key)
	}
}
