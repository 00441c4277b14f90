package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statusField = Field{
	Key:  "status",
	Name: "Status",
	Type: "enum",
	Options: []Option{
		{ID: 37, Label: "Active"},
		{ID: 38, Label: "Inactive"},
	},
}

func TestOptionLookup(t *testing.T) {
	fields := []Field{
		statusField,
		{Key: "name", Name: "Name", Type: "varchar"},
	}
	lookup := OptionLookup(fields)
	require.Len(t, lookup, 1)
	assert.Equal(t, "Active", lookup["status"]["37"])
	assert.Equal(t, "Inactive", lookup["status"]["38"])
}

func TestFormatOptionValue(t *testing.T) {
	assert.Equal(t, "Active (37)", FormatOptionValue(statusField, "37"))
	assert.Equal(t, "Active (37), Inactive (38)", FormatOptionValue(statusField, "37,38"))
	assert.Equal(t, "99", FormatOptionValue(statusField, "99"))
	assert.Equal(t, "", FormatOptionValue(statusField, ""))
}

func TestCoerceRecord(t *testing.T) {
	fields := []Field{
		{Key: "age", Type: "int"},
		{Key: "score", Type: "double"},
		{Key: "name", Type: "varchar"},
	}
	record := map[string]any{"age": "42", "score": "1.5", "name": "7", "extra": "8"}
	out := CoerceRecord(record, fields)
	assert.Equal(t, 42, out["age"])
	assert.Equal(t, 1.5, out["score"])
	assert.Equal(t, "7", out["name"])
	assert.Equal(t, "8", out["extra"])
	assert.Equal(t, "42", record["age"])
}

func TestCoerceValueUnparseable(t *testing.T) {
	assert.Equal(t, "n/a", CoerceValue("int", "n/a"))
	assert.Equal(t, "", CoerceValue("int", ""))
}

func TestTransformValue(t *testing.T) {
	for _, tc := range []struct {
		field Field
		in    string
		want  string
	}{
		{Field{Type: "int"}, "3.7", "3"},
		{Field{Type: "double"}, "3.50", "3.5"},
		{Field{Type: "varchar"}, "hello", "hello"},
		{Field{Type: "date"}, "31.12.2024", "2024-12-31"},
		{Field{Type: "date"}, "2024-12-31", "2024-12-31"},
		{statusField, "Active", "37"},
		{statusField, "37", "37"},
		{Field{Type: "set", Options: statusField.Options}, "Active, Inactive", "37,38"},
	} {
		got, err := TransformValue(tc.field, tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestTransformValueErrors(t *testing.T) {
	_, err := TransformValue(Field{Type: "int"}, "abc")
	assert.Error(t, err)
	_, err = TransformValue(statusField, "Unknown")
	assert.Error(t, err)
	_, err = TransformValue(Field{Type: "date"}, "not a date")
	assert.Error(t, err)
}

func TestCollectUniqueValues(t *testing.T) {
	records := []map[string]any{
		{"tags": "a,b"},
		{"tags": "b, c"},
		{"tags": ""},
		{"tags": nil},
		{"other": "x"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, CollectUniqueValues(records, "tags", true))
	assert.Equal(t, []string{"a,b", "b, c"}, CollectUniqueValues(records, "tags", false))
}

func TestMissingAndUnusedOptions(t *testing.T) {
	values := []string{"Active", "Pending"}
	assert.Equal(t, []string{"Pending"}, MissingOptions(statusField, values))
	assert.Equal(t, []string{"Inactive"}, UnusedOptions(statusField, values))
}
