package datapkg

import (
	"path/filepath"
	"testing"

	"github.com/crmvault/crmvault/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVValueRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		cell string
		want any
	}{
		{"hello", "hello"},
		{"", ""},
		{"42", "42"},
		{`{"value":7,"primary":true}`, map[string]any{"value": float64(7), "primary": true}},
		{`[{"value":"a"},{"value":"b"}]`, []any{map[string]any{"value": "a"}, map[string]any{"value": "b"}}},
		{"[not json", "[not json"},
	} {
		got := ParseCSVValue(tc.cell)
		assert.Equal(t, tc.want, got, "cell %q", tc.cell)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persons.csv")
	records := []Record{
		{"id": "1", "name": "Ada", "phone": []any{map[string]any{"value": "555", "primary": true}}},
		{"id": "2", "name": "Grace", "phone": ""},
	}
	require.NoError(t, SaveCSV(path, records, []string{"name", "phone"}))

	loaded, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "Ada", loaded[0]["name"])
	phone, ok := loaded[0]["phone"].([]any)
	require.True(t, ok)
	first := phone[0].(map[string]any)
	assert.Equal(t, "555", first["value"])
	assert.Equal(t, "", loaded[1]["phone"])
}

func TestColumnsOrder(t *testing.T) {
	records := []Record{{"id": "1", "zeta": "z", "name": "x", "alpha": "a"}}
	header := Columns(records, []string{"name"})
	assert.Equal(t, []string{"id", "name", "alpha", "zeta"}, header)
}

func TestPackageDescriptorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pkg := New(dir, "backup")
	pkg.SetResource(Resource{
		Entity: "persons",
		Path:   "persons.csv",
		Fields: []schema.Field{{Key: "name", Name: "Name", Type: "varchar", Editable: true}},
	})
	require.NoError(t, pkg.SaveRecords("persons", []Record{{"id": "1", "name": "Ada"}}))
	require.NoError(t, pkg.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	res, ok := loaded.Resource("persons")
	require.True(t, ok)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "varchar", res.Fields[0].Type)

	records, err := loaded.LoadRecords("persons")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ada", records[0]["name"])
}

func TestLoadMissingDescriptor(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestExtractComparable(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{42, "42"},
		{float64(42), "42"},
		{map[string]any{"value": float64(7), "name": "Acme"}, "7"},
		{[]any{map[string]any{"value": "a"}, map[string]any{"value": "b", "primary": true}}, "b"},
		{[]any{map[string]any{"value": "a"}, map[string]any{"value": "b"}}, "a"},
		{[]any{}, ""},
		{[]any{"x", "y"}, "x"},
	} {
		assert.Equal(t, tc.want, ExtractComparable(tc.in), "input %#v", tc.in)
	}
}

func TestMaxID(t *testing.T) {
	records := []Record{{"id": "3"}, {"id": 10}, {"id": "nope"}, {}}
	assert.Equal(t, 10, MaxID(records))
	assert.Equal(t, 0, MaxID(nil))
}

func TestRenameRemoveColumn(t *testing.T) {
	records := []Record{{"a": "1", "b": "2"}, {"b": "3"}}
	RenameColumn(records, "a", "z")
	assert.Equal(t, "1", records[0]["z"])
	_, ok := records[0]["a"]
	assert.False(t, ok)
	RemoveColumn(records, "b")
	for _, r := range records {
		_, ok := r["b"]
		assert.False(t, ok)
	}
}
