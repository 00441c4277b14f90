package cmd

import (
	"testing"

	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var searchTestFields = []schema.Field{
	{Key: "name", Name: "Name", Type: "varchar"},
	{Key: "value", Name: "Deal Value", Type: "int"},
	{Key: "weight", Name: "Weight", Type: "double"},
	{Key: "status", Name: "Status", Type: "enum", Options: []schema.Option{
		{ID: 37, Label: "Active"},
	}},
}

// CSV cells load as strings; declared-numeric fields must still compare as
// numbers.
func TestFilterRecordsCoercesDeclaredTypes(t *testing.T) {
	records := []datapkg.Record{
		{"id": 1, "name": "Acme", "value": "250", "weight": "1.5"},
		{"id": 2, "name": "Globex", "value": "50", "weight": "9.25"},
	}

	matched, err := filterRecords(records, searchTestFields, "value > 100")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "Acme", matched[0]["name"])

	matched, err = filterRecords(records, searchTestFields, "weight < 2.0")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "Acme", matched[0]["name"])

	// display names resolve through the rewrite first
	matched, err = filterRecords(records, searchTestFields, "Deal_Value <= 50")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "Globex", matched[0]["name"])
}

func TestFilterRecordsOptionLabels(t *testing.T) {
	records := []datapkg.Record{
		{"id": 1, "name": "Acme", "status": "37"},
		{"id": 2, "name": "Globex", "status": ""},
	}
	matched, err := filterRecords(records, searchTestFields, `status == "Active"`)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "Acme", matched[0]["name"])
}

// an unknown function fails the whole filter before any record is evaluated
func TestFilterRecordsRejectsUnknownFunction(t *testing.T) {
	_, err := filterRecords(nil, searchTestFields, "bogus(name)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestResolveColumns(t *testing.T) {
	keys, err := resolveColumns(searchTestFields, "Name, val")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "value"}, keys)

	keys, err = resolveColumns(searchTestFields, "")
	require.NoError(t, err)
	assert.Nil(t, keys)
}
