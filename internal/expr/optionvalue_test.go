package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionValueEquality(t *testing.T) {
	ov := NewOptionValue("37", "Active")

	for _, v := range []any{37, int64(37), float64(37), "37", "Active", "active", "ACTIVE"} {
		assert.True(t, ov.EqualsValue(v), "value %#v", v)
		assert.True(t, Equals(ov, v), "value %#v", v)
		assert.True(t, Equals(v, ov), "value %#v", v)
	}
	for _, v := range []any{38, "38", "Inactive", 37.5, true, nil, []any{"37"}} {
		assert.False(t, ov.EqualsValue(v), "value %#v", v)
		assert.False(t, Equals(ov, v), "value %#v", v)
	}

	assert.Equal(t, "37", ov.String())
	assert.Equal(t, "Active", ov.Label())
}

func TestOptionValueNoLabel(t *testing.T) {
	ov := NewOptionValue("42", "")
	assert.True(t, ov.EqualsValue("42"))
	assert.False(t, ov.EqualsValue(""))
}

func TestPreprocessRecord(t *testing.T) {
	lookup := map[string]map[string]string{
		"status": {"37": "Active", "38": "Inactive"},
		"tags":   {"1": "Red", "2": "Blue"},
	}
	record := map[string]any{
		"status": "37",
		"tags":   "1,2",
		"name":   "Ada",
		"blank":  "",
		"empty":  nil,
	}
	out := PreprocessRecord(record, lookup)

	ov, ok := out["status"].(OptionValue)
	require.True(t, ok)
	assert.True(t, ov.EqualsValue("Active"))

	tags, ok := out["tags"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.True(t, tags[0].(OptionValue).EqualsValue("Red"))
	assert.True(t, tags[1].(OptionValue).EqualsValue("Blue"))

	assert.Equal(t, "Ada", out["name"])
	assert.Nil(t, out["empty"])

	// the input record is untouched
	assert.Equal(t, "37", record["status"])
}

func TestPreprocessRecordArraySet(t *testing.T) {
	lookup := map[string]map[string]string{"tags": {"1": "Red"}}
	record := map[string]any{"tags": []any{"1"}}
	out := PreprocessRecord(record, lookup)
	tags := out["tags"].([]any)
	assert.True(t, tags[0].(OptionValue).EqualsValue("Red"))
}

func TestFilterWithOptionValues(t *testing.T) {
	lookup := map[string]map[string]string{"status": {"37": "Active"}}
	record := PreprocessRecord(map[string]any{"status": "37"}, lookup)

	for _, source := range []string{
		`status == "Active"`,
		`status == "active"`,
		`status == 37`,
		`status == "37"`,
		`status != 38`,
	} {
		v, err := Evaluate(record, source, Filter)
		require.NoError(t, err, "expression %q", source)
		assert.Equal(t, true, v, "expression %q", source)
	}

	record = PreprocessRecord(map[string]any{"tags": "1,2"}, map[string]map[string]string{
		"tags": {"1": "Red", "2": "Blue"},
	})
	v, err := Evaluate(record, `"Red" in tags`, Filter)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
