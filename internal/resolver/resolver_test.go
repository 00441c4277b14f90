package resolver

import (
	"testing"

	"github.com/crmvault/crmvault/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFields = []schema.Field{
	{Key: "name", Name: "Name", Type: "varchar"},
	{Key: "telephone", Name: "Tel S", Type: "phone"},
	{Key: "25ab9f00d1", Name: "Budget", Type: "double"},
	{Key: "owner_id", Name: "Owner", Type: "user"},
	{Key: "org_id", Name: "Organization", Type: "org"},
}

func TestResolveExactKey(t *testing.T) {
	key, err := Resolve(testFields, "telephone")
	require.NoError(t, err)
	assert.Equal(t, "telephone", key)
}

func TestResolveKeyPrefix(t *testing.T) {
	key, err := Resolve(testFields, "tel")
	require.NoError(t, err)
	assert.Equal(t, "telephone", key)
}

func TestResolveExactNameWithUnderscore(t *testing.T) {
	key, err := Resolve(testFields, "tel_s")
	require.NoError(t, err)
	assert.Equal(t, "telephone", key)
}

func TestResolveNamePrefix(t *testing.T) {
	key, err := Resolve(testFields, "budg")
	require.NoError(t, err)
	assert.Equal(t, "25ab9f00d1", key)
}

func TestResolvePassthrough(t *testing.T) {
	key, err := Resolve(testFields, "nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "nonexistent", key)
}

func TestResolveIdempotent(t *testing.T) {
	for _, f := range testFields {
		key, err := Resolve(testFields, f.Key)
		require.NoError(t, err)
		again, err := Resolve(testFields, key)
		require.NoError(t, err)
		assert.Equal(t, f.Key, again)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	fields := []schema.Field{
		{Key: "order_no", Name: "Order No"},
		{Key: "order_date", Name: "Order Date"},
	}
	_, err := Resolve(fields, "order")
	require.Error(t, err)
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	keys := map[string]bool{}
	for _, c := range amb.Candidates {
		keys[c.Key] = true
	}
	assert.Equal(t, map[string]bool{"order_no": true, "order_date": true}, keys)
}

func TestResolveWithChooser(t *testing.T) {
	fields := []schema.Field{
		{Key: "order_no", Name: "Order No"},
		{Key: "order_date", Name: "Order Date"},
	}
	key, err := ResolveWith(fields, "order", func(ident string, candidates []schema.Field) (schema.Field, error) {
		assert.Equal(t, "order", ident)
		assert.Len(t, candidates, 2)
		return candidates[1], nil
	})
	require.NoError(t, err)
	assert.Equal(t, "order_date", key)
}

func TestResolveEscapedDigitKey(t *testing.T) {
	key, err := Resolve(testFields, "_25ab9f00d1")
	require.NoError(t, err)
	assert.Equal(t, "25ab9f00d1", key)

	key, err = Resolve(testFields, "_25ab")
	require.NoError(t, err)
	assert.Equal(t, "25ab9f00d1", key)
}

func TestResolveName(t *testing.T) {
	key, err := ResolveName(testFields, "budget")
	require.NoError(t, err)
	assert.Equal(t, "25ab9f00d1", key)

	_, err = ResolveName(testFields, "Budge")
	assert.Error(t, err)

	dup := append([]schema.Field{}, testFields...)
	dup = append(dup, schema.Field{Key: "other", Name: "Budget"})
	_, err = ResolveName(dup, "Budget")
	assert.Error(t, err)
}

func TestFieldFuncPattern(t *testing.T) {
	m := FieldFuncPattern.FindStringSubmatch(`field("Tel S")`)
	require.NotNil(t, m)
	assert.Equal(t, "Tel S", m[1])
	m = FieldFuncPattern.FindStringSubmatch(`field('Budget')`)
	require.NotNil(t, m)
	assert.Equal(t, "Budget", m[2])
}
