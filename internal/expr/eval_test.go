package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalFilter(t *testing.T, source string, record map[string]any) any {
	t.Helper()
	v, err := Evaluate(record, source, Filter)
	require.NoError(t, err, "expression %q", source)
	return v
}

func TestEvaluateBasics(t *testing.T) {
	record := map[string]any{
		"name":  "Ada Lovelace",
		"age":   36,
		"score": 1.5,
		"email": "",
		"phone": nil,
	}
	for _, tc := range []struct {
		source string
		want   any
	}{
		{`age == 36`, true},
		{`age != 36`, false},
		{`age > 30 and age < 40`, true},
		{`age > 40 or score > 1`, true},
		{`not (age > 40)`, true},
		{`name == "Ada Lovelace"`, true},
		{`name == 'ada lovelace'`, false},
		{`age + 4`, 40},
		{`age - 6`, 30},
		{`age * 2`, 72},
		{`age / 8`, 4.5},
		{`age % 10`, 6},
		{`-age`, -36},
		{`score + 0.5`, 2.0},
		{`"Ada" in name`, true},
		{`age in (35, 36, 37)`, true},
		{`age in [1, 2]`, false},
		{`age not in (1, 2)`, true},
		{`"a" + "b"`, "ab"},
		{`null == null`, true},
		{`phone == null`, true},
		{`email == ""`, true},
		{`name == 36`, false},
		{`true and name`, true},
		{`1 < 2 == true`, true},
	} {
		assert.Equal(t, tc.want, evalFilter(t, tc.source, record), "expression %q", tc.source)
	}
}

func TestEvaluateUnknownVariable(t *testing.T) {
	_, err := Evaluate(map[string]any{}, `missing == 1`, Filter)
	require.Error(t, err)
	kind, ok := kindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrUnknownVariable, kind)
}

func TestEvaluateUnknownFunction(t *testing.T) {
	_, err := Evaluate(map[string]any{}, `frobnicate(1)`, Filter)
	require.Error(t, err)
	kind, _ := kindOf(err)
	assert.Equal(t, ErrUnknownFunction, kind)
}

func TestEvaluateTypeErrors(t *testing.T) {
	record := map[string]any{"name": "Ada", "age": 36}
	for _, source := range []string{
		`name < age`,
		`name - 1`,
		`age in 36`,
	} {
		_, err := Evaluate(record, source, Filter)
		require.Error(t, err, "expression %q", source)
		kind, _ := kindOf(err)
		assert.Equal(t, ErrType, kind, "expression %q", source)
	}
}

func TestEscapedVariableLookup(t *testing.T) {
	record := map[string]any{"25ab9f00d1": 100}
	v, err := Evaluate(record, `_25ab9f00d1 > 50`, Filter)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestStringFunctions(t *testing.T) {
	record := map[string]any{"name": "  Ada  ", "email": "ADA@example.com"}
	for _, tc := range []struct {
		source string
		want   any
	}{
		{`strip(name)`, "Ada"},
		{`lstrip(name)`, "Ada  "},
		{`rstrip(name)`, "  Ada"},
		{`lower(email)`, "ada@example.com"},
		{`upper(strip(name))`, "ADA"},
		{`contains(email, "Example")`, true},
		{`startswith(email, "ada@")`, true},
		{`endswith(email, ".COM")`, true},
		{`replace(strip(name), "A", "O")`, "Oda"},
		{`substr(email, 0, 3)`, "ADA"},
		{`substr(email, 4)`, "example.com"},
		{`lpad("7", 3, "0")`, "007"},
		{`rpad("7", 3, "0")`, "700"},
		{`concat("a", 1, "-", null)`, "a1-"},
		{`len(strip(name))`, 3},
		{`isnull(name)`, false},
		{`notnull(name)`, true},
		{`isint("42")`, true},
		{`isint("4.2")`, false},
		{`isfloat("4.2")`, true},
		{`isnumeric("4.2")`, true},
		{`isnumeric("abc")`, false},
	} {
		assert.Equal(t, tc.want, evalFilter(t, tc.source, record), "expression %q", tc.source)
	}
}

func TestNullPolicyFilterVsTransform(t *testing.T) {
	record := map[string]any{"name": nil}

	v, err := Evaluate(record, `upper(name)`, Filter)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	v, err = Evaluate(record, `upper(name)`, Transform)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = Evaluate(record, `contains(name, "x")`, Filter)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestTransformOnlyFunctions(t *testing.T) {
	record := map[string]any{"age": "36", "score": 1.567, "blank": "", "name": "Ada"}
	for _, tc := range []struct {
		source string
		want   any
	}{
		{`int(age)`, 36},
		{`int(score)`, 1},
		{`float(age)`, 36.0},
		{`str(36)`, "36"},
		{`round(score)`, 2},
		{`round(score, 2)`, 1.57},
		{`abs(0 - 5)`, 5},
		{`iif(age == "36", "yes", "no")`, "yes"},
		{`coalesce(blank, null, name)`, "Ada"},
		{`int(blank)`, nil},
	} {
		v, err := Evaluate(record, tc.source, Transform)
		require.NoError(t, err, "expression %q", tc.source)
		assert.Equal(t, tc.want, v, "expression %q", tc.source)
	}

	// conversions live only in the transform table
	_, err := Evaluate(record, `int(age)`, Filter)
	require.Error(t, err)
	kind, _ := kindOf(err)
	assert.Equal(t, ErrUnknownFunction, kind)
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		source string
		kind   ErrorKind
	}{
		{`a ==`, ErrSyntax},
		{`(a == 1`, ErrSyntax},
		{`a @ b`, ErrSyntax},
		{`"unterminated`, ErrSyntax},
		{`a = 1`, ErrAssignment},
		{`a == 1; b == 2`, ErrMultiStatement},
		{`25abc`, ErrSyntax},
	} {
		_, err := Compile(tc.source, Filter)
		require.Error(t, err, "expression %q", tc.source)
		kind, ok := kindOf(err)
		require.True(t, ok, "expression %q", tc.source)
		assert.Equal(t, tc.kind, kind, "expression %q", tc.source)
	}
}

func TestValidate(t *testing.T) {
	keys := []string{"name", "age"}

	assert.NoError(t, Validate(`name == "x" and age > 1`, keys, Filter))
	// type errors against the zero-valued dummy are swallowed
	assert.NoError(t, Validate(`contains(name, "x")`, keys, Filter))
	assert.NoError(t, Validate(`substr(name, age) < "a"`, keys, Filter))
	// unknown variables are a runtime concern, not a validation one
	assert.NoError(t, Validate(`other == 1`, keys, Filter))

	assert.Error(t, Validate(`name = 1`, keys, Filter))
	assert.Error(t, Validate(`name == 1; age == 2`, keys, Filter))
	assert.Error(t, Validate(`name ==`, keys, Filter))
	assert.Error(t, Validate(`frobnicate(name)`, keys, Filter))
	assert.Error(t, Validate(`upper(name, age)`, keys, Filter))
}

func TestSplitAssignment(t *testing.T) {
	target, exprText, ok := SplitAssignment(`status = "done"`)
	require.True(t, ok)
	assert.Equal(t, "status", target)
	assert.Equal(t, `"done"`, exprText)

	target, exprText, ok = SplitAssignment(`note = iif(age == 1, "a=b", "c")`)
	require.True(t, ok)
	assert.Equal(t, "note", target)
	assert.Equal(t, `iif(age == 1, "a=b", "c")`, exprText)

	_, _, ok = SplitAssignment(`age == 36`)
	assert.False(t, ok)
}
