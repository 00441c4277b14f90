// Package resolver maps user-typed field identifiers (key prefixes, display
// name prefixes, quoted exact names) to canonical field keys.
package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/schema"
)

// EscapePrefix marks a digit-leading field key inside an expression so the
// rewritten text stays a valid identifier. Users may also type it directly.
const EscapePrefix = "_"

// FieldFuncPattern matches the exact-name reference form field("Display Name")
// with single or double quotes.
var FieldFuncPattern = regexp.MustCompile(`field\(\s*(?:"([^"]*)"|'([^']*)')\s*\)`)

// AmbiguousError reports an identifier matching more than one field. Callers
// branch on it to offer disambiguation instead of failing.
type AmbiguousError struct {
	Identifier string
	Candidates []schema.Field
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, f := range e.Candidates {
		names[i] = fmt.Sprintf("%s (%s)", f.Key, f.Name)
	}
	return fmt.Sprintf("identifier %q is ambiguous, matches: %s", e.Identifier, strings.Join(names, ", "))
}

// Chooser lets a caller pick among ambiguous candidates. Returning an error
// aborts the resolution.
type Chooser func(identifier string, candidates []schema.Field) (schema.Field, error)

// Resolve maps an identifier to a canonical field key. Resolution order:
// exact key, unique key prefix, exact display name (underscores in the
// identifier equal spaces in the name), unique name prefix. An identifier
// matching nothing is returned unchanged so the expression engine can raise
// an unknown-variable failure at evaluation time instead.
func Resolve(fields []schema.Field, identifier string) (string, error) {
	return ResolveWith(fields, identifier, nil)
}

// ResolveWith is Resolve with an optional disambiguation callback; without
// one, multiple matches yield an *AmbiguousError.
func ResolveWith(fields []schema.Field, identifier string, choose Chooser) (string, error) {
	ident := identifier
	if strings.HasPrefix(ident, EscapePrefix) && len(ident) > 1 && isDigit(ident[1]) {
		ident = ident[1:]
	}

	if _, ok := schema.FindKey(fields, ident); ok {
		return ident, nil
	}

	lower := strings.ToLower(ident)
	var keyMatches []schema.Field
	for _, f := range fields {
		if strings.HasPrefix(strings.ToLower(f.Key), lower) {
			keyMatches = append(keyMatches, f)
		}
	}
	if key, err, done := pick(identifier, keyMatches, choose); done {
		return key, err
	}

	spaced := strings.ReplaceAll(lower, "_", " ")
	for _, f := range fields {
		if strings.ToLower(f.Name) == spaced || strings.ToLower(f.Name) == lower {
			return f.Key, nil
		}
	}

	var nameMatches []schema.Field
	for _, f := range fields {
		name := strings.ToLower(f.Name)
		if strings.HasPrefix(name, spaced) || strings.HasPrefix(name, lower) {
			nameMatches = append(nameMatches, f)
		}
	}
	if key, err, done := pick(identifier, nameMatches, choose); done {
		return key, err
	}

	return identifier, nil
}

func pick(identifier string, matches []schema.Field, choose Chooser) (string, error, bool) {
	switch len(matches) {
	case 0:
		return "", nil, false
	case 1:
		return matches[0].Key, nil, true
	}
	if choose != nil {
		f, err := choose(identifier, matches)
		if err != nil {
			return "", err, true
		}
		return f.Key, nil, true
	}
	return "", &AmbiguousError{Identifier: identifier, Candidates: matches}, true
}

// ResolveName resolves the field("Display Name") form: exact case-insensitive
// name match only, and zero or multiple matches is a hard failure.
func ResolveName(fields []schema.Field, name string) (string, error) {
	var matches []schema.Field
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.Newf("no field with name %q", name)
	case 1:
		return matches[0].Key, nil
	}
	keys := make([]string, len(matches))
	for i, f := range matches {
		keys[i] = f.Key
	}
	return "", errors.Newf("multiple fields named %q: %s", name, strings.Join(keys, ", "))
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
