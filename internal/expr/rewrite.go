package expr

import (
	"regexp"
	"sort"
	"strings"

	"github.com/crmvault/crmvault/internal/resolver"
	"github.com/crmvault/crmvault/internal/schema"
)

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"true": true, "false": true, "null": true, "none": true,
}

// identPattern matches ordinary identifiers and hex-like digit-leading
// tokens (a digit run followed by a letter), the implicit form of a
// digit-leading field key reference.
var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|[0-9]+[A-Za-z][0-9A-Za-z]*`)

// Rewrite substitutes every bare field identifier in an expression with its
// canonical key, leaving quoted strings, numbers, keywords and function
// names untouched. Digit-leading keys are emitted with the escape prefix so
// the result still tokenizes. choose may be nil; ambiguity then fails.
func Rewrite(fields []schema.Field, expression string, choose resolver.Chooser) (string, error) {
	out, err := rewriteFieldFunc(fields, expression)
	if err != nil {
		return "", err
	}

	masked := maskQuoted(out)
	type repl struct {
		start, end int
		text       string
	}
	var repls []repl
	for _, loc := range identPattern.FindAllStringIndex(masked, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isTokenBoundaryChar(masked[start-1]) {
			continue
		}
		if end < len(masked) && isIdentPart(masked[end]) {
			continue
		}
		tok := out[start:end]
		if keywords[tok] || IsFunctionName(tok) || tok == "field" {
			continue
		}
		hexLike := isDigitByte(tok[0])
		key, err := resolver.ResolveWith(fields, tok, choose)
		if err != nil {
			if hexLike {
				// the heuristic never fails an expression over what may
				// just be a numeric literal
				continue
			}
			return "", err
		}
		if hexLike && key == tok {
			continue
		}
		text := key
		if isDigitByte(key[0]) {
			text = resolver.EscapePrefix + key
		}
		if text == tok {
			continue
		}
		repls = append(repls, repl{start: start, end: end, text: text})
	}

	sort.Slice(repls, func(i, j int) bool { return repls[i].start > repls[j].start })
	for _, r := range repls {
		out = out[:r.start] + r.text + out[r.end:]
	}
	return out, nil
}

// rewriteFieldFunc replaces field("Display Name") references with the exact
// field's key. Zero or multiple matches is a hard failure.
func rewriteFieldFunc(fields []schema.Field, expression string) (string, error) {
	var firstErr error
	out := resolver.FieldFuncPattern.ReplaceAllStringFunc(expression, func(m string) string {
		sub := resolver.FieldFuncPattern.FindStringSubmatch(m)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		key, err := resolver.ResolveName(fields, name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		if isDigitByte(key[0]) {
			return resolver.EscapePrefix + key
		}
		return key
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// maskQuoted blanks the contents of quoted string literals (keeping the
// delimiters) so identifier scanning never looks inside them.
func maskQuoted(s string) string {
	buf := []byte(s)
	i := 0
	for i < len(buf) {
		c := buf[i]
		if c == '\'' || c == '"' {
			quote := c
			i++
			for i < len(buf) {
				if buf[i] == '\\' && i+1 < len(buf) {
					buf[i] = ' '
					buf[i+1] = ' '
					i += 2
					continue
				}
				if buf[i] == quote {
					i++
					break
				}
				buf[i] = ' '
				i++
			}
			continue
		}
		i++
	}
	return string(buf)
}

func isTokenBoundaryChar(c byte) bool {
	return isIdentPart(c) || c == '.'
}

// SplitAssignment splits "target = expression" at the first single = outside
// quotes. Returns false for expressions with no assignment.
func SplitAssignment(s string) (target, expression string, ok bool) {
	masked := maskQuoted(s)
	for i := 0; i < len(masked); i++ {
		if masked[i] != '=' {
			continue
		}
		if i+1 < len(masked) && masked[i+1] == '=' {
			i++
			continue
		}
		if i > 0 {
			switch masked[i-1] {
			case '=', '!', '<', '>':
				continue
			}
		}
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
	}
	return "", "", false
}
