package expr

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenOp
)

type token struct {
	kind tokenKind
	text string
	val  any // int or float64 for tokenNumber, string for tokenString
	pos  int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// tokenize splits an expression into tokens. Identifiers, numbers (with
// optional fraction and exponent), quoted strings with backslash escapes,
// and the fixed operator set.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: input[start:i], pos: start})
		case c >= '0' && c <= '9':
			start := i
			isFloat := false
			for i < len(input) && input[i] >= '0' && input[i] <= '9' {
				i++
			}
			if i < len(input) && input[i] == '.' {
				isFloat = true
				i++
				for i < len(input) && input[i] >= '0' && input[i] <= '9' {
					i++
				}
			}
			if i < len(input) && (input[i] == 'e' || input[i] == 'E') {
				j := i + 1
				if j < len(input) && (input[j] == '+' || input[j] == '-') {
					j++
				}
				if j < len(input) && input[j] >= '0' && input[j] <= '9' {
					isFloat = true
					i = j
					for i < len(input) && input[i] >= '0' && input[i] <= '9' {
						i++
					}
				}
			}
			text := input[start:i]
			if i < len(input) && isIdentStart(input[i]) {
				return nil, syntaxErrorf("invalid number at position %d: %q", start, text)
			}
			tok := token{kind: tokenNumber, text: text, pos: start}
			if isFloat {
				f, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, syntaxErrorf("invalid number %q", text)
				}
				tok.val = f
			} else {
				n, err := strconv.Atoi(text)
				if err != nil {
					return nil, syntaxErrorf("invalid number %q", text)
				}
				tok.val = n
			}
			tokens = append(tokens, tok)
		case c == '\'' || c == '"':
			quote := c
			var sb strings.Builder
			start := i
			i++
			closed := false
			for i < len(input) {
				if input[i] == '\\' && i+1 < len(input) {
					sb.WriteByte(input[i+1])
					i += 2
					continue
				}
				if input[i] == quote {
					closed = true
					i++
					break
				}
				sb.WriteByte(input[i])
				i++
			}
			if !closed {
				return nil, syntaxErrorf("unterminated string at position %d", start)
			}
			tokens = append(tokens, token{kind: tokenString, text: input[start:i], val: sb.String(), pos: start})
		default:
			start := i
			two := ""
			if i+1 < len(input) {
				two = input[i : i+2]
			}
			switch two {
			case "==", "!=", "<=", ">=":
				tokens = append(tokens, token{kind: tokenOp, text: two, pos: start})
				i += 2
				continue
			}
			switch c {
			case '<', '>', '+', '-', '*', '/', '%', '(', ')', ',', '[', ']', '=', ';':
				tokens = append(tokens, token{kind: tokenOp, text: string(c), pos: start})
				i++
			default:
				return nil, syntaxErrorf("unexpected character %q at position %d", string(c), start)
			}
		}
	}
	tokens = append(tokens, token{kind: tokenEOF, pos: len(input)})
	return tokens, nil
}

func syntaxErrorf(format string, args ...any) error {
	return &Error{Kind: ErrSyntax, Err: errors.Newf(format, args...)}
}
