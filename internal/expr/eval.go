package expr

import (
	"strings"

	"github.com/crmvault/crmvault/internal/resolver"
)

// Program is a compiled expression bound to a context's function table.
type Program struct {
	Source string
	ctx    Context
	root   node
}

// Compile parses an expression for a context. The expression must already be
// rewritten to canonical field keys (see Rewrite).
func Compile(source string, ctx Context) (*Program, error) {
	root, err := parse(source)
	if err != nil {
		return nil, err
	}
	return &Program{Source: source, ctx: ctx, root: root}, nil
}

// Eval evaluates the program against a record's values as named variables.
func (p *Program) Eval(record map[string]any) (any, error) {
	return eval(p.root, record, Functions(p.ctx))
}

// EvalBool evaluates and reduces the result to its truthiness.
func (p *Program) EvalBool(record map[string]any) (bool, error) {
	v, err := p.Eval(record)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Evaluate is a one-shot Compile+Eval.
func Evaluate(record map[string]any, source string, ctx Context) (any, error) {
	p, err := Compile(source, ctx)
	if err != nil {
		return nil, err
	}
	return p.Eval(record)
}

// Truthy follows the conventions record values actually need: nil, "", 0,
// 0.0, false and empty lists are false, everything else true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case OptionValue:
		return t.String() != ""
	}
	return true
}

func eval(n node, record map[string]any, funcs map[string]Function) (any, error) {
	switch t := n.(type) {
	case *literalNode:
		return t.val, nil
	case *varNode:
		name := t.name
		if strings.HasPrefix(name, resolver.EscapePrefix) && len(name) > 1 && isDigitByte(name[1]) {
			name = name[1:]
		}
		v, ok := record[name]
		if !ok {
			return nil, &Error{Kind: ErrUnknownVariable, Err: errNewf("unknown variable %q", t.name)}
		}
		return v, nil
	case *listNode:
		items := make([]any, len(t.items))
		for i, item := range t.items {
			v, err := eval(item, record, funcs)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case *callNode:
		fn, ok := funcs[t.name]
		if !ok {
			return nil, &Error{Kind: ErrUnknownFunction, Err: errNewf("unknown function %q", t.name)}
		}
		if len(t.args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(t.args) > fn.MaxArgs) {
			return nil, &Error{Kind: ErrArity, Err: errNewf("%s: wrong number of arguments (got %d)", t.name, len(t.args))}
		}
		args := make([]any, len(t.args))
		for i, arg := range t.args {
			v, err := eval(arg, record, funcs)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fn.Call(args)
	case *unaryNode:
		v, err := eval(t.operand, record, funcs)
		if err != nil {
			return nil, err
		}
		if t.op == "not" {
			return !Truthy(v), nil
		}
		switch n := v.(type) {
		case int:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, typeErrorf("unary minus on non-number %v", v)
	case *binaryNode:
		return evalBinary(t, record, funcs)
	}
	return nil, typeErrorf("unexpected node %T", n)
}

func evalBinary(n *binaryNode, record map[string]any, funcs map[string]Function) (any, error) {
	// and/or short-circuit
	switch n.op {
	case "and":
		left, err := eval(n.left, record, funcs)
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			return false, nil
		}
		right, err := eval(n.right, record, funcs)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	case "or":
		left, err := eval(n.left, record, funcs)
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			return true, nil
		}
		right, err := eval(n.right, record, funcs)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	}

	left, err := eval(n.left, record, funcs)
	if err != nil {
		return nil, err
	}
	right, err := eval(n.right, record, funcs)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return Equals(left, right), nil
	case "!=":
		return !Equals(left, right), nil
	case "<", "<=", ">", ">=":
		return compareOrdered(n.op, left, right)
	case "in":
		return contains(right, left)
	case "not in":
		ok, err := contains(right, left)
		if err != nil {
			return nil, err
		}
		return !ok.(bool), nil
	case "+", "-", "*", "/", "%":
		return arithmetic(n.op, left, right)
	}
	return nil, typeErrorf("unsupported operator %q", n.op)
}

// Equals compares two expression values: option values compare per their own
// semantics, numbers numerically across int/float, otherwise same-type only.
func Equals(a, b any) bool {
	if ov, ok := a.(OptionValue); ok {
		return ov.EqualsValue(b)
	}
	if ov, ok := b.(OptionValue); ok {
		return ov.EqualsValue(a)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return af == bf
		}
		return false
	}
	switch at := a.(type) {
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case []any:
		bl, ok := b.([]any)
		if !ok || len(at) != len(bl) {
			return false
		}
		for i := range at {
			if !Equals(at[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func compareOrdered(op string, a, b any) (any, error) {
	if ov, ok := a.(OptionValue); ok {
		a = ov.String()
	}
	if ov, ok := b.(OptionValue); ok {
		b = ov.String()
	}
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return applyOrder(op, compareFloat(af, bf)), nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return applyOrder(op, strings.Compare(as, bs)), nil
	}
	return nil, typeErrorf("cannot order %T against %T", a, b)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func applyOrder(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func contains(container, item any) (any, error) {
	switch t := container.(type) {
	case []any:
		for _, v := range t {
			if Equals(v, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		return strings.Contains(t, valueToString(item)), nil
	case OptionValue:
		return t.EqualsValue(item), nil
	case nil:
		return false, nil
	}
	return nil, typeErrorf("'in' needs a list or string on the right, got %T", container)
}

func arithmetic(op string, a, b any) (any, error) {
	if op == "+" {
		if as, ok := a.(string); ok {
			if bs, ok := b.(string); ok {
				return as + bs, nil
			}
		}
	}
	ai, aIsInt := a.(int)
	bi, bIsInt := b.(int)
	if aIsInt && bIsInt {
		switch op {
		case "+":
			return ai + bi, nil
		case "-":
			return ai - bi, nil
		case "*":
			return ai * bi, nil
		case "%":
			if bi == 0 {
				return nil, typeErrorf("modulo by zero")
			}
			return ai % bi, nil
		}
	}
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		return nil, typeErrorf("cannot apply %q to %T and %T", op, a, b)
	}
	switch op {
	case "+":
		return af + bf, nil
	case "-":
		return af - bf, nil
	case "*":
		return af * bf, nil
	case "/":
		if bf == 0 {
			return nil, typeErrorf("division by zero")
		}
		return af / bf, nil
	case "%":
		return nil, typeErrorf("modulo needs integer operands")
	}
	return nil, typeErrorf("unsupported operator %q", op)
}

func isDigitByte(c byte) bool {
	return c >= '0' && c <= '9'
}
