package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Context selects the function library and its null policy. Filter-context
// string functions turn a null input into "" so predicates degrade to false;
// transform-context functions pass the null through unchanged so assignments
// never silently convert null to "".
type Context int

const (
	Filter Context = iota
	Transform
)

// Function is one entry of the closed dispatch table: a fixed name, declared
// arity bounds and a pure handler. Nothing outside these tables is callable.
type Function struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	Call    func(args []any) (any, error)
}

var (
	filterFuncs    map[string]Function
	transformFuncs map[string]Function
)

// Functions returns the dispatch table for a context.
func Functions(ctx Context) map[string]Function {
	if ctx == Transform {
		return transformFuncs
	}
	return filterFuncs
}

// IsFunctionName reports whether name is callable in any context. The
// rewriter uses it to keep function names out of identifier resolution.
func IsFunctionName(name string) bool {
	if _, ok := filterFuncs[name]; ok {
		return true
	}
	_, ok := transformFuncs[name]
	return ok
}

func init() {
	filterFuncs = buildTable(Filter)
	transformFuncs = buildTable(Transform)
}

// stringArg renders an argument for a string function per the context's null
// policy. The bool is false when the null should be returned as-is.
func stringArg(ctx Context, v any) (string, bool) {
	if v == nil {
		if ctx == Filter {
			return "", true
		}
		return "", false
	}
	return valueToString(v), true
}

func valueToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case OptionValue:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// stringFn adapts a pure string transform into a Function honoring the
// context null policy on the first argument.
func stringFn(ctx Context, name string, min, max int, fn func(s string, rest []any) (any, error)) Function {
	return Function{Name: name, MinArgs: min, MaxArgs: max, Call: func(args []any) (any, error) {
		s, ok := stringArg(ctx, args[0])
		if !ok {
			return nil, nil
		}
		return fn(s, args[1:])
	}}
}

func buildTable(ctx Context) map[string]Function {
	table := make(map[string]Function)
	add := func(f Function) { table[f.Name] = f }

	add(stringFn(ctx, "contains", 2, 2, func(s string, rest []any) (any, error) {
		sub, _ := stringArg(Filter, rest[0])
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
	}))
	add(stringFn(ctx, "startswith", 2, 2, func(s string, rest []any) (any, error) {
		sub, _ := stringArg(Filter, rest[0])
		return strings.HasPrefix(strings.ToLower(s), strings.ToLower(sub)), nil
	}))
	add(stringFn(ctx, "endswith", 2, 2, func(s string, rest []any) (any, error) {
		sub, _ := stringArg(Filter, rest[0])
		return strings.HasSuffix(strings.ToLower(s), strings.ToLower(sub)), nil
	}))
	add(stringFn(ctx, "lower", 1, 1, func(s string, _ []any) (any, error) {
		return strings.ToLower(s), nil
	}))
	add(stringFn(ctx, "upper", 1, 1, func(s string, _ []any) (any, error) {
		return strings.ToUpper(s), nil
	}))
	add(stringFn(ctx, "strip", 1, 1, func(s string, _ []any) (any, error) {
		return strings.TrimSpace(s), nil
	}))
	add(stringFn(ctx, "lstrip", 1, 1, func(s string, _ []any) (any, error) {
		return strings.TrimLeft(s, " \t\r\n"), nil
	}))
	add(stringFn(ctx, "rstrip", 1, 1, func(s string, _ []any) (any, error) {
		return strings.TrimRight(s, " \t\r\n"), nil
	}))
	add(stringFn(ctx, "replace", 3, 3, func(s string, rest []any) (any, error) {
		old, _ := stringArg(Filter, rest[0])
		new_, _ := stringArg(Filter, rest[1])
		return strings.ReplaceAll(s, old, new_), nil
	}))
	add(stringFn(ctx, "substr", 2, 3, func(s string, rest []any) (any, error) {
		start, err := intArg("substr", rest[0])
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		if start < 0 {
			start = len(runes) + start
		}
		if start < 0 {
			start = 0
		}
		if start > len(runes) {
			start = len(runes)
		}
		end := len(runes)
		if len(rest) == 2 {
			length, err := intArg("substr", rest[1])
			if err != nil {
				return nil, err
			}
			if start+length < end {
				end = start + length
			}
			if end < start {
				end = start
			}
		}
		return string(runes[start:end]), nil
	}))
	add(stringFn(ctx, "lpad", 3, 3, func(s string, rest []any) (any, error) {
		return pad(s, rest, true)
	}))
	add(stringFn(ctx, "rpad", 3, 3, func(s string, rest []any) (any, error) {
		return pad(s, rest, false)
	}))
	add(Function{Name: "concat", MinArgs: 1, MaxArgs: -1, Call: func(args []any) (any, error) {
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(valueToString(a))
		}
		return sb.String(), nil
	}})
	add(stringFn(ctx, "len", 1, 1, func(s string, _ []any) (any, error) {
		return len([]rune(s)), nil
	}))
	add(Function{Name: "isnull", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
		return args[0] == nil || args[0] == "", nil
	}})
	add(Function{Name: "notnull", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
		return args[0] != nil && args[0] != "", nil
	}})
	add(Function{Name: "isint", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
		switch t := args[0].(type) {
		case int, int64:
			return true, nil
		case float64:
			return t == float64(int64(t)), nil
		case string:
			_, err := strconv.Atoi(strings.TrimSpace(t))
			return err == nil, nil
		}
		return false, nil
	}})
	add(Function{Name: "isfloat", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
		switch t := args[0].(type) {
		case float64:
			return true, nil
		case string:
			_, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			return err == nil && strings.ContainsAny(t, ".eE"), nil
		}
		return false, nil
	}})
	add(Function{Name: "isnumeric", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
		switch t := args[0].(type) {
		case int, int64, float64:
			return true, nil
		case string:
			_, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			return err == nil, nil
		}
		return false, nil
	}})

	if ctx == Transform {
		add(Function{Name: "int", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
			switch t := args[0].(type) {
			case nil:
				return nil, nil
			case int:
				return t, nil
			case int64:
				return int(t), nil
			case float64:
				return int(t), nil
			case OptionValue:
				return convInt(t.String())
			case string:
				return convInt(t)
			}
			return nil, typeErrorf("int: cannot convert %T", args[0])
		}})
		add(Function{Name: "float", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
			switch t := args[0].(type) {
			case nil:
				return nil, nil
			case int:
				return float64(t), nil
			case int64:
				return float64(t), nil
			case float64:
				return t, nil
			case OptionValue:
				return convFloat(t.String())
			case string:
				return convFloat(t)
			}
			return nil, typeErrorf("float: cannot convert %T", args[0])
		}})
		add(Function{Name: "str", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
			if args[0] == nil {
				return nil, nil
			}
			return valueToString(args[0]), nil
		}})
		add(Function{Name: "round", MinArgs: 1, MaxArgs: 2, Call: func(args []any) (any, error) {
			if args[0] == nil {
				return nil, nil
			}
			f, err := floatArg("round", args[0])
			if err != nil {
				return nil, err
			}
			digits := 0
			if len(args) == 2 {
				digits, err = intArg("round", args[1])
				if err != nil {
					return nil, err
				}
			}
			shift := math.Pow(10, float64(digits))
			rounded := math.Round(f*shift) / shift
			if digits <= 0 {
				return int(rounded), nil
			}
			return rounded, nil
		}})
		add(Function{Name: "abs", MinArgs: 1, MaxArgs: 1, Call: func(args []any) (any, error) {
			switch t := args[0].(type) {
			case nil:
				return nil, nil
			case int:
				if t < 0 {
					return -t, nil
				}
				return t, nil
			case float64:
				return math.Abs(t), nil
			}
			f, err := floatArg("abs", args[0])
			if err != nil {
				return nil, err
			}
			return math.Abs(f), nil
		}})
		add(Function{Name: "iif", MinArgs: 3, MaxArgs: 3, Call: func(args []any) (any, error) {
			if Truthy(args[0]) {
				return args[1], nil
			}
			return args[2], nil
		}})
		add(Function{Name: "coalesce", MinArgs: 1, MaxArgs: -1, Call: func(args []any) (any, error) {
			for _, a := range args {
				if a != nil && a != "" {
					return a, nil
				}
			}
			return nil, nil
		}})
	}

	return table
}

func pad(s string, rest []any, left bool) (any, error) {
	width, err := intArg("pad", rest[0])
	if err != nil {
		return nil, err
	}
	fill, _ := stringArg(Filter, rest[1])
	if fill == "" {
		fill = " "
	}
	for len([]rune(s)) < width {
		if left {
			s = fill + s
		} else {
			s = s + fill
		}
	}
	return s, nil
}

func convInt(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, typeErrorf("int: cannot convert %q", s)
	}
	return int(f), nil
}

func convFloat(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, typeErrorf("float: cannot convert %q", s)
	}
	return f, nil
}

func intArg(fn string, v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t == float64(int64(t)) {
			return int(t), nil
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, nil
		}
	}
	return 0, typeErrorf("%s: expected an integer, got %v", fn, v)
}

func floatArg(fn string, v any) (float64, error) {
	switch t := v.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, nil
		}
	}
	return 0, typeErrorf("%s: expected a number, got %v", fn, v)
}
