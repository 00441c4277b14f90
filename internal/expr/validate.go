package expr

// Validate checks an expression without running it for real: it must parse,
// contain no single-= assignment or ;-separated statements, and reference
// only functions from the context's closed table. It is evaluated once
// against a dummy record binding every known key to zero; type mismatches
// and unknown variables raised by the dummy values are swallowed since they
// say nothing about the real data.
func Validate(expression string, knownKeys []string, ctx Context) error {
	prog, err := Compile(expression, ctx)
	if err != nil {
		return err
	}
	dummy := make(map[string]any, len(knownKeys))
	for _, key := range knownKeys {
		dummy[key] = 0
	}
	if _, err := prog.Eval(dummy); err != nil {
		if kind, ok := kindOf(err); ok && (kind == ErrType || kind == ErrUnknownVariable) {
			return nil
		}
		return err
	}
	return nil
}
