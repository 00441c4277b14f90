package expr

import "github.com/cockroachdb/errors"

// ErrorKind classifies expression failures so callers (and Validate) can
// decide which ones matter in their context.
type ErrorKind int

const (
	// ErrSyntax is a malformed expression.
	ErrSyntax ErrorKind = iota
	// ErrAssignment is a single-= assignment inside a filter/transform body.
	ErrAssignment
	// ErrMultiStatement is a ;-separated multi-statement expression.
	ErrMultiStatement
	// ErrUnknownFunction references a function outside the closed library.
	ErrUnknownFunction
	// ErrArity is a call with the wrong number of arguments.
	ErrArity
	// ErrUnknownVariable references a field absent from the record.
	ErrUnknownVariable
	// ErrType is a runtime type mismatch (e.g. ordering a string against an int).
	ErrType
)

// Error is an expression failure with its classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func errNewf(format string, args ...any) error {
	return errors.Newf(format, args...)
}

func typeErrorf(format string, args ...any) error {
	return &Error{Kind: ErrType, Err: errors.Newf(format, args...)}
}

func kindOf(err error) (ErrorKind, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}
