// Package contract reports programming-contract violations.
//
// A violation means the code generator or a caller broke a precondition
// (asking an array descriptor for its non-array base type, delegate arity
// that is off by more than one, ...). Such states are never produced by a
// correct pipeline, so they panic instead of returning an error.
package contract

import "fmt"

// Violation is the panic value raised by Assert and Fail.
type Violation struct {
	Op  string // operation that detected the violation
	Msg string
}

func (v *Violation) Error() string {
	if v == nil {
		return "<nil>"
	}
	if v.Op == "" {
		return "contract violation: " + v.Msg
	}
	return fmt.Sprintf("contract violation in %s: %s", v.Op, v.Msg)
}

// Assert panics with a *Violation when cond is false.
func Assert(cond bool, op, format string, args ...any) {
	if cond {
		return
	}
	Fail(op, format, args...)
}

// Fail panics with a *Violation unconditionally.
func Fail(op, format string, args ...any) {
	panic(&Violation{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// Recover converts a recovered *Violation into an error and re-panics on
// anything else. Use it as `defer contract.Recover(&err)` at API boundaries
// that must not crash, such as the CLI.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	v, ok := r.(*Violation)
	if !ok {
		panic(r)
	}
	if errp != nil {
		*errp = v
	}
}
