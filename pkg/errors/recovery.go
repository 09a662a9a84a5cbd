package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError は Fit/Predict や並列タスク内で回復した panic を表す。
type PanicError struct {
	Op    string
	Value interface{}
	// Stack is the goroutine stack captured at recovery.
	Stack string
	// Prior is the error the function had already set when it panicked.
	Prior error
}

func (e *PanicError) Error() string {
	if e.Prior != nil {
		return fmt.Sprintf("lce: panic in %s: %v (after error: %v)", e.Op, e.Value, e.Prior)
	}
	return fmt.Sprintf("lce: panic in %s: %v", e.Op, e.Value)
}

func (e *PanicError) Unwrap() error { return e.Prior }

// Recover converts a panic into a *PanicError stored in *err. Use it as
//
//	defer errors.Recover(&err, "TreeClassifier.Fit")
func Recover(err *error, op string) {
	if r := recover(); r != nil {
		*err = &PanicError{Op: op, Value: r, Stack: string(debug.Stack()), Prior: *err}
	}
}

// SafeExecute runs fn, returning its error or the panic it raised.
func SafeExecute(op string, fn func() error) (err error) {
	defer Recover(&err, op)
	return fn()
}
