package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecover(t *testing.T) {
	prior := fmt.Errorf("y contains NaN")

	tests := []struct {
		name    string
		body    func() error
		wantMsg string
		prior   error
	}{
		{
			name:    "string panic",
			body:    func() error { panic("index out of range") },
			wantMsg: "lce: panic in TreeClassifier.Fit: index out of range",
		},
		{
			name:    "error panic",
			body:    func() error { panic(fmt.Errorf("nil model")) },
			wantMsg: "lce: panic in TreeClassifier.Fit: nil model",
		},
		{
			name:    "int panic",
			body:    func() error { panic(42) },
			wantMsg: "lce: panic in TreeClassifier.Fit: 42",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := func() (err error) {
				defer Recover(&err, "TreeClassifier.Fit")
				return tt.body()
			}
			err := run()

			var pe *PanicError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PanicError, got %T: %v", err, err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
			if pe.Op != "TreeClassifier.Fit" || pe.Stack == "" {
				t.Errorf("op %q, stack empty = %v", pe.Op, pe.Stack == "")
			}
		})
	}

	t.Run("keeps the error already set", func(t *testing.T) {
		run := func() (err error) {
			defer Recover(&err, "Regressor.Fit")
			err = prior
			panic("after failure")
		}
		err := run()
		if !errors.Is(err, prior) {
			t.Errorf("errors.Is(err, prior) = false for %v", err)
		}
		if !strings.Contains(err.Error(), "after error: y contains NaN") {
			t.Errorf("message lacks the prior error: %v", err)
		}
	})

	t.Run("no panic", func(t *testing.T) {
		run := func() (err error) {
			defer Recover(&err, "Regressor.Fit")
			return prior
		}
		if err := run(); err != prior {
			t.Errorf("err = %v, want the returned error unchanged", err)
		}
	})
}

func TestSafeExecute(t *testing.T) {
	failure := fmt.Errorf("fit failed")

	if err := SafeExecute("parallel task", func() error { return nil }); err != nil {
		t.Errorf("success: err = %v", err)
	}
	if err := SafeExecute("parallel task", func() error { return failure }); err != failure {
		t.Errorf("failure: err = %v, want %v", err, failure)
	}

	err := SafeExecute("parallel task", func() error {
		var nodes []int
		return fmt.Errorf("unreachable %d", nodes[3])
	})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
	if !strings.Contains(pe.Stack, "TestSafeExecute") {
		t.Errorf("stack does not include the panicking caller:\n%s", pe.Stack)
	}
}
