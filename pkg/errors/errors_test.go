package errors

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "TreeClassifier.Fit",
			kind:    "node fit failed",
			err:     fmt.Errorf("test error"),
			wantMsg: "lce: TreeClassifier.Fit: node fit failed: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "lce: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 4, 3, 1)

	want := "lce: Predict: dimension mismatch on axis 1 (features). Expected 4, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 4 || dimErr.Got != 3 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("TreeClassifier", "Predict")

	want := "lce: TreeClassifier: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValidationError(t *testing.T) {
	tests := []struct {
		param   string
		reason  string
		value   interface{}
		wantMsg string
	}{
		{"max_depth", "must be >= 0", -1, "lce: validation failed for parameter 'max_depth': must be >= 0 (got: -1)"},
		{"n_iter", "must be >= 1", 0, "lce: validation failed for parameter 'n_iter': must be >= 1 (got: 0)"},
		{"base_learner", "unknown base learner", "sklearn", "lce: validation failed for parameter 'base_learner': unknown base learner (got: sklearn)"},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			err := NewValidationError(tt.param, tt.reason, tt.value)
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}
			var valErr *ValidationError
			if !As(err, &valErr) {
				t.Fatal("Error should be castable to *ValidationError")
			}
			if valErr.ParamName != tt.param {
				t.Errorf("ParamName = %v, want %v", valErr.ParamName, tt.param)
			}
		})
	}
}

func TestNewValueError(t *testing.T) {
	err := NewValueError("Fit", "y contains NaN")
	if err.Error() != "lce: Fit: y contains NaN" {
		t.Errorf("Error() = %v", err.Error())
	}
	var valErr *ValueError
	if !As(err, &valErr) {
		t.Error("Error should be castable to *ValueError")
	}
}

func TestFitFailedWarning(t *testing.T) {
	cause := New("single class in fold")
	w := NewFitFailedWarning("boosting.Classifier", 3, cause)

	want := "boosting.Classifier: fit failed on trial 3 and was skipped: single class in fold"
	if w.Error() != want {
		t.Errorf("Error() = %v, want %v", w.Error(), want)
	}
	if !Is(w, cause) {
		t.Error("warning should unwrap to its cause")
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Warn().EmbedObject(w).Msg("trial skipped")
	if !strings.Contains(buf.String(), `"type":"FitFailedWarning"`) {
		t.Errorf("zerolog output missing type field: %s", buf.String())
	}
}

func TestWarnRoutesToHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))

	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	if !strings.Contains(got[0].Error(), "roc_auc") {
		t.Errorf("unexpected warning: %v", got[0])
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrSingleClass, "in boosting.Classifier.Fit")

	if !Is(wrapped, ErrSingleClass) {
		t.Error("Expected Is(wrapped, ErrSingleClass) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in boosting.Classifier.Fit") {
		t.Error("Expected wrapped error to contain wrapping message")
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d rows, got %d", "Fit", 10, 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in Fit: expected 10 rows, got 0") {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}

func TestCheckScalar(t *testing.T) {
	if err := CheckScalar("loss", 0.3, 1); err != nil {
		t.Errorf("finite value should pass: %v", err)
	}
	err := CheckScalar("loss", zeroDivNaN(), 7)
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if numErr.Iteration != 7 {
		t.Errorf("Iteration = %d, want 7", numErr.Iteration)
	}
}

func TestLogSumExp(t *testing.T) {
	got := LogSumExp([]float64{1000, 1000})
	want := 1000 + 0.6931471805599453
	if d := got - want; d > 1e-9 || d < -1e-9 {
		t.Errorf("LogSumExp = %v, want %v", got, want)
	}
}

func zeroDivNaN() float64 {
	zero := 0.0
	return zero / zero
}
