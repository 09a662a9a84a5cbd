package log

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
)

func TestStackHandler_AddsStacktrace(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantStack bool
	}{
		{"error with stack", lceErrors.NewValueError("Fit", "y contains NaN"), true},
		{"stack below a plain wrapper", fmt.Errorf("loading model: %w", lceErrors.NewModelError("Load", "bad header", nil)), true},
		{"plain error", fmt.Errorf("no stack here"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(withStacktrace(slog.NewJSONHandler(&buf, nil)))
			logger.With("cmd", "fit").WithGroup("run").Error("command failed", ErrAttr(tt.err))

			entries := decodeLines(t, &buf)
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(entries))
			}
			st, ok := entries[0][StacktraceAttrKey].(string)
			if ok != tt.wantStack {
				t.Fatalf("stacktrace present = %v, want %v: %s", ok, tt.wantStack, buf.String())
			}
			if tt.wantStack && !strings.Contains(st, "TestStackHandler_AddsStacktrace") {
				t.Errorf("stacktrace does not reach the caller:\n%s", st)
			}
			if entries[0]["cmd"] != "fit" {
				t.Errorf("attributes added with With were lost: %v", entries[0])
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	prev := Provider()
	defer SetProvider(prev)
	prevSlog := slog.Default()
	defer slog.SetDefault(prevSlog)

	var buf bytes.Buffer
	if err := SetupLogger("warn", &buf); err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	slog.Info("hidden")
	slog.Warn("shown", "n", 1)
	GetLoggerWithName("cli").Info("hidden too")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %s", len(entries), buf.String())
	}
	if entries[0]["message"] != "shown" || entries[0]["severity"] != "WARN" {
		t.Errorf("unexpected entry %v", entries[0])
	}

	var ve *lceErrors.ValidationError
	if err := SetupLogger("loud", &buf); !lceErrors.As(err, &ve) {
		t.Errorf("unknown level: err = %v, want ValidationError", err)
	}
}
