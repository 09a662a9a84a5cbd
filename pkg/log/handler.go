package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// stackHandler は ErrAttrKey に渡された error の cockroachdb スタックトレースを
// StacktraceAttrKey として slog レコードに追加する。CLI の出力で使う。
type stackHandler struct {
	next slog.Handler
}

func withStacktrace(next slog.Handler) slog.Handler {
	return stackHandler{next: next}
}

func (h stackHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h stackHandler) Handle(ctx context.Context, r slog.Record) error {
	var st string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != ErrAttrKey {
			return true
		}
		if err, ok := a.Value.Any().(error); ok {
			st = extractStacktrace(err)
		}
		return false
	})
	if st != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, st))
	}
	return h.next.Handle(ctx, r)
}

func (h stackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stackHandler{next: h.next.WithAttrs(attrs)}
}

func (h stackHandler) WithGroup(name string) slog.Handler {
	return stackHandler{next: h.next.WithGroup(name)}
}

// extractStacktrace returns the first stack trace recorded in err's chain.
// Wrapping layers without safe details are skipped.
func extractStacktrace(err error) string {
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		if d := errors.GetSafeDetails(e).SafeDetails; len(d) > 0 && d[0] != "" {
			return d[0]
		}
	}
	return ""
}
