package viz

import (
	"bytes"
	"context"
	"strings"

	"github.com/goccy/go-graphviz"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
)

// RenderTreeSVG lays out a DOT diagram (as produced by the estimators'
// ExportDOT) with Graphviz and returns the SVG document.
func RenderTreeSVG(ctx context.Context, dot string) ([]byte, error) {
	if strings.TrimSpace(dot) == "" {
		return nil, lceErrors.NewValueError("viz.RenderTreeSVG", "empty DOT source")
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, lceErrors.Wrap(err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, lceErrors.Wrap(err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, lceErrors.Wrap(err, "render")
	}
	return buf.Bytes(), nil
}
