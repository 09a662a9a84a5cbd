// Package viz draws fitted LCE artefacts: the score history of a node's
// hyperparameter search and the tree diagram itself.
package viz

import (
	"math"
	"path/filepath"
	"strings"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotSearchHistory saves a plot of per-trial search scores and the running
// best to path. The image format follows the file extension (png, svg, pdf).
// NaN scores mark failed trials and are left out of both series.
func PlotSearchHistory(scores []float64, title, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf":
	default:
		return lceErrors.NewValidationError("path", "extension must be .png, .svg or .pdf", path)
	}

	trials, best := historyXYs(scores)
	if len(trials) == 0 {
		return lceErrors.NewValueError("viz.PlotSearchHistory", "no successful trial to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "trial"
	p.Y.Label.Text = "score"
	p.Add(plotter.NewGrid())

	points, err := plotter.NewScatter(trials)
	if err != nil {
		return lceErrors.Wrap(err, "trial scores")
	}
	points.GlyphStyle.Radius = vg.Points(3)

	line, err := plotter.NewLine(best)
	if err != nil {
		return lceErrors.Wrap(err, "running best")
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(points, line)
	p.Legend.Add("trial", points)
	p.Legend.Add("best so far", line)
	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return lceErrors.Wrapf(err, "save search plot %s", path)
	}
	return nil
}

// historyXYs splits scores into the successful trials and the running best
// after each of them. Trials are numbered from 1.
func historyXYs(scores []float64) (trials, best plotter.XYs) {
	runBest := math.Inf(-1)
	for i, s := range scores {
		if math.IsNaN(s) {
			continue
		}
		if s > runBest {
			runBest = s
		}
		trials = append(trials, plotter.XY{X: float64(i + 1), Y: s})
		best = append(best, plotter.XY{X: float64(i + 1), Y: runBest})
	}
	return trials, best
}
