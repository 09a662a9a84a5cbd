package cli

import (
	"bytes"
	"context"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/lce/core/model"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/sklearn/lce"
)

// Estimator kinds stored in model files.
const (
	kindTreeClassifier = "tree_classifier"
	kindTreeRegressor  = "tree_regressor"
	kindClassifier     = "classifier"
	kindRegressor      = "regressor"
)

// estimator is the surface shared by the four LCE estimators.
type estimator interface {
	FitContext(ctx context.Context, X, y mat.Matrix) error
	Predict(X mat.Matrix) (mat.Matrix, error)
	Score(X, y mat.Matrix) (float64, error)
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// modelFile wraps a saved estimator with what the CLI needs to reuse it.
type modelFile struct {
	Kind     string
	Features []string
	Target   string
	Payload  []byte
}

func kindOf(ensemble, regression bool) string {
	switch {
	case ensemble && regression:
		return kindRegressor
	case ensemble:
		return kindClassifier
	case regression:
		return kindTreeRegressor
	default:
		return kindTreeClassifier
	}
}

func newEstimator(kind string, opts ...lce.Option) (estimator, error) {
	switch kind {
	case kindTreeClassifier:
		return lce.NewTreeClassifier(opts...), nil
	case kindTreeRegressor:
		return lce.NewTreeRegressor(opts...), nil
	case kindClassifier:
		return lce.NewClassifier(opts...), nil
	case kindRegressor:
		return lce.NewRegressor(opts...), nil
	default:
		return nil, lceErrors.NewValueError("cli.newEstimator", "unknown estimator kind "+kind)
	}
}

func saveModel(path string, est estimator, mf modelFile) error {
	var payload bytes.Buffer
	if err := est.Save(&payload); err != nil {
		return err
	}
	mf.Payload = payload.Bytes()

	f, err := os.Create(path)
	if err != nil {
		return lceErrors.Wrap(err, "create model file")
	}
	if err := model.SaveModelToWriter(&mf, f); err != nil {
		f.Close()
		return err
	}
	return lceErrors.Wrap(f.Close(), "close model file")
}

func loadModel(path string) (estimator, *modelFile, error) {
	var mf modelFile
	if err := model.LoadModel(&mf, path); err != nil {
		return nil, nil, err
	}
	est, err := newEstimator(mf.Kind)
	if err != nil {
		return nil, nil, err
	}
	if err := est.Load(bytes.NewReader(mf.Payload)); err != nil {
		return nil, nil, lceErrors.Wrapf(err, "load %s", mf.Kind)
	}
	return est, &mf, nil
}

// firstRoot returns the root of the tree (or of the first ensemble member).
func firstRoot(est estimator) *lce.Node {
	switch e := est.(type) {
	case *lce.TreeClassifier:
		return e.Root()
	case *lce.TreeRegressor:
		return e.Root()
	case *lce.Classifier:
		if m := e.Members(); len(m) > 0 {
			return m[0].Root
		}
	case *lce.Regressor:
		if m := e.Members(); len(m) > 0 {
			return m[0].Root
		}
	}
	return nil
}

// exportDOT renders the tree, or ensemble member i, as DOT.
func exportDOT(est estimator, i int) (string, error) {
	switch e := est.(type) {
	case *lce.TreeClassifier:
		return e.ExportDOT()
	case *lce.TreeRegressor:
		return e.ExportDOT()
	case *lce.Classifier:
		return e.ExportDOT(i)
	case *lce.Regressor:
		return e.ExportDOT(i)
	}
	return "", lceErrors.NewValueError("cli.exportDOT", "estimator cannot be exported")
}
