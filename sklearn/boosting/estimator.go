package boosting

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/lce/core/model"
	"github.com/YuminosukeSato/lce/metrics"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// toRows converts X to row-major slices. NaN marks a missing value; Inf is rejected.
func toRows(op string, X mat.Matrix) ([][]float64, error) {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, lceErrors.NewValueError(op, "empty input data")
	}
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		mat.Row(row, i, X)
		if err := lceErrors.CheckFinite(op, row); err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

func toTarget(op string, y mat.Matrix, rows int) ([]float64, error) {
	yRows, yCols := y.Dims()
	if yRows != rows {
		return nil, lceErrors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return nil, lceErrors.NewDimensionError(op, 1, yCols, 1)
	}
	out := make([]float64, rows)
	for i := range out {
		v := y.At(i, 0)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, lceErrors.NewValueError(op, "y contains NaN or infinity")
		}
		out[i] = v
	}
	return out, nil
}

// Classifier is a gradient boosting classifier.
type Classifier struct {
	Params Params

	state  *model.StateManager
	model_ *Model
}

// NewClassifier creates a classifier for the given backend.
func NewClassifier(backend Backend, params Params) *Classifier {
	params.Backend = backend
	return &Classifier{Params: params, state: model.NewStateManager()}
}

// Fit trains the classifier. Labels are remapped to 0..K-1 internally;
// training data with a single class is rejected.
func (c *Classifier) Fit(X, y mat.Matrix) (err error) {
	defer lceErrors.Recover(&err, "boosting.Classifier.Fit")

	if err := c.Params.Validate(); err != nil {
		return err
	}
	rows, err := toRows("boosting.Classifier.Fit", X)
	if err != nil {
		return err
	}
	target, err := toTarget("boosting.Classifier.Fit", y, len(rows))
	if err != nil {
		return err
	}

	classes := uniqueSorted(target)
	if len(classes) < 2 {
		return lceErrors.Wrap(lceErrors.ErrSingleClass, "boosting.Classifier.Fit")
	}
	index := make(map[float64]int, len(classes))
	for i, cls := range classes {
		index[cls] = i
	}
	encoded := make([]float64, len(target))
	for i, v := range target {
		encoded[i] = float64(index[v])
	}

	m, err := newTrainer(c.Params).fit(rows, encoded, len(classes))
	if err != nil {
		return lceErrors.NewModelError("boosting.Classifier.Fit", "training", err)
	}
	m.Classes = classes
	c.model_ = m
	c.state.SetDimensions(len(rows[0]), len(rows))
	c.state.SetFitted()

	log.GetLoggerWithName("boosting.classifier").Debug("Training completed",
		log.BaseLearnerKey, c.Params.Backend.String(),
		log.SamplesKey, len(rows),
		log.ClassesKey, len(classes),
	)
	return nil
}

// PredictProba returns one probability column per class in Classes order.
func (c *Classifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	_, cols := X.Dims()
	if err := c.state.CheckFeatures("boosting.Classifier", "PredictProba", cols); err != nil {
		return nil, err
	}
	return c.model_.Transform(X)
}

// Predict returns the most probable class label for each row.
func (c *Classifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, k := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, c.model_.Classes[best])
	}
	return out, nil
}

// Score returns the mean accuracy.
func (c *Classifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

// Classes returns the sorted class labels seen during fitting.
func (c *Classifier) Classes() []float64 {
	if c.model_ == nil {
		return nil
	}
	return append([]float64(nil), c.model_.Classes...)
}

// Model returns the fitted model, or nil before Fit.
func (c *Classifier) Model() *Model { return c.model_ }

// GetParams returns the hyperparameters.
func (c *Classifier) GetParams() map[string]interface{} { return c.Params.GetParams() }

// SetParams updates the hyperparameters.
func (c *Classifier) SetParams(params map[string]interface{}) error {
	return c.Params.SetParams(params)
}

// Regressor is a gradient boosting regressor minimising squared error.
type Regressor struct {
	Params Params

	state  *model.StateManager
	model_ *Model
}

// NewRegressor creates a regressor for the given backend.
func NewRegressor(backend Backend, params Params) *Regressor {
	params.Backend = backend
	return &Regressor{Params: params, state: model.NewStateManager()}
}

// Fit trains the regressor.
func (r *Regressor) Fit(X, y mat.Matrix) (err error) {
	defer lceErrors.Recover(&err, "boosting.Regressor.Fit")

	if err := r.Params.Validate(); err != nil {
		return err
	}
	rows, err := toRows("boosting.Regressor.Fit", X)
	if err != nil {
		return err
	}
	target, err := toTarget("boosting.Regressor.Fit", y, len(rows))
	if err != nil {
		return err
	}

	m, err := newTrainer(r.Params).fit(rows, target, 0)
	if err != nil {
		return lceErrors.NewModelError("boosting.Regressor.Fit", "training", err)
	}
	r.model_ = m
	r.state.SetDimensions(len(rows[0]), len(rows))
	r.state.SetFitted()

	log.GetLoggerWithName("boosting.regressor").Debug("Training completed",
		log.BaseLearnerKey, r.Params.Backend.String(),
		log.SamplesKey, len(rows),
	)
	return nil
}

// Predict returns one prediction per row.
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	_, cols := X.Dims()
	if err := r.state.CheckFeatures("boosting.Regressor", "Predict", cols); err != nil {
		return nil, err
	}
	return r.model_.Transform(X)
}

// Score returns the coefficient of determination R^2.
func (r *Regressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	yVec, err := metrics.ColumnVec("boosting.Regressor.Score", y)
	if err != nil {
		return 0, err
	}
	predVec, err := metrics.ColumnVec("boosting.Regressor.Score", pred)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(yVec, predVec)
}

// Model returns the fitted model, or nil before Fit.
func (r *Regressor) Model() *Model { return r.model_ }

// GetParams returns the hyperparameters.
func (r *Regressor) GetParams() map[string]interface{} { return r.Params.GetParams() }

// SetParams updates the hyperparameters.
func (r *Regressor) SetParams(params map[string]interface{}) error {
	return r.Params.SetParams(params)
}

func uniqueSorted(y []float64) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
