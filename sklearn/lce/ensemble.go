package lce

import (
	"context"
	"io"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/lce/core/model"
	"github.com/YuminosukeSato/lce/core/parallel"
	"github.com/YuminosukeSato/lce/metrics"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Member is one bagged tree together with the input columns it was fitted on.
type Member struct {
	Features []int
	Classes  []float64 // labels seen by the member (classifier)
	Root     *Node
}

type ensembleState struct {
	Params    Params
	Classes   []float64
	NFeatures int
	Members   []Member
}

// bag draws the rows and columns of every member. Each member has its own
// seeded generator so the draw does not depend on scheduling.
func bag(p Params, nRows, nCols, i int) (rows, cols []int) {
	seed := uint64(p.RandomState) + uint64(i)
	r := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))

	nSamples := max(1, int(p.MaxSamples*float64(nRows)))
	if p.Bootstrap {
		rows = make([]int, nSamples)
		for j := range rows {
			rows[j] = r.IntN(nRows)
		}
	} else {
		rows = r.Perm(nRows)[:nSamples]
	}
	sort.Ints(rows)

	nFeatures := max(1, int(p.MaxFeatures*float64(nCols)))
	cols = r.Perm(nCols)[:nFeatures]
	sort.Ints(cols)
	return rows, cols
}

func subMatrix(x [][]float64, y []float64, rows, cols []int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(len(rows), len(cols), nil)
	Y := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		for j, c := range cols {
			X.Set(i, j, x[r][c])
		}
		Y.Set(i, 0, y[r])
	}
	return X, Y
}

func selectColumns(X mat.Matrix, cols []int) *mat.Dense {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, len(cols), nil)
	for i := 0; i < rows; i++ {
		for j, c := range cols {
			out.Set(i, j, X.At(i, c))
		}
	}
	return out
}

// memberParams derives the tree parameters of member i.
func memberParams(p Params, i int) Params {
	p.RandomState += int64(i)
	return p
}

// Classifier is a bagging ensemble of LCE classification trees.
type Classifier struct {
	Params Params

	state    *model.StateManager
	classes_ []float64
	members_ []Member
}

// NewClassifier creates a bagged LCE classifier.
func NewClassifier(opts ...Option) *Classifier {
	p := defaultParams(true)
	for _, opt := range opts {
		opt(&p)
	}
	return &Classifier{Params: p, state: model.NewStateManager()}
}

// Fit fits NEstimators trees on bootstrap samples of X and y.
func (c *Classifier) Fit(X, y mat.Matrix) error {
	return c.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation.
func (c *Classifier) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer lceErrors.Recover(&err, "lce.Classifier.Fit")

	if err := c.Params.validate(true, true); err != nil {
		return err
	}
	rows, err := toRows("lce.Classifier.Fit", X)
	if err != nil {
		return err
	}
	target, err := toTarget("lce.Classifier.Fit", y, len(rows))
	if err != nil {
		return err
	}
	classes := uniqueSorted(target)
	if c.Params.Metric == "roc_auc" && len(classes) > 2 {
		return lceErrors.NewValidationError("metric", "roc_auc supports binary classification only", len(classes))
	}

	c.state.Reset()
	nCols := len(rows[0])
	members := make([]Member, c.Params.NEstimators)
	err = parallel.Map(len(members), c.Params.NJobs, func(i int) error {
		sampleRows, cols := bag(c.Params, len(rows), nCols, i)
		Xs, ys := subMatrix(rows, target, sampleRows, cols)

		tree := &TreeClassifier{Params: memberParams(c.Params, i), state: model.NewStateManager()}
		if err := tree.FitContext(ctx, Xs, ys); err != nil {
			return lceErrors.Wrapf(err, "estimator %d", i)
		}
		members[i] = Member{Features: cols, Classes: tree.classes_, Root: tree.root_}
		return nil
	})
	if err != nil {
		return err
	}

	c.members_ = members
	c.classes_ = classes
	c.state.SetDimensions(nCols, len(rows))
	c.state.SetFitted()

	log.GetLoggerWithName("lce.ensemble").Debug("Training completed",
		log.ModelNameKey, "Classifier",
		log.SamplesKey, len(rows),
		log.ClassesKey, len(classes),
		log.EstimatorsKey, len(members),
	)
	return nil
}

// PredictProba averages the member probabilities over the global class list.
func (c *Classifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, cols, err := inputDims("Classifier.PredictProba", X)
	if err != nil {
		return nil, err
	}
	if err := c.state.CheckFeatures("Classifier", "PredictProba", cols); err != nil {
		return nil, err
	}

	index := make(map[float64]int, len(c.classes_))
	for i, cls := range c.classes_ {
		index[cls] = i
	}

	sum := mat.NewDense(rows, len(c.classes_), nil)
	for _, m := range c.members_ {
		proba, err := predictRows(m.Root, selectColumns(X, m.Features), len(m.Classes), leafProba)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			for j, cls := range m.Classes {
				k := index[cls]
				sum.Set(i, k, sum.At(i, k)+proba.At(i, j))
			}
		}
	}
	sum.Scale(1/float64(len(c.members_)), sum)
	return sum, nil
}

// Predict returns the class with the highest averaged probability.
func (c *Classifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxLabels(proba, c.classes_), nil
}

// Score returns the mean accuracy on X and y.
func (c *Classifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

// Classes returns the sorted class labels seen during fitting.
func (c *Classifier) Classes() []float64 {
	return append([]float64(nil), c.classes_...)
}

// Members returns the fitted trees.
func (c *Classifier) Members() []Member { return c.members_ }

// GetParams returns the hyperparameters.
func (c *Classifier) GetParams() map[string]interface{} { return c.Params.getParams(true) }

// SetParams updates the hyperparameters. They are validated by the next Fit.
func (c *Classifier) SetParams(params map[string]interface{}) error {
	return c.Params.setParams(params, true)
}

// ExportDOT renders member i as a Graphviz DOT document.
func (c *Classifier) ExportDOT(i int) (string, error) {
	if err := c.state.RequireFitted("Classifier", "ExportDOT"); err != nil {
		return "", err
	}
	if i < 0 || i >= len(c.members_) {
		return "", lceErrors.NewValidationError("estimator", "index out of range", i)
	}
	return exportDOT(c.members_[i].Root, c.members_[i].Classes), nil
}

// Save writes the fitted ensemble to w.
func (c *Classifier) Save(w io.Writer) error {
	if err := c.state.RequireFitted("Classifier", "Save"); err != nil {
		return err
	}
	nFeatures, _ := c.state.GetDimensions()
	return model.SaveModelToWriter(&ensembleState{
		Params:    c.Params,
		Classes:   c.classes_,
		NFeatures: nFeatures,
		Members:   c.members_,
	}, w)
}

// Load restores an ensemble written by Save.
func (c *Classifier) Load(r io.Reader) error {
	var s ensembleState
	if err := model.LoadModelFromReader(&s, r); err != nil {
		return err
	}
	if len(s.Members) == 0 || len(s.Classes) == 0 {
		return lceErrors.NewValueError("Classifier.Load", "stream does not hold a fitted classifier")
	}
	c.Params = s.Params
	c.classes_ = s.Classes
	c.members_ = s.Members
	c.state = model.NewStateManager()
	c.state.SetDimensions(s.NFeatures, 0)
	c.state.SetFitted()
	return nil
}

// Regressor is a bagging ensemble of LCE regression trees.
type Regressor struct {
	Params Params

	state    *model.StateManager
	members_ []Member
}

// NewRegressor creates a bagged LCE regressor.
func NewRegressor(opts ...Option) *Regressor {
	p := defaultParams(false)
	for _, opt := range opts {
		opt(&p)
	}
	return &Regressor{Params: p, state: model.NewStateManager()}
}

// Fit fits NEstimators trees on bootstrap samples of X and y.
func (r *Regressor) Fit(X, y mat.Matrix) error {
	return r.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation.
func (r *Regressor) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer lceErrors.Recover(&err, "lce.Regressor.Fit")

	if err := r.Params.validate(false, true); err != nil {
		return err
	}
	rows, err := toRows("lce.Regressor.Fit", X)
	if err != nil {
		return err
	}
	target, err := toTarget("lce.Regressor.Fit", y, len(rows))
	if err != nil {
		return err
	}

	r.state.Reset()
	nCols := len(rows[0])
	members := make([]Member, r.Params.NEstimators)
	err = parallel.Map(len(members), r.Params.NJobs, func(i int) error {
		sampleRows, cols := bag(r.Params, len(rows), nCols, i)
		Xs, ys := subMatrix(rows, target, sampleRows, cols)

		tree := &TreeRegressor{Params: memberParams(r.Params, i), state: model.NewStateManager()}
		if err := tree.FitContext(ctx, Xs, ys); err != nil {
			return lceErrors.Wrapf(err, "estimator %d", i)
		}
		members[i] = Member{Features: cols, Root: tree.root_}
		return nil
	})
	if err != nil {
		return err
	}

	r.members_ = members
	r.state.SetDimensions(nCols, len(rows))
	r.state.SetFitted()

	log.GetLoggerWithName("lce.ensemble").Debug("Training completed",
		log.ModelNameKey, "Regressor",
		log.SamplesKey, len(rows),
		log.EstimatorsKey, len(members),
	)
	return nil
}

// Predict averages the member predictions.
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, cols, err := inputDims("Regressor.Predict", X)
	if err != nil {
		return nil, err
	}
	if err := r.state.CheckFeatures("Regressor", "Predict", cols); err != nil {
		return nil, err
	}

	sum := mat.NewDense(rows, 1, nil)
	for _, m := range r.members_ {
		pred, err := predictRows(m.Root, selectColumns(X, m.Features), 1, leafValue)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, pred)
	}
	sum.Scale(1/float64(len(r.members_)), sum)
	return sum, nil
}

// Score returns the coefficient of determination R^2.
func (r *Regressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return r2(y, pred)
}

// Members returns the fitted trees.
func (r *Regressor) Members() []Member { return r.members_ }

// GetParams returns the hyperparameters.
func (r *Regressor) GetParams() map[string]interface{} { return r.Params.getParams(true) }

// SetParams updates the hyperparameters. They are validated by the next Fit.
func (r *Regressor) SetParams(params map[string]interface{}) error {
	return r.Params.setParams(params, true)
}

// ExportDOT renders member i as a Graphviz DOT document.
func (r *Regressor) ExportDOT(i int) (string, error) {
	if err := r.state.RequireFitted("Regressor", "ExportDOT"); err != nil {
		return "", err
	}
	if i < 0 || i >= len(r.members_) {
		return "", lceErrors.NewValidationError("estimator", "index out of range", i)
	}
	return exportDOT(r.members_[i].Root, nil), nil
}

// Save writes the fitted ensemble to w.
func (r *Regressor) Save(w io.Writer) error {
	if err := r.state.RequireFitted("Regressor", "Save"); err != nil {
		return err
	}
	nFeatures, _ := r.state.GetDimensions()
	return model.SaveModelToWriter(&ensembleState{
		Params:    r.Params,
		NFeatures: nFeatures,
		Members:   r.members_,
	}, w)
}

// Load restores an ensemble written by Save.
func (r *Regressor) Load(rd io.Reader) error {
	var s ensembleState
	if err := model.LoadModelFromReader(&s, rd); err != nil {
		return err
	}
	if len(s.Members) == 0 || len(s.Classes) != 0 {
		return lceErrors.NewValueError("Regressor.Load", "stream does not hold a fitted regressor")
	}
	r.Params = s.Params
	r.members_ = s.Members
	r.state = model.NewStateManager()
	r.state.SetDimensions(s.NFeatures, 0)
	r.state.SetFitted()
	return nil
}
