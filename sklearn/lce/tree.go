// Package lce implements the Local Cascade Ensemble: decision trees whose
// nodes each fit a gradient boosting base learner, append its predictions to
// the features and split on the augmented matrix with a depth-1 router.
package lce

import (
	"context"
	"io"
	"math"
	"sync"

	"github.com/YuminosukeSato/lce/core/model"
	"github.com/YuminosukeSato/lce/core/parallel"
	"github.com/YuminosukeSato/lce/metrics"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// predictThreshold is the number of rows below which prediction runs on one goroutine.
const predictThreshold = 256

// toRows converts X to row-major slices. NaN marks a missing value.
func toRows(op string, X mat.Matrix) ([][]float64, error) {
	rows, cols, err := inputDims(op, X)
	if err != nil {
		return nil, err
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

// inputDims returns the shape of X and rejects nil or empty input before any
// fitted-state check reads it.
func inputDims(op string, X mat.Matrix) (int, int, error) {
	if X == nil {
		return 0, 0, lceErrors.NewValueError(op, "nil input data")
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, lceErrors.NewValueError(op, "empty input data")
	}
	return rows, cols, nil
}

func toTarget(op string, y mat.Matrix, rows int) ([]float64, error) {
	if y == nil {
		return nil, lceErrors.NewValueError(op, "nil target")
	}
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

// predictRows routes every row of X through root and lets emit write the
// leaf output into dst, one row of width columns per input row.
func predictRows(root *Node, X mat.Matrix, width int, emit func(leaf *Node, out, dst []float64)) (*mat.Dense, error) {
	rows, cols := X.Dims()
	result := mat.NewDense(rows, width, nil)

	var (
		mu       sync.Mutex
		firstErr error
	)
	parallel.ParallelizeWithThreshold(rows, predictThreshold, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			leaf, out, err := root.route(row)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			emit(leaf, out, result.RawRowView(i))
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// treeState is the gob encoded form of a fitted tree.
type treeState struct {
	Params    Params
	Classes   []float64
	NFeatures int
	Root      *Node
}

// TreeClassifier is a single LCE classification tree.
type TreeClassifier struct {
	Params Params

	state    *model.StateManager
	classes_ []float64
	root_    *Node
}

// NewTreeClassifier creates an LCE classification tree.
func NewTreeClassifier(opts ...Option) *TreeClassifier {
	p := defaultParams(true)
	for _, opt := range opts {
		opt(&p)
	}
	return &TreeClassifier{Params: p, state: model.NewStateManager()}
}

// Fit grows the tree on X and the class labels y.
func (t *TreeClassifier) Fit(X, y mat.Matrix) error {
	return t.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation between search trials and nodes.
func (t *TreeClassifier) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer lceErrors.Recover(&err, "lce.TreeClassifier.Fit")

	if err := t.Params.validate(true, false); err != nil {
		return err
	}
	rows, err := toRows("lce.TreeClassifier.Fit", X)
	if err != nil {
		return err
	}
	target, err := toTarget("lce.TreeClassifier.Fit", y, len(rows))
	if err != nil {
		return err
	}

	classes := uniqueSorted(target)
	if t.Params.Metric == "roc_auc" && len(classes) > 2 {
		return lceErrors.NewValidationError("metric", "roc_auc supports binary classification only", len(classes))
	}
	encoded := encodeLabels(target, classes)

	t.state.Reset()
	root, err := newBuilder(ctx, t.Params, true, "TreeClassifier").grow(rows, encoded)
	if err != nil {
		return err
	}
	t.root_ = root
	t.classes_ = classes
	t.state.SetDimensions(len(rows[0]), len(rows))
	t.state.SetFitted()

	log.GetLoggerWithName("lce.tree").Debug("Training completed",
		log.ModelNameKey, "TreeClassifier",
		log.SamplesKey, len(rows),
		log.ClassesKey, len(classes),
		log.TreeDepthKey, root.maxDepth(),
		log.LeavesKey, root.nLeaves(),
	)
	return nil
}

// PredictProba returns one probability column per entry of Classes.
// Classes unseen at a leaf get probability zero.
func (t *TreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	_, cols, err := inputDims("TreeClassifier.PredictProba", X)
	if err != nil {
		return nil, err
	}
	if err := t.state.CheckFeatures("TreeClassifier", "PredictProba", cols); err != nil {
		return nil, err
	}
	return predictRows(t.root_, X, len(t.classes_), leafProba)
}

func leafProba(leaf *Node, out, dst []float64) {
	if leaf.Model == nil {
		dst[int(leaf.Value)] = 1
		return
	}
	for j, c := range leaf.Model.Classes {
		dst[int(c)] = out[j]
	}
}

// Predict returns the most probable class label of each row.
func (t *TreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := t.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxLabels(proba, t.classes_), nil
}

// Score returns the mean accuracy on X and y.
func (t *TreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := t.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

// Classes returns the sorted class labels seen during fitting.
func (t *TreeClassifier) Classes() []float64 {
	return append([]float64(nil), t.classes_...)
}

// Root returns the root node of the fitted tree, or nil before Fit.
func (t *TreeClassifier) Root() *Node { return t.root_ }

// Depth returns the depth of the deepest leaf.
func (t *TreeClassifier) Depth() int {
	if t.root_ == nil {
		return 0
	}
	return t.root_.maxDepth()
}

// NLeaves returns the number of leaves.
func (t *TreeClassifier) NLeaves() int {
	if t.root_ == nil {
		return 0
	}
	return t.root_.nLeaves()
}

// GetParams returns the hyperparameters.
func (t *TreeClassifier) GetParams() map[string]interface{} { return t.Params.getParams(false) }

// SetParams updates the hyperparameters. They are validated by the next Fit.
func (t *TreeClassifier) SetParams(params map[string]interface{}) error {
	return t.Params.setParams(params, false)
}

// ExportDOT returns the fitted tree as a Graphviz DOT document.
func (t *TreeClassifier) ExportDOT() (string, error) {
	if err := t.state.RequireFitted("TreeClassifier", "ExportDOT"); err != nil {
		return "", err
	}
	return exportDOT(t.root_, t.classes_), nil
}

// Save writes the fitted tree to w.
func (t *TreeClassifier) Save(w io.Writer) error {
	if err := t.state.RequireFitted("TreeClassifier", "Save"); err != nil {
		return err
	}
	nFeatures, _ := t.state.GetDimensions()
	return model.SaveModelToWriter(&treeState{
		Params:    t.Params,
		Classes:   t.classes_,
		NFeatures: nFeatures,
		Root:      t.root_,
	}, w)
}

// Load restores a tree written by Save.
func (t *TreeClassifier) Load(r io.Reader) error {
	var s treeState
	if err := model.LoadModelFromReader(&s, r); err != nil {
		return err
	}
	if s.Root == nil || len(s.Classes) == 0 {
		return lceErrors.NewValueError("TreeClassifier.Load", "stream does not hold a fitted classifier")
	}
	t.Params = s.Params
	t.classes_ = s.Classes
	t.root_ = s.Root
	t.state = model.NewStateManager()
	t.state.SetDimensions(s.NFeatures, 0)
	t.state.SetFitted()
	return nil
}

// TreeRegressor is a single LCE regression tree.
type TreeRegressor struct {
	Params Params

	state *model.StateManager
	root_ *Node
}

// NewTreeRegressor creates an LCE regression tree.
func NewTreeRegressor(opts ...Option) *TreeRegressor {
	p := defaultParams(false)
	for _, opt := range opts {
		opt(&p)
	}
	return &TreeRegressor{Params: p, state: model.NewStateManager()}
}

// Fit grows the tree on X and the targets y.
func (t *TreeRegressor) Fit(X, y mat.Matrix) error {
	return t.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation between search trials and nodes.
func (t *TreeRegressor) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer lceErrors.Recover(&err, "lce.TreeRegressor.Fit")

	if err := t.Params.validate(false, false); err != nil {
		return err
	}
	rows, err := toRows("lce.TreeRegressor.Fit", X)
	if err != nil {
		return err
	}
	target, err := toTarget("lce.TreeRegressor.Fit", y, len(rows))
	if err != nil {
		return err
	}

	t.state.Reset()
	root, err := newBuilder(ctx, t.Params, false, "TreeRegressor").grow(rows, target)
	if err != nil {
		return err
	}
	t.root_ = root
	t.state.SetDimensions(len(rows[0]), len(rows))
	t.state.SetFitted()

	log.GetLoggerWithName("lce.tree").Debug("Training completed",
		log.ModelNameKey, "TreeRegressor",
		log.SamplesKey, len(rows),
		log.TreeDepthKey, root.maxDepth(),
		log.LeavesKey, root.nLeaves(),
	)
	return nil
}

// Predict returns one prediction per row.
func (t *TreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	_, cols, err := inputDims("TreeRegressor.Predict", X)
	if err != nil {
		return nil, err
	}
	if err := t.state.CheckFeatures("TreeRegressor", "Predict", cols); err != nil {
		return nil, err
	}
	return predictRows(t.root_, X, 1, leafValue)
}

func leafValue(leaf *Node, out, dst []float64) {
	if leaf.Model == nil {
		dst[0] = leaf.Value
		return
	}
	dst[0] = out[0]
}

// Score returns the coefficient of determination R^2.
func (t *TreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := t.Predict(X)
	if err != nil {
		return 0, err
	}
	return r2(y, pred)
}

// Root returns the root node of the fitted tree, or nil before Fit.
func (t *TreeRegressor) Root() *Node { return t.root_ }

// Depth returns the depth of the deepest leaf.
func (t *TreeRegressor) Depth() int {
	if t.root_ == nil {
		return 0
	}
	return t.root_.maxDepth()
}

// NLeaves returns the number of leaves.
func (t *TreeRegressor) NLeaves() int {
	if t.root_ == nil {
		return 0
	}
	return t.root_.nLeaves()
}

// GetParams returns the hyperparameters.
func (t *TreeRegressor) GetParams() map[string]interface{} { return t.Params.getParams(false) }

// SetParams updates the hyperparameters. They are validated by the next Fit.
func (t *TreeRegressor) SetParams(params map[string]interface{}) error {
	return t.Params.setParams(params, false)
}

// ExportDOT returns the fitted tree as a Graphviz DOT document.
func (t *TreeRegressor) ExportDOT() (string, error) {
	if err := t.state.RequireFitted("TreeRegressor", "ExportDOT"); err != nil {
		return "", err
	}
	return exportDOT(t.root_, nil), nil
}

// Save writes the fitted tree to w.
func (t *TreeRegressor) Save(w io.Writer) error {
	if err := t.state.RequireFitted("TreeRegressor", "Save"); err != nil {
		return err
	}
	nFeatures, _ := t.state.GetDimensions()
	return model.SaveModelToWriter(&treeState{
		Params:    t.Params,
		NFeatures: nFeatures,
		Root:      t.root_,
	}, w)
}

// Load restores a tree written by Save.
func (t *TreeRegressor) Load(r io.Reader) error {
	var s treeState
	if err := model.LoadModelFromReader(&s, r); err != nil {
		return err
	}
	if s.Root == nil || len(s.Classes) != 0 {
		return lceErrors.NewValueError("TreeRegressor.Load", "stream does not hold a fitted regressor")
	}
	t.Params = s.Params
	t.root_ = s.Root
	t.state = model.NewStateManager()
	t.state.SetDimensions(s.NFeatures, 0)
	t.state.SetFitted()
	return nil
}

func encodeLabels(y, classes []float64) []float64 {
	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(index[v])
	}
	return out
}

func argmaxLabels(proba mat.Matrix, classes []float64) *mat.Dense {
	rows, k := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, classes[best])
	}
	return out
}

func r2(y, pred mat.Matrix) (float64, error) {
	yVec, err := metrics.ColumnVec("Score", y)
	if err != nil {
		return 0, err
	}
	pVec, err := metrics.ColumnVec("Score", pred)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(yVec, pVec)
}
