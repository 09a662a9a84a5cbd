// Package tree implements CART decision trees for classification and regression.
//
// The depth-1 classifier and regressor double as the split router of an LCE
// node: Structure exposes the fitted split so callers can route rows and
// persist it without the estimator.
package tree

import (
	"math"
	"math/rand"

	"github.com/YuminosukeSato/lce/core/model"
	"github.com/YuminosukeSato/lce/metrics"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// treeParams holds the hyperparameters shared by classifier and regressor.
type treeParams struct {
	criterion       string
	splitter        string
	maxDepth        int // -1 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	randomState     int64
}

// Option configures a decision tree.
type Option func(*treeParams)

// WithCriterion sets the impurity criterion ("gini", "entropy" or "squared_error").
func WithCriterion(criterion string) Option {
	return func(p *treeParams) { p.criterion = criterion }
}

// WithSplitter sets the split strategy ("best" or "random").
func WithSplitter(splitter string) Option {
	return func(p *treeParams) { p.splitter = splitter }
}

// WithMaxDepth sets the maximum depth; -1 grows until leaves are pure.
func WithMaxDepth(depth int) Option {
	return func(p *treeParams) { p.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(p *treeParams) { p.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(p *treeParams) { p.minSamplesLeaf = n }
}

// WithRandomState seeds the random splitter.
func WithRandomState(seed int64) Option {
	return func(p *treeParams) { p.randomState = seed }
}

func (p *treeParams) validate(criteria ...string) error {
	valid := false
	for _, c := range criteria {
		if p.criterion == c {
			valid = true
		}
	}
	if !valid {
		return lceErrors.NewValidationError("criterion", "unsupported criterion", p.criterion)
	}
	if p.splitter != "best" && p.splitter != "random" {
		return lceErrors.NewValidationError("splitter", "must be best or random", p.splitter)
	}
	if p.maxDepth < -1 {
		return lceErrors.NewValidationError("max_depth", "must be >= 0 or -1 for unlimited", p.maxDepth)
	}
	if p.minSamplesSplit < 2 {
		return lceErrors.NewValidationError("min_samples_split", "must be >= 2", p.minSamplesSplit)
	}
	if p.minSamplesLeaf < 1 {
		return lceErrors.NewValidationError("min_samples_leaf", "must be >= 1", p.minSamplesLeaf)
	}
	return nil
}

func (p *treeParams) getParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         p.criterion,
		"splitter":          p.splitter,
		"max_depth":         p.maxDepth,
		"min_samples_split": p.minSamplesSplit,
		"min_samples_leaf":  p.minSamplesLeaf,
		"random_state":      p.randomState,
	}
}

func (p *treeParams) setParams(params map[string]interface{}) error {
	for key, v := range params {
		var err error
		switch key {
		case "criterion":
			p.criterion, err = model.ParamString(key, v)
		case "splitter":
			p.splitter, err = model.ParamString(key, v)
		case "max_depth":
			p.maxDepth, err = model.ParamInt(key, v)
		case "min_samples_split":
			p.minSamplesSplit, err = model.ParamInt(key, v)
		case "min_samples_leaf":
			p.minSamplesLeaf, err = model.ParamInt(key, v)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, v)
			p.randomState = int64(seed)
		default:
			err = lceErrors.NewValidationError(key, "unknown parameter", v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func defaultParams(criterion string) treeParams {
	return treeParams{
		criterion:       criterion,
		splitter:        "best",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
}

// extractXY は入力を行優先のスライスに変換し、NaN・次元不一致を検出する
func extractXY(op string, X, y mat.Matrix) ([][]float64, []float64, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return nil, nil, lceErrors.NewValueError(op, "empty input data")
	}
	if rows != yRows {
		return nil, nil, lceErrors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return nil, nil, lceErrors.NewDimensionError(op, 1, yCols, 1)
	}

	data := make([][]float64, rows)
	target := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				return nil, nil, lceErrors.NewValueError(op, "X contains NaN")
			}
			row[j] = v
		}
		data[i] = row
		target[i] = y.At(i, 0)
		if math.IsNaN(target[i]) {
			return nil, nil, lceErrors.NewValueError(op, "y contains NaN")
		}
	}
	return data, target, nil
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func (p *treeParams) newBuilder(X [][]float64, crit criterion) *builder {
	return &builder{
		X:               X,
		crit:            crit,
		maxDepth:        p.maxDepth,
		minSamplesSplit: p.minSamplesSplit,
		minSamplesLeaf:  p.minSamplesLeaf,
		random:          p.splitter == "random",
		rng:             rand.New(rand.NewSource(p.randomState)),
	}
}

// applyAll は各行が到達するリーフを返す
func applyAll(s *Structure, X mat.Matrix) []int {
	rows, cols := X.Dims()
	leaves := make([]int, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		leaves[i] = s.Apply(row)
	}
	return leaves
}

// DecisionTreeClassifier is a CART classification tree.
type DecisionTreeClassifier struct {
	treeParams
	state *model.StateManager

	classes_            []float64
	nClasses_           int
	structure_          *Structure
	featureImportances_ []float64
}

// NewDecisionTreeClassifier creates a classifier with the given options.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		treeParams: defaultParams("gini"),
		state:      model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(&dt.treeParams)
	}
	return dt
}

// Fit builds the tree from the training data. Rows containing NaN are rejected.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) (err error) {
	defer lceErrors.Recover(&err, "DecisionTreeClassifier.Fit")

	if err := dt.validate("gini", "entropy"); err != nil {
		return err
	}
	data, target, err := extractXY("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}

	dt.classes_ = uniqueSorted(target)
	dt.nClasses_ = len(dt.classes_)
	labels, k := encodeLabels(target)

	var crit criterion = &giniCriterion{y: labels, k: k}
	if dt.criterion == "entropy" {
		crit = &entropyCriterion{giniCriterion{y: labels, k: k}}
	}

	b := dt.newBuilder(data, crit)
	dt.structure_ = b.build(allIndices(len(data)), len(data[0]))
	dt.featureImportances_ = b.importances

	dt.state.SetDimensions(len(data[0]), len(data))
	dt.state.SetFitted()

	log.GetLoggerWithName("tree.classifier").Debug("decision tree fitted",
		log.SamplesKey, len(data),
		log.ClassesKey, dt.nClasses_,
		log.TreeDepthKey, dt.structure_.Depth(),
		log.LeavesKey, dt.structure_.NLeaves(),
	)
	return nil
}

// PredictProba returns the class distribution of the leaf reached by each row.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	_, cols := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeClassifier", "PredictProba", cols); err != nil {
		return nil, err
	}
	leaves := applyAll(dt.structure_, X)
	out := mat.NewDense(len(leaves), dt.nClasses_, nil)
	for i, leaf := range leaves {
		out.SetRow(i, dt.structure_.Nodes[leaf].Value)
	}
	return out, nil
}

// Predict returns the most probable class label for each row.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, cols := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < cols; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, dt.classes_[best])
	}
	return out, nil
}

// Apply returns the index of the leaf reached by each row.
func (dt *DecisionTreeClassifier) Apply(X mat.Matrix) ([]int, error) {
	_, cols := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeClassifier", "Apply", cols); err != nil {
		return nil, err
	}
	return applyAll(dt.structure_, X), nil
}

// Score returns the mean accuracy on the given data, or 0 if prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	acc, err := metrics.AccuracyMatrix(y, pred)
	if err != nil {
		return 0
	}
	return acc
}

// Classes returns the sorted class labels seen during fitting.
func (dt *DecisionTreeClassifier) Classes() []float64 {
	return append([]float64(nil), dt.classes_...)
}

// Structure returns the fitted tree, or nil before Fit.
func (dt *DecisionTreeClassifier) Structure() *Structure { return dt.structure_ }

// GetFeatureImportances returns the normalised total impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	if dt.structure_ == nil {
		return 0
	}
	return dt.structure_.Depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	if dt.structure_ == nil {
		return 0
	}
	return dt.structure_.NLeaves()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} { return dt.getParams() }

// SetParams updates the hyperparameters.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	return dt.setParams(params)
}

// DecisionTreeRegressor is a CART regression tree minimising squared error.
type DecisionTreeRegressor struct {
	treeParams
	state *model.StateManager

	structure_          *Structure
	featureImportances_ []float64
}

// NewDecisionTreeRegressor creates a regressor with the given options.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		treeParams: defaultParams("squared_error"),
		state:      model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(&dt.treeParams)
	}
	return dt
}

// Fit builds the tree from the training data. Rows containing NaN are rejected.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) (err error) {
	defer lceErrors.Recover(&err, "DecisionTreeRegressor.Fit")

	if err := dt.validate("squared_error"); err != nil {
		return err
	}
	data, target, err := extractXY("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}

	b := dt.newBuilder(data, &squaredErrorCriterion{y: target})
	dt.structure_ = b.build(allIndices(len(data)), len(data[0]))
	dt.featureImportances_ = b.importances

	dt.state.SetDimensions(len(data[0]), len(data))
	dt.state.SetFitted()

	log.GetLoggerWithName("tree.regressor").Debug("decision tree fitted",
		log.SamplesKey, len(data),
		log.TreeDepthKey, dt.structure_.Depth(),
		log.LeavesKey, dt.structure_.NLeaves(),
	)
	return nil
}

// Predict returns the mean target of the leaf reached by each row.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	_, cols := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeRegressor", "Predict", cols); err != nil {
		return nil, err
	}
	leaves := applyAll(dt.structure_, X)
	out := mat.NewDense(len(leaves), 1, nil)
	for i, leaf := range leaves {
		out.Set(i, 0, dt.structure_.Nodes[leaf].Value[0])
	}
	return out, nil
}

// Apply returns the index of the leaf reached by each row.
func (dt *DecisionTreeRegressor) Apply(X mat.Matrix) ([]int, error) {
	_, cols := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeRegressor", "Apply", cols); err != nil {
		return nil, err
	}
	return applyAll(dt.structure_, X), nil
}

// Score returns the coefficient of determination R^2, or 0 if it is undefined.
func (dt *DecisionTreeRegressor) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	yVec, err := metrics.ColumnVec("DecisionTreeRegressor.Score", y)
	if err != nil {
		return 0
	}
	predVec, _ := metrics.ColumnVec("DecisionTreeRegressor.Score", pred)
	r2, err := metrics.R2Score(yVec, predVec)
	if err != nil {
		return 0
	}
	return r2
}

// Structure returns the fitted tree, or nil before Fit.
func (dt *DecisionTreeRegressor) Structure() *Structure { return dt.structure_ }

// GetFeatureImportances returns the normalised total variance reduction per feature.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeRegressor) GetDepth() int {
	if dt.structure_ == nil {
		return 0
	}
	return dt.structure_.Depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	if dt.structure_ == nil {
		return 0
	}
	return dt.structure_.NLeaves()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} { return dt.getParams() }

// SetParams updates the hyperparameters.
func (dt *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	return dt.setParams(params)
}
