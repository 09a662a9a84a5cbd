package lce

import (
	"context"
	"math"
	"sort"

	"github.com/YuminosukeSato/lce/core/model"
	"github.com/YuminosukeSato/lce/core/parallel"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/pkg/log"
	"github.com/YuminosukeSato/lce/sklearn/boosting"
	"github.com/YuminosukeSato/lce/sklearn/model_selection"
	"github.com/YuminosukeSato/lce/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// Side names the child that absorbs rows with missing values.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Node is one node of an LCE tree. Children are owned by their parent.
type Node struct {
	// Model is the base learner fitted on the node's rows; nil when the
	// node's labels are pure.
	Model *boosting.Model
	// SearchScores holds the cross-validated score of every search trial
	// that selected Model, in draw order. Failed trials are NaN.
	SearchScores []float64
	// Classes are the indices into the estimator's class list observed at
	// the node. Empty for regression.
	Classes []int
	// Value is the class index (classifier) or target value (regressor) of
	// a pure node.
	Value float64

	// Split is the depth-1 router fitted on the augmented rows; nil for leaves.
	Split       *tree.Structure
	MissingSide Side
	Left, Right *Node

	Depth    int
	NSamples int

	// node data, dropped once the node has been split
	x [][]float64
	y []float64
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Split == nil
}

func (n *Node) maxDepth() int {
	if n.IsLeaf() {
		return n.Depth
	}
	return max(n.Left.maxDepth(), n.Right.maxDepth())
}

func (n *Node) nLeaves() int {
	if n.IsLeaf() {
		return 1
	}
	return n.Left.nLeaves() + n.Right.nLeaves()
}

// route walks row down to a leaf, appending every model output on the way.
// It returns the leaf and the output of the leaf's model (nil for a pure leaf).
func (n *Node) route(row []float64) (*Node, []float64, error) {
	node := n
	for {
		var out []float64
		if node.Model != nil {
			pred, err := node.Model.Transform(mat.NewDense(1, len(row), row))
			if err != nil {
				return nil, nil, err
			}
			out = pred.RawRowView(0)
			row = append(row[:len(row):len(row)], out...)
		}
		if node.IsLeaf() {
			return node, out, nil
		}

		var goLeft bool
		if hasNaN(row) {
			goLeft = node.MissingSide == Left
		} else {
			goLeft = node.Split.GoesLeft(row)
		}
		if goLeft {
			node = node.Left
		} else {
			node = node.Right
		}
	}
}

// builder grows an LCE tree top-down.
type builder struct {
	ctx            context.Context
	params         Params
	space          model_selection.SearchSpace
	classification bool
	logger         log.Logger
}

func newBuilder(ctx context.Context, params Params, classification bool, name string) *builder {
	return &builder{
		ctx:            ctx,
		params:         params,
		space:          params.searchSpace(),
		classification: classification,
		logger:         log.GetLoggerWithName("lce.tree").With(log.ModelNameKey, name),
	}
}

// grow builds the tree from the root. Construction goes through the
// parallel map helper as a single task.
func (b *builder) grow(x [][]float64, y []float64) (*Node, error) {
	var root *Node
	err := parallel.Map(1, 1, func(int) error {
		var err error
		root, err = b.build(x, y, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (b *builder) build(x [][]float64, y []float64, depth int) (*Node, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, lceErrors.Wrap(err, "lce tree construction cancelled")
	}

	node := &Node{Depth: depth, NSamples: len(y), x: x, y: y}
	labels := uniqueSorted(y)
	if b.classification {
		node.Classes = make([]int, len(labels))
		for i, c := range labels {
			node.Classes[i] = int(c)
		}
	}
	if len(labels) == 1 {
		node.Value = labels[0]
		b.logger.Debug("pure node", log.NodeDepthKey, depth, log.SamplesKey, len(y))
		return node, nil
	}

	m, scores, err := b.fitModel(x, y, depth)
	if err != nil {
		return nil, err
	}
	node.Model = m
	node.SearchScores = scores
	if node.x, err = augment(m, x); err != nil {
		return nil, err
	}

	if depth >= b.params.MaxDepth {
		return node, nil
	}
	if err := b.split(node); err != nil {
		return nil, err
	}
	return node, nil
}

// fitModel trains the node's base learner through the hyperparameter search.
func (b *builder) fitModel(x [][]float64, y []float64, depth int) (*boosting.Model, []float64, error) {
	backend := b.params.BaseLearner
	factory := func(params map[string]interface{}) (model.Estimator, error) {
		p := boosting.DefaultParams(backend)
		p.Seed = b.params.RandomState
		if err := p.SetParams(params); err != nil {
			return nil, err
		}
		if b.classification {
			return boosting.NewClassifier(backend, p), nil
		}
		return boosting.NewRegressor(backend, p), nil
	}

	search := &model_selection.Search{
		Space:          b.space,
		NIter:          b.params.NIter,
		Metric:         b.params.Metric,
		Classification: b.classification,
		Seed:           b.params.RandomState,
		Verbose:        b.params.Verbose - 1,
		Name:           "lce node base learner",
	}
	res, err := search.Run(b.ctx, factory, toDense(x), mat.NewDense(len(y), 1, append([]float64(nil), y...)))
	if err != nil {
		return nil, nil, lceErrors.Wrapf(err, "base learner search at depth %d", depth)
	}

	fields := []any{
		log.NodeDepthKey, depth,
		log.SamplesKey, len(y),
		log.BaseLearnerKey, backend.String(),
		log.ScoreKey, res.BestScore,
		log.HyperParamsKey, res.BestParams,
	}
	if b.params.Verbose > 0 {
		b.logger.Info("node base learner fitted", fields...)
	} else {
		b.logger.Debug("node base learner fitted", fields...)
	}

	fitted, ok := res.BestEstimator.(interface{ Model() *boosting.Model })
	if !ok {
		return nil, nil, lceErrors.NewModelError("lce.fitModel", "search", lceErrors.New("estimator does not expose its model"))
	}
	scores := make([]float64, len(res.Trials))
	for i, tr := range res.Trials {
		scores[i] = tr.Score
	}
	return fitted.Model(), scores, nil
}

// split fits the router on the fully observed augmented rows, routes the
// missing rows to the better side and grows both children. A node whose
// split is rejected stays a leaf.
func (b *builder) split(node *Node) error {
	x, y := node.x, node.y

	var observed, missing []int
	for i, row := range x {
		if hasNaN(row) {
			missing = append(missing, i)
		} else {
			observed = append(observed, i)
		}
	}
	if len(observed) < 2 || len(uniqueSorted(pick(y, observed))) < 2 {
		return nil
	}

	stump, err := b.fitRouter(x, y, observed)
	if err != nil {
		return err
	}
	if stump.NLeaves() < 2 {
		b.logger.Debug("router found no split", log.NodeDepthKey, node.Depth)
		return nil
	}

	var left, right []int
	for _, i := range observed {
		if stump.GoesLeft(x[i]) {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	side := Left
	if len(missing) > 0 {
		if side, err = b.missingSide(y, left, right, missing); err != nil {
			return err
		}
		if side == Left {
			left = append(left, missing...)
		} else {
			right = append(right, missing...)
		}
	}
	if len(left) < b.params.MinSamplesLeaf || len(right) < b.params.MinSamplesLeaf {
		b.logger.Debug("split rejected by min_samples_leaf",
			log.NodeDepthKey, node.Depth,
			log.LeftSamplesKey, len(left),
			log.RightSamplesKey, len(right),
		)
		return nil
	}

	node.Split = stump
	node.MissingSide = side
	b.logger.Debug("node split",
		log.NodeDepthKey, node.Depth,
		log.SplitFeatureKey, stump.Nodes[0].Feature,
		log.LeftSamplesKey, len(left),
		log.RightSamplesKey, len(right),
		log.MissingSideKey, side.String(),
	)

	lx, ly := pickRows(x, left), pick(y, left)
	rx, ry := pickRows(x, right), pick(y, right)
	node.x, node.y = nil, nil

	if node.Left, err = b.build(lx, ly, node.Depth+1); err != nil {
		return err
	}
	if node.Right, err = b.build(rx, ry, node.Depth+1); err != nil {
		return err
	}
	return nil
}

func (b *builder) fitRouter(x [][]float64, y []float64, rows []int) (*tree.Structure, error) {
	X := toDense(pickRows(x, rows))
	Y := mat.NewDense(len(rows), 1, pick(y, rows))
	opts := []tree.Option{
		tree.WithMaxDepth(1),
		tree.WithCriterion(b.params.Criterion),
		tree.WithSplitter(b.params.Splitter),
		tree.WithRandomState(b.params.RandomState),
	}
	if b.classification {
		dt := tree.NewDecisionTreeClassifier(opts...)
		if err := dt.Fit(X, Y); err != nil {
			return nil, err
		}
		return dt.Structure(), nil
	}
	dt := tree.NewDecisionTreeRegressor(opts...)
	if err := dt.Fit(X, Y); err != nil {
		return nil, err
	}
	return dt.Structure(), nil
}

// missingSide scores the partition with the missing rows on each side and
// returns the better one; ties go left.
func (b *builder) missingSide(y []float64, left, right, missing []int) (Side, error) {
	yl, yr, ym := pick(y, left), pick(y, right), pick(y, missing)

	scoreLeft, err := tree.ImpurityDecrease(b.params.Criterion, append(append([]float64(nil), yl...), ym...), yr)
	if err != nil {
		return Left, err
	}
	scoreRight, err := tree.ImpurityDecrease(b.params.Criterion, yl, append(append([]float64(nil), yr...), ym...))
	if err != nil {
		return Left, err
	}
	if scoreRight > scoreLeft {
		return Right, nil
	}
	return Left, nil
}

// augment appends the model outputs to every row.
func augment(m *boosting.Model, x [][]float64) ([][]float64, error) {
	out, err := m.Transform(toDense(x))
	if err != nil {
		return nil, err
	}
	_, width := out.Dims()
	aug := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(row), len(row)+width)
		copy(r, row)
		aug[i] = append(r, out.RawRowView(i)...)
	}
	return aug, nil
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func pick(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

func pickRows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

func toDense(x [][]float64) *mat.Dense {
	cols := len(x[0])
	data := make([]float64, 0, len(x)*cols)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(len(x), cols, data)
}

func uniqueSorted(y []float64) []float64 {
	seen := make(map[float64]struct{}, 8)
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
