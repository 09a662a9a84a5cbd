package lce

import (
	"bytes"
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/sklearn/boosting"
	"github.com/YuminosukeSato/lce/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

var backends = []boosting.Backend{boosting.XGBoost, boosting.LightGBM, boosting.CatBoost}

// classificationData returns two classes separated along features 0 and 2.
// Every cell is missing with probability missing.
func classificationData(n int, missing float64, seed uint64) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewPCG(seed, seed+1))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		c := float64(i % 2)
		X.Set(i, 0, 3*c+r.Float64())
		X.Set(i, 1, r.Float64())
		X.Set(i, 2, c+0.5*r.Float64())
		y.Set(i, 0, c)
	}
	punch(X, missing, r)
	return X, y
}

func regressionData(n int, missing float64, seed uint64) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewPCG(seed, seed+1))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := r.Float64(), r.Float64()
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		y.Set(i, 0, 4*a+b)
	}
	punch(X, missing, r)
	return X, y
}

func punch(X *mat.Dense, rate float64, r *rand.Rand) {
	if rate == 0 {
		return
	}
	rows, cols := X.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if r.Float64() < rate {
				X.Set(i, j, math.NaN())
			}
		}
	}
}

// fastOptions keeps the per-node search small.
func fastOptions(b boosting.Backend) []Option {
	opts := []Option{
		WithBaseLearner(b),
		WithNIter(2),
		WithRandomState(7),
		WithGrid("n_estimators", 5, 10),
	}
	if b == boosting.LightGBM {
		return append(opts, WithGrid("num_leaves", 4, 8), WithGrid("min_child_samples", 2))
	}
	return append(opts, WithGrid("max_depth", 2, 3))
}

func TestTreeClassifier_FitPredictWithMissingValues(t *testing.T) {
	for _, b := range backends {
		for _, rate := range []float64{0, 0.2, 0.5} {
			t.Run(b.String(), func(t *testing.T) {
				X, y := classificationData(60, rate, 1)
				clf := NewTreeClassifier(fastOptions(b)...)
				if err := clf.Fit(X, y); err != nil {
					t.Fatalf("Fit (missing=%v): %v", rate, err)
				}

				pred, err := clf.Predict(X)
				if err != nil {
					t.Fatalf("Predict: %v", err)
				}
				if r, c := pred.Dims(); r != 60 || c != 1 {
					t.Errorf("prediction shape = (%d, %d)", r, c)
				}

				proba, err := clf.PredictProba(X)
				if err != nil {
					t.Fatalf("PredictProba: %v", err)
				}
				assertProbabilities(t, proba, 2)

				if rate == 0 {
					acc, err := clf.Score(X, y)
					if err != nil {
						t.Fatalf("Score: %v", err)
					}
					if acc < 0.95 {
						t.Errorf("training accuracy = %v", acc)
					}
				}
			})
		}
	}
}

func assertProbabilities(t *testing.T, proba mat.Matrix, k int) {
	t.Helper()
	rows, cols := proba.Dims()
	if cols != k {
		t.Fatalf("got %d probability columns, want %d", cols, k)
	}
	for i := 0; i < rows; i++ {
		var sum float64
		for j := 0; j < cols; j++ {
			p := proba.At(i, j)
			if p < 0 || p > 1 {
				t.Fatalf("row %d: probability %v out of [0, 1]", i, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d: probabilities sum to %v", i, sum)
		}
	}
}

func TestTreeRegressor_FitPredictWithMissingValues(t *testing.T) {
	for _, b := range backends {
		for _, rate := range []float64{0, 0.2, 0.5} {
			t.Run(b.String(), func(t *testing.T) {
				X, y := regressionData(60, rate, 2)
				reg := NewTreeRegressor(fastOptions(b)...)
				if err := reg.Fit(X, y); err != nil {
					t.Fatalf("Fit (missing=%v): %v", rate, err)
				}
				pred, err := reg.Predict(X)
				if err != nil {
					t.Fatalf("Predict: %v", err)
				}
				if r, c := pred.Dims(); r != 60 || c != 1 {
					t.Errorf("prediction shape = (%d, %d)", r, c)
				}
				for i := 0; i < 60; i++ {
					if math.IsNaN(pred.At(i, 0)) {
						t.Fatalf("row %d: NaN prediction", i)
					}
				}
			})
		}
	}
}

// stepData has a single positive target at the end, so most cross-validation
// folds see a constant target.
func stepData(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
	}
	y.Set(n-1, 0, 1)
	return X, y
}

func TestTreeRegressor_EveryMetric(t *testing.T) {
	metrics := []string{
		"neg_mean_squared_error",
		"neg_mean_absolute_error",
		"neg_mean_absolute_percentage_error",
		"r2",
		"explained_variance",
	}
	for _, metric := range metrics {
		t.Run(metric, func(t *testing.T) {
			X, y := regressionData(50, 0.2, 6)
			reg := NewTreeRegressor(append(fastOptions(boosting.XGBoost), WithMetric(metric))...)
			if err := reg.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if _, err := reg.Score(X, y); err != nil {
				t.Errorf("Score: %v", err)
			}

			Xs, ys := stepData(30)
			step := NewTreeRegressor(WithMetric(metric), WithNIter(2), WithRandomState(1))
			if err := step.Fit(Xs, ys); err != nil {
				t.Fatalf("Fit on a step target: %v", err)
			}
		})
	}
}

func TestTreeClassifier_Multiclass(t *testing.T) {
	n := 90
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		c := i % 3
		X.Set(i, 0, float64(c*10)+float64(i%5))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(c+1)*10) // labels 10, 20, 30
	}

	clf := NewTreeClassifier(fastOptions(boosting.XGBoost)...)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	classes := clf.Classes()
	if len(classes) != 3 || classes[0] != 10 || classes[2] != 30 {
		t.Errorf("Classes() = %v", classes)
	}
	proba, err := clf.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	assertProbabilities(t, proba, 3)

	acc, _ := clf.Score(X, y)
	if acc < 0.95 {
		t.Errorf("accuracy = %v", acc)
	}
}

func TestTreeClassifier_PureData(t *testing.T) {
	X := mat.NewDense(10, 2, nil)
	y := mat.NewDense(10, 1, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%3))
		y.Set(i, 0, 4)
	}

	clf := NewTreeClassifier(fastOptions(boosting.XGBoost)...)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	root := clf.Root()
	if root.Model != nil {
		t.Error("pure root must not train a base learner")
	}
	if !root.IsLeaf() || clf.NLeaves() != 1 || clf.Depth() != 0 {
		t.Errorf("pure data grew a tree: leaves=%d depth=%d", clf.NLeaves(), clf.Depth())
	}
	pred, _ := clf.Predict(X)
	for i := 0; i < 10; i++ {
		if pred.At(i, 0) != 4 {
			t.Fatalf("row %d: prediction %v, want 4", i, pred.At(i, 0))
		}
	}
}

func TestTreeRegressor_PureData(t *testing.T) {
	X, _ := regressionData(8, 0, 3)
	y := mat.NewDense(8, 1, []float64{2.5, 2.5, 2.5, 2.5, 2.5, 2.5, 2.5, 2.5})

	reg := NewTreeRegressor(fastOptions(boosting.CatBoost)...)
	if err := reg.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if reg.Root().Model != nil {
		t.Error("constant target must not train a base learner")
	}
	pred, _ := reg.Predict(X)
	for i := 0; i < 8; i++ {
		if pred.At(i, 0) != 2.5 {
			t.Fatalf("row %d: prediction %v, want 2.5", i, pred.At(i, 0))
		}
	}
}

func TestTree_MaxDepthZeroPredictsThroughBaseLearner(t *testing.T) {
	X, y := classificationData(40, 0.1, 4)
	clf := NewTreeClassifier(append(fastOptions(boosting.XGBoost), WithMaxDepth(0))...)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if clf.NLeaves() != 1 {
		t.Fatalf("max_depth=0 grew %d leaves", clf.NLeaves())
	}
	if n := len(clf.Root().SearchScores); n != 2 {
		t.Errorf("root recorded %d search scores, want one per trial (2)", n)
	}
	want, err := clf.Root().Model.Transform(X)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	got, _ := clf.PredictProba(X)
	if !mat.EqualApprox(got, want, 1e-12) {
		t.Error("single-node probabilities differ from the base learner's")
	}

	Xr, yr := regressionData(40, 0, 5)
	reg := NewTreeRegressor(append(fastOptions(boosting.LightGBM), WithMaxDepth(0))...)
	if err := reg.Fit(Xr, yr); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	wantR, _ := reg.Root().Model.Transform(Xr)
	gotR, _ := reg.Predict(Xr)
	if !mat.EqualApprox(gotR, wantR, 1e-12) {
		t.Error("single-node predictions differ from the base learner's")
	}
}

// missingData puts class 1 at large x0; half of the class 1 rows have x0 missing.
func missingData() (*mat.Dense, *mat.Dense) {
	n := 80
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		c := i % 2
		X.Set(i, 0, float64(c*5)+float64(i%10)*0.05)
		X.Set(i, 1, float64(i%7))
		if c == 1 && i%4 == 1 {
			X.Set(i, 0, math.NaN())
		}
		y.Set(i, 0, float64(c))
	}
	return X, y
}

func TestTreeClassifier_MissingRowsFollowMemorisedSide(t *testing.T) {
	X, y := missingData()
	clf := NewTreeClassifier(append(fastOptions(boosting.XGBoost), WithMaxDepth(1))...)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	root := clf.Root()
	if root.IsLeaf() {
		t.Fatal("root was not split")
	}

	missingChild := root.Left
	if root.MissingSide == Right {
		missingChild = root.Right
	}
	if len(missingChild.Classes) != 1 || missingChild.Classes[0] != 1 {
		t.Errorf("missing rows were routed to a child with classes %v", missingChild.Classes)
	}

	row := mat.NewDense(1, 2, []float64{math.NaN(), 3})
	pred, err := clf.Predict(row)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.At(0, 0) != 1 {
		t.Errorf("missing row predicted %v, want 1", pred.At(0, 0))
	}
}

func TestNode_RouteUsesMissingSide(t *testing.T) {
	stump := &tree.Structure{
		Nodes: []tree.Node{
			{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
			{Feature: -1},
			{Feature: -1},
		},
		NFeatures: 2,
	}
	left := &Node{Value: 0, Depth: 1}
	right := &Node{Value: 1, Depth: 1}
	root := &Node{Split: stump, Left: left, Right: right}

	tests := []struct {
		name string
		side Side
		row  []float64
		want *Node
	}{
		{"observed left", Right, []float64{0.2, 1}, left},
		{"observed right", Left, []float64{0.9, 1}, right},
		{"missing to right", Right, []float64{math.NaN(), 1}, right},
		{"missing to left", Left, []float64{0.9, math.NaN()}, left},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root.MissingSide = tt.side
			leaf, out, err := root.route(tt.row)
			if err != nil {
				t.Fatalf("route: %v", err)
			}
			if leaf != tt.want {
				t.Errorf("row %v reached the wrong leaf", tt.row)
			}
			if out != nil {
				t.Errorf("pure leaf returned model output %v", out)
			}
		})
	}
}

func TestBuilder_MissingSide(t *testing.T) {
	tests := []struct {
		name           string
		classification bool
		y              []float64
		left, right    []int
		missing        []int
		want           Side
	}{
		{"tie goes left", true, []float64{0, 0, 1, 1, 0, 1}, []int{0, 1}, []int{2, 3}, []int{4, 5}, Left},
		{"class of the right child", true, []float64{0, 0, 1, 1, 1}, []int{0, 1}, []int{2, 3}, []int{4}, Right},
		{"class of the left child", true, []float64{0, 0, 1, 1, 0}, []int{0, 1}, []int{2, 3}, []int{4}, Left},
		{"regression high target", false, []float64{0, 0, 10, 10, 10}, []int{0, 1}, []int{2, 3}, []int{4}, Right},
		{"regression low target", false, []float64{0, 0, 10, 10, 0}, []int{0, 1}, []int{2, 3}, []int{4}, Left},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &builder{params: defaultParams(tt.classification), classification: tt.classification}
			got, err := b.missingSide(tt.y, tt.left, tt.right, tt.missing)
			if err != nil {
				t.Fatalf("missingSide: %v", err)
			}
			if got != tt.want {
				t.Errorf("missing rows go %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTree_NodeDataReleasedAfterSplit(t *testing.T) {
	X, y := classificationData(60, 0, 6)
	clf := NewTreeClassifier(append(fastOptions(boosting.XGBoost), WithMinSamplesLeaf(1))...)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if clf.Root().IsLeaf() {
		t.Fatal("root was not split")
	}

	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			if n.x == nil || len(n.y) != n.NSamples {
				t.Errorf("leaf at depth %d lost its data", n.Depth)
			}
			return
		}
		if n.x != nil || n.y != nil {
			t.Errorf("split node at depth %d still holds %d rows", n.Depth, len(n.y))
		}
		if n.Left.NSamples+n.Right.NSamples != n.NSamples {
			t.Errorf("children hold %d+%d rows, parent %d", n.Left.NSamples, n.Right.NSamples, n.NSamples)
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(clf.Root())
}

func TestTree_MinSamplesLeafRejectsSplit(t *testing.T) {
	X, y := classificationData(20, 0, 8)
	clf := NewTreeClassifier(append(fastOptions(boosting.XGBoost), WithMinSamplesLeaf(15))...)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !clf.Root().IsLeaf() {
		t.Error("a split with children below min_samples_leaf was kept")
	}
	if clf.Root().Model == nil {
		t.Error("impure leaf must keep its base learner")
	}
}

func TestTree_InvalidParams(t *testing.T) {
	X, y := classificationData(20, 0, 9)
	tests := []struct {
		name string
		opt  Option
	}{
		{"negative max_depth", WithMaxDepth(-1)},
		{"zero min_samples_leaf", WithMinSamplesLeaf(0)},
		{"zero n_iter", WithNIter(0)},
		{"negative verbose", WithVerbose(-1)},
		{"unknown criterion", WithCriterion("squared_error")},
		{"unknown splitter", WithSplitter("middle")},
		{"unknown metric", WithMetric("r2")},
		{"unknown base learner", WithBaseLearner(boosting.Backend(7))},
		{"empty grid", WithGrid("max_depth")},
		{"grid value out of range", WithGrid("learning_rate", 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTreeClassifier(tt.opt).Fit(X, y)
			var ve *lceErrors.ValidationError
			if !lceErrors.As(err, &ve) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}

	Xr, yr := regressionData(20, 0, 9)
	err := NewTreeRegressor(WithCriterion("gini")).Fit(Xr, yr)
	var ve *lceErrors.ValidationError
	if !lceErrors.As(err, &ve) {
		t.Errorf("regressor with gini: err = %v, want ValidationError", err)
	}

	Xm := mat.NewDense(3, 1, []float64{1, 2, 3})
	ym := mat.NewDense(3, 1, []float64{0, 1, 2})
	err = NewTreeClassifier(WithMetric("roc_auc")).Fit(Xm, ym)
	if !lceErrors.As(err, &ve) {
		t.Errorf("roc_auc on three classes: err = %v, want ValidationError", err)
	}
}

func TestTree_InputErrors(t *testing.T) {
	X, y := classificationData(20, 0, 10)
	clf := NewTreeClassifier(fastOptions(boosting.XGBoost)...)

	var notFitted *lceErrors.NotFittedError
	if _, err := clf.Predict(X); !lceErrors.As(err, &notFitted) {
		t.Errorf("predict before fit: err = %v, want NotFittedError", err)
	}

	var valueErr *lceErrors.ValueError
	if err := clf.Fit(&mat.Dense{}, y); !lceErrors.As(err, &valueErr) {
		t.Errorf("empty X: err = %v, want ValueError", err)
	}

	var dimErr *lceErrors.DimensionError
	if err := clf.Fit(X, mat.NewDense(5, 1, nil)); !lceErrors.As(err, &dimErr) {
		t.Errorf("row mismatch: err = %v, want DimensionError", err)
	}

	yNaN := mat.DenseCopyOf(y)
	yNaN.Set(3, 0, math.NaN())
	if err := clf.Fit(X, yNaN); !lceErrors.As(err, &valueErr) {
		t.Errorf("NaN target: err = %v, want ValueError", err)
	}

	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := clf.Predict(mat.NewDense(2, 5, nil)); !lceErrors.As(err, &dimErr) {
		t.Errorf("wrong column count: err = %v, want DimensionError", err)
	}
}

func TestTree_SaveLoadRoundTrip(t *testing.T) {
	X, y := classificationData(50, 0.2, 11)
	clf := NewTreeClassifier(fastOptions(boosting.CatBoost)...)
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	var buf bytes.Buffer
	if err := clf.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	restored := NewTreeClassifier()
	if err := restored.Load(&buf); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want, _ := clf.PredictProba(X)
	got, err := restored.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba after Load: %v", err)
	}
	if !mat.Equal(got, want) {
		t.Error("restored classifier predicts differently")
	}
	if restored.GetParams()["base_learner"] != "catboost" {
		t.Errorf("params were not restored: %v", restored.GetParams())
	}

	Xr, yr := regressionData(50, 0.2, 12)
	reg := NewTreeRegressor(fastOptions(boosting.LightGBM)...)
	if err := reg.Fit(Xr, yr); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	buf.Reset()
	if err := reg.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	restoredReg := NewTreeRegressor()
	if err := restoredReg.Load(&buf); err != nil {
		t.Fatalf("Load: %v", err)
	}
	wantR, _ := reg.Predict(Xr)
	gotR, _ := restoredReg.Predict(Xr)
	if !mat.Equal(gotR, wantR) {
		t.Error("restored regressor predicts differently")
	}
}

func TestTree_DeterministicForSeed(t *testing.T) {
	X, y := regressionData(50, 0.2, 13)
	fit := func() mat.Matrix {
		reg := NewTreeRegressor(append(fastOptions(boosting.XGBoost), WithSplitter("random"))...)
		if err := reg.Fit(X, y); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		pred, _ := reg.Predict(X)
		return pred
	}
	if !mat.Equal(fit(), fit()) {
		t.Error("two fits with the same random_state differ")
	}
}

func TestTree_Cancelled(t *testing.T) {
	X, y := classificationData(20, 0, 14)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewTreeClassifier(fastOptions(boosting.XGBoost)...).FitContext(ctx, X, y)
	if !lceErrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTree_GetSetParams(t *testing.T) {
	clf := NewTreeClassifier()
	params := clf.GetParams()
	if params["max_depth"] != 2 || params["min_samples_leaf"] != 5 || params["n_iter"] != 10 {
		t.Errorf("unexpected defaults: %v", params)
	}
	if params["criterion"] != "gini" || params["metric"] != "accuracy" || params["base_learner"] != "xgboost" {
		t.Errorf("unexpected defaults: %v", params)
	}
	if _, ok := params["n_estimators"]; ok {
		t.Error("tree params must not contain ensemble keys")
	}

	err := clf.SetParams(map[string]interface{}{
		"max_depth":    3,
		"base_learner": "lightgbm",
		"search_space": map[string][]float64{"num_leaves": {4, 8}},
	})
	if err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if clf.Params.MaxDepth != 3 || clf.Params.BaseLearner != boosting.LightGBM {
		t.Errorf("params not applied: %+v", clf.Params)
	}
	if len(clf.Params.Grids["num_leaves"]) != 2 {
		t.Errorf("grid override not applied: %v", clf.Params.Grids)
	}

	if err := clf.SetParams(map[string]interface{}{"n_estimators": 5}); err == nil {
		t.Error("tree accepted an ensemble parameter")
	}
	if err := clf.SetParams(map[string]interface{}{"max_depth": "deep"}); err == nil {
		t.Error("non-integer max_depth accepted")
	}
}

func TestTree_ExportDOT(t *testing.T) {
	X, y := classificationData(60, 0, 15)
	clf := NewTreeClassifier(append(fastOptions(boosting.XGBoost), WithMinSamplesLeaf(1))...)
	if _, err := clf.ExportDOT(); err == nil {
		t.Error("ExportDOT before Fit should fail")
	}
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	dot, err := clf.ExportDOT()
	if err != nil {
		t.Fatalf("ExportDOT: %v", err)
	}
	for _, want := range []string{"digraph LCE", "n0 -> n1", "missing", "xgboost", "top x["} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output lacks %q:\n%s", want, dot)
		}
	}
}
