// Package lce is a Go implementation of the Local Cascade Ensemble (LCE):
// decision trees whose every node fits a gradient boosting model, appends
// that model's outputs to the node's features and then splits on the
// augmented matrix with a one-level CART stump.
//
// The estimators follow a scikit-learn-like API over gonum matrices and
// accept NaN in any feature cell: boosting models learn a default direction
// for missing values and every LCE node remembers which child receives rows
// that still hold a missing value.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//	    "math"
//
//	    "github.com/YuminosukeSato/lce/sklearn/boosting"
//	    "github.com/YuminosukeSato/lce/sklearn/lce"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(6, 2, []float64{
//	        0.1, 1, 0.2, math.NaN(), 0.3, 1,
//	        2.1, 0, math.NaN(), 0, 2.3, 1,
//	    })
//	    y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
//
//	    clf := lce.NewTreeClassifier(
//	        lce.WithBaseLearner(boosting.LightGBM),
//	        lce.WithMinSamplesLeaf(1),
//	    )
//	    if err := clf.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//	    pred, _ := clf.Predict(X)
//	    fmt.Println(mat.Formatted(pred))
//	}
//
// # Packages
//
//   - sklearn/lce: TreeClassifier, TreeRegressor and the bagged Classifier/Regressor
//   - sklearn/boosting: xgboost-, lightgbm- and catboost-style gradient boosting base learners
//   - sklearn/tree: CART decision trees (the node routers)
//   - sklearn/model_selection: k-fold splitters and the greedy hyperparameter search
//   - metrics: regression and classification metrics
//   - viz: search history plots and tree diagrams
//   - core/model, core/parallel: estimator state, persistence and worker helpers
//   - pkg/errors, pkg/log: structured errors and logging
//
// The lce command (cmd/lce) fits, scores and exports models from CSV files.
package lce
