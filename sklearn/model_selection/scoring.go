package model_selection

import (
	"github.com/YuminosukeSato/lce/core/model"
	"github.com/YuminosukeSato/lce/metrics"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Scorer evaluates a fitted estimator; greater is better.
type Scorer func(est model.Estimator, X, y mat.Matrix) (float64, error)

// probabilistic is implemented by classifiers exposing class probabilities.
type probabilistic interface {
	PredictProba(X mat.Matrix) (mat.Matrix, error)
	Classes() []float64
}

var classificationScorers = map[string]Scorer{
	"accuracy":     accuracyScorer,
	"neg_log_loss": negLogLossScorer,
	"roc_auc":      rocAUCScorer,
}

var regressionScorers = map[string]Scorer{
	"neg_mean_squared_error":  negMSEScorer,
	"neg_mean_absolute_error": negMAEScorer,
	"r2":                      r2Scorer,

	"neg_mean_absolute_percentage_error": negMAPEScorer,
	"explained_variance":                 explainedVarianceScorer,
}

// DefaultMetric returns the default metric of an estimator kind.
func DefaultMetric(classification bool) string {
	if classification {
		return "accuracy"
	}
	return "neg_mean_squared_error"
}

// GetScorer returns the scorer registered under name for the estimator kind.
func GetScorer(name string, classification bool) (Scorer, error) {
	scorers := regressionScorers
	allowed := "neg_mean_squared_error, neg_mean_absolute_error, neg_mean_absolute_percentage_error, r2 or explained_variance"
	if classification {
		scorers = classificationScorers
		allowed = "accuracy, neg_log_loss or roc_auc"
	}
	s, ok := scorers[name]
	if !ok {
		return nil, lceErrors.NewValidationError("metric", "must be one of "+allowed, name)
	}
	return s, nil
}

func predictPair(op string, est model.Estimator, X, y mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	pred, err := est.Predict(X)
	if err != nil {
		return nil, nil, err
	}
	yVec, err := metrics.ColumnVec(op, y)
	if err != nil {
		return nil, nil, err
	}
	pVec, err := metrics.ColumnVec(op, pred)
	if err != nil {
		return nil, nil, err
	}
	return yVec, pVec, nil
}

func accuracyScorer(est model.Estimator, X, y mat.Matrix) (float64, error) {
	yVec, pVec, err := predictPair("accuracy", est, X, y)
	if err != nil {
		return 0, err
	}
	return metrics.Accuracy(yVec, pVec)
}

func negLogLossScorer(est model.Estimator, X, y mat.Matrix) (float64, error) {
	p, ok := est.(probabilistic)
	if !ok {
		return 0, lceErrors.NewValueError("neg_log_loss", "estimator does not predict probabilities")
	}
	proba, err := p.PredictProba(X)
	if err != nil {
		return 0, err
	}
	yVec, err := metrics.ColumnVec("neg_log_loss", y)
	if err != nil {
		return 0, err
	}
	loss, err := metrics.LogLoss(yVec, proba, p.Classes())
	if err != nil {
		return 0, err
	}
	return -loss, nil
}

func rocAUCScorer(est model.Estimator, X, y mat.Matrix) (float64, error) {
	p, ok := est.(probabilistic)
	if !ok {
		return 0, lceErrors.NewValueError("roc_auc", "estimator does not predict probabilities")
	}
	classes := p.Classes()
	if len(classes) != 2 {
		return 0, lceErrors.NewValueError("roc_auc", "only binary classification is supported")
	}
	proba, err := p.PredictProba(X)
	if err != nil {
		return 0, err
	}
	rows, _ := y.Dims()
	yBin := mat.NewVecDense(rows, nil)
	score := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		if y.At(i, 0) == classes[1] {
			yBin.SetVec(i, 1)
		}
		score.SetVec(i, proba.At(i, 1))
	}
	return metrics.AUC(yBin, score)
}

func negMSEScorer(est model.Estimator, X, y mat.Matrix) (float64, error) {
	yVec, pVec, err := predictPair("neg_mean_squared_error", est, X, y)
	if err != nil {
		return 0, err
	}
	mse, err := metrics.MSE(yVec, pVec)
	return -mse, err
}

func negMAEScorer(est model.Estimator, X, y mat.Matrix) (float64, error) {
	yVec, pVec, err := predictPair("neg_mean_absolute_error", est, X, y)
	if err != nil {
		return 0, err
	}
	mae, err := metrics.MAE(yVec, pVec)
	return -mae, err
}

func r2Scorer(est model.Estimator, X, y mat.Matrix) (float64, error) {
	yVec, pVec, err := predictPair("r2", est, X, y)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(yVec, pVec)
}

func negMAPEScorer(est model.Estimator, X, y mat.Matrix) (float64, error) {
	yVec, pVec, err := predictPair("neg_mean_absolute_percentage_error", est, X, y)
	if err != nil {
		return 0, err
	}
	mape, err := metrics.MAPE(yVec, pVec)
	return -mape, err
}

func explainedVarianceScorer(est model.Estimator, X, y mat.Matrix) (float64, error) {
	yVec, pVec, err := predictPair("explained_variance", est, X, y)
	if err != nil {
		return 0, err
	}
	return metrics.ExplainedVarianceScore(yVec, pVec)
}
