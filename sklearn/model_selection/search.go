package model_selection

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/YuminosukeSato/lce/core/model"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Factory builds an unfitted estimator configured with params.
type Factory func(params map[string]interface{}) (model.Estimator, error)

// Trial records one evaluated configuration.
type Trial struct {
	Index  int
	Params map[string]interface{}
	Score  float64 // NaN when the trial failed
	Failed bool
}

// Result is the outcome of a search.
type Result struct {
	BestParams    map[string]interface{}
	BestScore     float64
	BestIndex     int
	BestEstimator model.Estimator // refitted on all data
	Trials        []Trial
}

// Search is a greedy random search over discrete grids: NIter configurations
// are drawn, each is scored by k-fold cross-validation, and the best one seen
// so far is kept. The best configuration is refitted on the full data.
type Search struct {
	Space          SearchSpace
	NIter          int
	Metric         string
	Classification bool
	MaxFolds       int // upper bound on k; 3 when zero
	Seed           int64
	Verbose        int
	Name           string // estimator name used in warnings and logs
}

// Run executes the search. The context is checked between trials.
func (s *Search) Run(ctx context.Context, factory Factory, X, y mat.Matrix) (*Result, error) {
	if s.NIter < 1 {
		return nil, lceErrors.NewValidationError("n_iter", "must be >= 1", s.NIter)
	}
	if len(s.Space) == 0 {
		return nil, lceErrors.NewValidationError("search_space", "must contain at least one grid", 0)
	}
	metric := s.Metric
	if metric == "" {
		metric = DefaultMetric(s.Classification)
	}
	scorer, err := GetScorer(metric, s.Classification)
	if err != nil {
		return nil, err
	}

	folds := s.folds(X, y)
	logger := log.GetLoggerWithName("model_selection.search")
	rng := rand.New(rand.NewPCG(uint64(s.Seed), uint64(s.Seed)^0x9e3779b97f4a7c15))

	res := &Result{BestScore: math.Inf(-1), BestIndex: -1}
	var lastErr error
	for i := 0; i < s.NIter; i++ {
		if err := ctx.Err(); err != nil {
			return nil, lceErrors.Wrap(err, "search cancelled")
		}

		params := s.Space.Draw(rng)
		start := time.Now()
		score, err := s.evaluate(factory, params, scorer, folds, X, y)
		if err == nil && math.IsNaN(score) {
			err = lceErrors.NewValueError("search", "score is NaN")
		}

		trial := Trial{Index: i, Params: params, Score: score}
		if err != nil {
			trial.Score = math.NaN()
			trial.Failed = true
			lastErr = err
			lceErrors.Warn(lceErrors.NewFitFailedWarning(s.Name, i, err))
			res.Trials = append(res.Trials, trial)
			continue
		}
		res.Trials = append(res.Trials, trial)

		if score > res.BestScore {
			res.BestScore = score
			res.BestParams = params
			res.BestIndex = i
		}

		fields := []any{
			log.IterationKey, i,
			log.ScoreKey, score,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		}
		if s.Verbose > 0 {
			logger.Info("trial evaluated", fields...)
		} else {
			logger.Debug("trial evaluated", fields...)
		}
	}

	if res.BestIndex < 0 {
		if lastErr == nil {
			lastErr = lceErrors.ErrSearchExhausted
		}
		return nil, lceErrors.Wrapf(lceErrors.ErrSearchExhausted, "%s: %v", s.Name, lastErr)
	}

	best, err := factory(res.BestParams)
	if err != nil {
		return nil, err
	}
	if err := best.Fit(X, y); err != nil {
		return nil, lceErrors.Wrap(err, "refit of the best configuration failed")
	}
	res.BestEstimator = best
	return res, nil
}

// folds returns the cross-validation folds, or nil when fewer than two folds
// are possible and the search falls back to the training score.
func (s *Search) folds(X, y mat.Matrix) []CVFold {
	maxFolds := s.MaxFolds
	if maxFolds <= 0 {
		maxFolds = 3
	}
	n, _ := X.Dims()

	k := maxFolds
	if s.Classification {
		counts := make(map[float64]int)
		for i := 0; i < n; i++ {
			counts[y.At(i, 0)]++
		}
		for _, c := range counts {
			if c < k {
				k = c
			}
		}
		if k < 2 {
			return nil
		}
		return NewStratifiedKFold(k, true, s.Seed).Split(X, y)
	}

	if n < k {
		k = n
	}
	if k < 2 {
		return nil
	}
	return NewKFold(k, true, s.Seed).Split(X, y)
}

func (s *Search) evaluate(factory Factory, params map[string]interface{}, scorer Scorer, folds []CVFold, X, y mat.Matrix) (score float64, err error) {
	defer lceErrors.Recover(&err, "search trial")

	if folds == nil {
		est, err := factory(params)
		if err != nil {
			return 0, err
		}
		if err := est.Fit(X, y); err != nil {
			return 0, err
		}
		return scorer(est, X, y)
	}

	var total float64
	for _, fold := range folds {
		est, err := factory(params)
		if err != nil {
			return 0, err
		}
		XTrain, yTrain := Subset(X, y, fold.TrainIndices)
		XTest, yTest := Subset(X, y, fold.TestIndices)
		if err := est.Fit(XTrain, yTrain); err != nil {
			return 0, err
		}
		sc, err := scorer(est, XTest, yTest)
		if err != nil {
			return 0, err
		}
		total += sc
	}
	return total / float64(len(folds)), nil
}
