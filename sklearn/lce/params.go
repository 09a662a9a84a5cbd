package lce

import (
	"sort"

	"github.com/YuminosukeSato/lce/core/model"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/sklearn/boosting"
	"github.com/YuminosukeSato/lce/sklearn/model_selection"
)

// Params holds the hyperparameters of the LCE tree and of the bagged ensemble.
// Fields are exported so that fitted estimators can be gob encoded.
type Params struct {
	BaseLearner    boosting.Backend
	MaxDepth       int
	MinSamplesLeaf int
	NIter          int
	Metric         string
	Criterion      string
	Splitter       string
	RandomState    int64
	Verbose        int

	// Grids overrides the default search grids of the base learner.
	// Integer hyperparameters accept integral values.
	Grids map[string][]float64

	// ensemble only
	NEstimators int
	Bootstrap   bool
	MaxSamples  float64
	MaxFeatures float64
	NJobs       int
}

// Option configures an LCE estimator.
type Option func(*Params)

// WithBaseLearner selects the gradient boosting backend fitted at every node.
func WithBaseLearner(b boosting.Backend) Option {
	return func(p *Params) { p.BaseLearner = b }
}

// WithMaxDepth sets the maximum depth of a tree. 0 gives a single node.
func WithMaxDepth(depth int) Option {
	return func(p *Params) { p.MaxDepth = depth }
}

// WithMinSamplesLeaf sets the minimum number of rows in each child of a split.
func WithMinSamplesLeaf(n int) Option {
	return func(p *Params) { p.MinSamplesLeaf = n }
}

// WithNIter sets the number of search trials per node.
func WithNIter(n int) Option {
	return func(p *Params) { p.NIter = n }
}

// WithMetric sets the metric optimised by the node search.
func WithMetric(metric string) Option {
	return func(p *Params) { p.Metric = metric }
}

// WithCriterion sets the split criterion of the router.
func WithCriterion(criterion string) Option {
	return func(p *Params) { p.Criterion = criterion }
}

// WithSplitter sets the split strategy of the router ("best" or "random").
func WithSplitter(splitter string) Option {
	return func(p *Params) { p.Splitter = splitter }
}

// WithRandomState seeds the search, the router and the ensemble sampling.
func WithRandomState(seed int64) Option {
	return func(p *Params) { p.RandomState = seed }
}

// WithVerbose sets the verbosity. 1 logs node fits at info level, 2 also every search trial.
func WithVerbose(v int) Option {
	return func(p *Params) { p.Verbose = v }
}

// WithGrid replaces the search grid of one base learner hyperparameter.
func WithGrid(name string, values ...float64) Option {
	return func(p *Params) {
		if p.Grids == nil {
			p.Grids = make(map[string][]float64)
		}
		p.Grids[name] = values
	}
}

// WithNEstimators sets the number of bagged trees.
func WithNEstimators(n int) Option {
	return func(p *Params) { p.NEstimators = n }
}

// WithBootstrap toggles sampling with replacement.
func WithBootstrap(b bool) Option {
	return func(p *Params) { p.Bootstrap = b }
}

// WithMaxSamples sets the fraction of rows drawn for each tree.
func WithMaxSamples(f float64) Option {
	return func(p *Params) { p.MaxSamples = f }
}

// WithMaxFeatures sets the fraction of columns drawn for each tree.
func WithMaxFeatures(f float64) Option {
	return func(p *Params) { p.MaxFeatures = f }
}

// WithNJobs sets the number of trees fitted concurrently; -1 uses every CPU.
func WithNJobs(n int) Option {
	return func(p *Params) { p.NJobs = n }
}

func defaultParams(classification bool) Params {
	p := Params{
		BaseLearner:    boosting.XGBoost,
		MaxDepth:       2,
		MinSamplesLeaf: 5,
		NIter:          10,
		Criterion:      "squared_error",
		Splitter:       "best",
		Metric:         model_selection.DefaultMetric(classification),
		NEstimators:    10,
		Bootstrap:      true,
		MaxSamples:     1.0,
		MaxFeatures:    1.0,
		NJobs:          1,
	}
	if classification {
		p.Criterion = "gini"
	}
	return p
}

func (p *Params) validate(classification, ensemble bool) error {
	switch {
	case p.BaseLearner < boosting.XGBoost || p.BaseLearner > boosting.CatBoost:
		return lceErrors.NewValidationError("base_learner", "must be xgboost, lightgbm or catboost", int(p.BaseLearner))
	case p.MaxDepth < 0:
		return lceErrors.NewValidationError("max_depth", "must be >= 0", p.MaxDepth)
	case p.MinSamplesLeaf < 1:
		return lceErrors.NewValidationError("min_samples_leaf", "must be >= 1", p.MinSamplesLeaf)
	case p.NIter < 1:
		return lceErrors.NewValidationError("n_iter", "must be >= 1", p.NIter)
	case p.Verbose < 0:
		return lceErrors.NewValidationError("verbose", "must be >= 0", p.Verbose)
	case p.Splitter != "best" && p.Splitter != "random":
		return lceErrors.NewValidationError("splitter", "must be best or random", p.Splitter)
	}
	if classification {
		if p.Criterion != "gini" && p.Criterion != "entropy" {
			return lceErrors.NewValidationError("criterion", "must be gini or entropy", p.Criterion)
		}
	} else if p.Criterion != "squared_error" {
		return lceErrors.NewValidationError("criterion", "must be squared_error", p.Criterion)
	}
	if _, err := model_selection.GetScorer(p.Metric, classification); err != nil {
		return err
	}
	if err := p.searchSpace().Validate(p.BaseLearner); err != nil {
		return err
	}

	if !ensemble {
		return nil
	}
	switch {
	case p.NEstimators < 1:
		return lceErrors.NewValidationError("n_estimators", "must be >= 1", p.NEstimators)
	case p.MaxSamples <= 0 || p.MaxSamples > 1:
		return lceErrors.NewValidationError("max_samples", "must be in (0, 1]", p.MaxSamples)
	case p.MaxFeatures <= 0 || p.MaxFeatures > 1:
		return lceErrors.NewValidationError("max_features", "must be in (0, 1]", p.MaxFeatures)
	case p.NJobs == 0 || p.NJobs < -1:
		return lceErrors.NewValidationError("n_jobs", "must be -1 or >= 1", p.NJobs)
	}
	return nil
}

// searchSpace returns the default grids of the base learner with the
// overrides applied in name order.
func (p *Params) searchSpace() model_selection.SearchSpace {
	space := model_selection.DefaultSearchSpace(p.BaseLearner)
	names := make([]string, 0, len(p.Grids))
	for name := range p.Grids {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := make([]interface{}, len(p.Grids[name]))
		for i, v := range p.Grids[name] {
			values[i] = v
		}
		space = space.Override(name, values)
	}
	return space
}

func (p *Params) getParams(ensemble bool) map[string]interface{} {
	out := map[string]interface{}{
		"base_learner":     p.BaseLearner.String(),
		"max_depth":        p.MaxDepth,
		"min_samples_leaf": p.MinSamplesLeaf,
		"n_iter":           p.NIter,
		"metric":           p.Metric,
		"criterion":        p.Criterion,
		"splitter":         p.Splitter,
		"random_state":     p.RandomState,
		"verbose":          p.Verbose,
	}
	if len(p.Grids) > 0 {
		grids := make(map[string][]float64, len(p.Grids))
		for k, v := range p.Grids {
			grids[k] = append([]float64(nil), v...)
		}
		out["search_space"] = grids
	}
	if ensemble {
		out["n_estimators"] = p.NEstimators
		out["bootstrap"] = p.Bootstrap
		out["max_samples"] = p.MaxSamples
		out["max_features"] = p.MaxFeatures
		out["n_jobs"] = p.NJobs
	}
	return out
}

func (p *Params) setParams(params map[string]interface{}, ensemble bool) error {
	for key, v := range params {
		var err error
		switch key {
		case "base_learner":
			var s string
			if s, err = model.ParamString(key, v); err == nil {
				p.BaseLearner, err = boosting.ParseBackend(s)
			}
		case "max_depth":
			p.MaxDepth, err = model.ParamInt(key, v)
		case "min_samples_leaf":
			p.MinSamplesLeaf, err = model.ParamInt(key, v)
		case "n_iter":
			p.NIter, err = model.ParamInt(key, v)
		case "metric":
			p.Metric, err = model.ParamString(key, v)
		case "criterion":
			p.Criterion, err = model.ParamString(key, v)
		case "splitter":
			p.Splitter, err = model.ParamString(key, v)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, v)
			p.RandomState = int64(seed)
		case "verbose":
			p.Verbose, err = model.ParamInt(key, v)
		case "search_space":
			grids, ok := v.(map[string][]float64)
			if !ok {
				err = lceErrors.NewValidationError(key, "must map parameter names to candidate lists", v)
				break
			}
			p.Grids = grids
		default:
			if !ensemble {
				err = lceErrors.NewValidationError(key, "unknown parameter", v)
				break
			}
			err = p.setEnsembleParam(key, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Params) setEnsembleParam(key string, v interface{}) (err error) {
	switch key {
	case "n_estimators":
		p.NEstimators, err = model.ParamInt(key, v)
	case "bootstrap":
		p.Bootstrap, err = model.ParamBool(key, v)
	case "max_samples":
		p.MaxSamples, err = model.ParamFloat(key, v)
	case "max_features":
		p.MaxFeatures, err = model.ParamFloat(key, v)
	case "n_jobs":
		p.NJobs, err = model.ParamInt(key, v)
	default:
		err = lceErrors.NewValidationError(key, "unknown parameter", v)
	}
	return err
}
