package boosting

import (
	"strings"

	"github.com/YuminosukeSato/lce/core/model"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
)

// Backend selects the tree growth policy of the boosting engine.
type Backend int

const (
	// XGBoost grows trees depth-wise with a learned default direction for missing values.
	XGBoost Backend = iota
	// LightGBM grows trees leaf-wise (best-first) under a leaf budget.
	LightGBM
	// CatBoost grows oblivious trees: every node of a level shares one split.
	CatBoost
)

// String returns the lower-case backend name used in params and config files.
func (b Backend) String() string {
	switch b {
	case XGBoost:
		return "xgboost"
	case LightGBM:
		return "lightgbm"
	case CatBoost:
		return "catboost"
	default:
		return "unknown"
	}
}

// ParseBackend parses a backend name.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "xgboost":
		return XGBoost, nil
	case "lightgbm":
		return LightGBM, nil
	case "catboost":
		return CatBoost, nil
	default:
		return 0, lceErrors.NewValidationError("base_learner", "must be xgboost, lightgbm or catboost", s)
	}
}

// Params contains the training hyperparameters of one boosting model.
type Params struct {
	Backend Backend

	NEstimators     int     // boosting rounds
	LearningRate    float64 // shrinkage applied to every leaf
	MaxDepth        int     // depth limit; <= 0 means unlimited (LightGBM only)
	NumLeaves       int     // leaf budget of the leaf-wise policy
	MinChildSamples int     // minimum number of rows in a child
	MinChildWeight  float64 // minimum hessian sum in a child
	Gamma           float64 // minimum gain required to split
	RegAlpha        float64 // L1 regularisation of leaf values
	RegLambda       float64 // L2 regularisation of leaf values
	Subsample       float64 // row fraction sampled per round
	ColsampleByTree float64 // column fraction sampled per tree
	MaxBin          int     // histogram bins per feature
	Seed            int64
}

// DefaultParams returns the defaults of the given backend.
func DefaultParams(backend Backend) Params {
	p := Params{
		Backend:         backend,
		NEstimators:     100,
		LearningRate:    0.1,
		MaxDepth:        6,
		NumLeaves:       31,
		MinChildSamples: 1,
		MinChildWeight:  1,
		RegLambda:       1,
		Subsample:       1,
		ColsampleByTree: 1,
		MaxBin:          64,
	}
	switch backend {
	case LightGBM:
		p.MaxDepth = -1
		p.MinChildSamples = 20
		p.MinChildWeight = 1e-3
		p.RegLambda = 0
	case CatBoost:
		p.LearningRate = 0.03
		p.RegLambda = 3
	}
	return p
}

// Validate checks the hyperparameters.
func (p *Params) Validate() error {
	switch {
	case p.Backend < XGBoost || p.Backend > CatBoost:
		return lceErrors.NewValidationError("base_learner", "unknown backend", int(p.Backend))
	case p.NEstimators < 1:
		return lceErrors.NewValidationError("n_estimators", "must be >= 1", p.NEstimators)
	case p.LearningRate <= 0:
		return lceErrors.NewValidationError("learning_rate", "must be > 0", p.LearningRate)
	case p.Backend != LightGBM && p.MaxDepth < 1:
		return lceErrors.NewValidationError("max_depth", "must be >= 1", p.MaxDepth)
	case p.Backend == LightGBM && p.NumLeaves < 2:
		return lceErrors.NewValidationError("num_leaves", "must be >= 2", p.NumLeaves)
	case p.MinChildSamples < 1:
		return lceErrors.NewValidationError("min_child_samples", "must be >= 1", p.MinChildSamples)
	case p.MinChildWeight < 0:
		return lceErrors.NewValidationError("min_child_weight", "must be >= 0", p.MinChildWeight)
	case p.Gamma < 0:
		return lceErrors.NewValidationError("gamma", "must be >= 0", p.Gamma)
	case p.RegAlpha < 0 || p.RegLambda < 0:
		return lceErrors.NewValidationError("reg_lambda", "regularisation must be >= 0", p.RegLambda)
	case p.Subsample <= 0 || p.Subsample > 1:
		return lceErrors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return lceErrors.NewValidationError("colsample_bytree", "must be in (0, 1]", p.ColsampleByTree)
	case p.MaxBin < 2:
		return lceErrors.NewValidationError("max_bin", "must be >= 2", p.MaxBin)
	}
	return nil
}

// GetParams returns the hyperparameters keyed by their scikit-learn style names.
func (p *Params) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"base_learner":      p.Backend.String(),
		"n_estimators":      p.NEstimators,
		"learning_rate":     p.LearningRate,
		"max_depth":         p.MaxDepth,
		"num_leaves":        p.NumLeaves,
		"min_child_samples": p.MinChildSamples,
		"min_child_weight":  p.MinChildWeight,
		"gamma":             p.Gamma,
		"reg_alpha":         p.RegAlpha,
		"reg_lambda":        p.RegLambda,
		"subsample":         p.Subsample,
		"colsample_bytree":  p.ColsampleByTree,
		"max_bin":           p.MaxBin,
		"random_state":      p.Seed,
	}
}

// SetParams updates the hyperparameters named in params.
func (p *Params) SetParams(params map[string]interface{}) error {
	for key, v := range params {
		var err error
		switch key {
		case "base_learner":
			var s string
			if s, err = model.ParamString(key, v); err == nil {
				p.Backend, err = ParseBackend(s)
			}
		case "n_estimators":
			p.NEstimators, err = model.ParamInt(key, v)
		case "learning_rate":
			p.LearningRate, err = model.ParamFloat(key, v)
		case "max_depth", "depth":
			p.MaxDepth, err = model.ParamInt(key, v)
		case "num_leaves":
			p.NumLeaves, err = model.ParamInt(key, v)
		case "min_child_samples":
			p.MinChildSamples, err = model.ParamInt(key, v)
		case "min_child_weight":
			p.MinChildWeight, err = model.ParamFloat(key, v)
		case "gamma":
			p.Gamma, err = model.ParamFloat(key, v)
		case "reg_alpha":
			p.RegAlpha, err = model.ParamFloat(key, v)
		case "reg_lambda", "l2_leaf_reg":
			p.RegLambda, err = model.ParamFloat(key, v)
		case "subsample":
			p.Subsample, err = model.ParamFloat(key, v)
		case "colsample_bytree":
			p.ColsampleByTree, err = model.ParamFloat(key, v)
		case "max_bin":
			p.MaxBin, err = model.ParamInt(key, v)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, v)
			p.Seed = int64(seed)
		default:
			err = lceErrors.NewValidationError(key, "unknown boosting parameter", v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
