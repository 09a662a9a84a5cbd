// Package config loads LCE estimator settings from TOML files.
//
// A file looks like:
//
//	ensemble = true
//
//	[estimator]
//	base_learner = "lightgbm"
//	max_depth = 3
//	n_estimators = 20
//
//	[search_space]
//	learning_rate = [0.05, 0.1]
//	num_leaves = [8, 16, 32]
//
// Keys left out keep the estimator defaults.
package config

import (
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/sklearn/boosting"
	"github.com/YuminosukeSato/lce/sklearn/lce"
)

// Config is the decoded file.
type Config struct {
	// Ensemble selects the bagged ensemble instead of a single tree.
	Ensemble    bool                 `toml:"ensemble"`
	Estimator   Estimator            `toml:"estimator"`
	SearchSpace map[string][]float64 `toml:"search_space"`
}

// Estimator mirrors the lce options. Nil fields are not set.
type Estimator struct {
	BaseLearner    *string  `toml:"base_learner"`
	MaxDepth       *int     `toml:"max_depth"`
	MinSamplesLeaf *int     `toml:"min_samples_leaf"`
	NIter          *int     `toml:"n_iter"`
	Metric         *string  `toml:"metric"`
	Criterion      *string  `toml:"criterion"`
	Splitter       *string  `toml:"splitter"`
	RandomState    *int64   `toml:"random_state"`
	Verbose        *int     `toml:"verbose"`
	NEstimators    *int     `toml:"n_estimators"`
	Bootstrap      *bool    `toml:"bootstrap"`
	MaxSamples     *float64 `toml:"max_samples"`
	MaxFeatures    *float64 `toml:"max_features"`
	NJobs          *int     `toml:"n_jobs"`
}

// Decode reads a config from r. Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	var c Config
	md, err := toml.NewDecoder(r).Decode(&c)
	if err != nil {
		return nil, lceErrors.Wrap(err, "decode config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, lceErrors.NewValidationError("config", "unknown keys", strings.Join(keys, ", "))
	}
	return &c, nil
}

// Load reads the config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lceErrors.Wrap(err, "open config")
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, lceErrors.Wrapf(err, "load config %s", path)
	}
	return c, nil
}

// Options converts the config into estimator options. Grids are applied in
// key order so the result does not depend on map iteration.
func (c *Config) Options() ([]lce.Option, error) {
	e := c.Estimator
	var opts []lce.Option

	if e.BaseLearner != nil {
		b, err := boosting.ParseBackend(*e.BaseLearner)
		if err != nil {
			return nil, err
		}
		opts = append(opts, lce.WithBaseLearner(b))
	}
	if e.MaxDepth != nil {
		opts = append(opts, lce.WithMaxDepth(*e.MaxDepth))
	}
	if e.MinSamplesLeaf != nil {
		opts = append(opts, lce.WithMinSamplesLeaf(*e.MinSamplesLeaf))
	}
	if e.NIter != nil {
		opts = append(opts, lce.WithNIter(*e.NIter))
	}
	if e.Metric != nil {
		opts = append(opts, lce.WithMetric(*e.Metric))
	}
	if e.Criterion != nil {
		opts = append(opts, lce.WithCriterion(*e.Criterion))
	}
	if e.Splitter != nil {
		opts = append(opts, lce.WithSplitter(*e.Splitter))
	}
	if e.RandomState != nil {
		opts = append(opts, lce.WithRandomState(*e.RandomState))
	}
	if e.Verbose != nil {
		opts = append(opts, lce.WithVerbose(*e.Verbose))
	}

	ensembleOnly := e.NEstimators != nil || e.Bootstrap != nil || e.MaxSamples != nil || e.MaxFeatures != nil || e.NJobs != nil
	if ensembleOnly && !c.Ensemble {
		return nil, lceErrors.NewValidationError("ensemble", "bagging keys need ensemble = true", c.Ensemble)
	}
	if e.NEstimators != nil {
		opts = append(opts, lce.WithNEstimators(*e.NEstimators))
	}
	if e.Bootstrap != nil {
		opts = append(opts, lce.WithBootstrap(*e.Bootstrap))
	}
	if e.MaxSamples != nil {
		opts = append(opts, lce.WithMaxSamples(*e.MaxSamples))
	}
	if e.MaxFeatures != nil {
		opts = append(opts, lce.WithMaxFeatures(*e.MaxFeatures))
	}
	if e.NJobs != nil {
		opts = append(opts, lce.WithNJobs(*e.NJobs))
	}

	names := make([]string, 0, len(c.SearchSpace))
	for name := range c.SearchSpace {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, lce.WithGrid(name, c.SearchSpace[name]...))
	}
	return opts, nil
}
