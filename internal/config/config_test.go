package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/sklearn/boosting"
	"github.com/YuminosukeSato/lce/sklearn/lce"
)

const sample = `
ensemble = true

[estimator]
base_learner = "lightgbm"
max_depth = 3
n_iter = 4
metric = "neg_log_loss"
random_state = 11
n_estimators = 5
max_features = 0.5

[search_space]
num_leaves = [8, 16]
learning_rate = [0.05, 0.1]
`

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !c.Ensemble {
		t.Error("ensemble not decoded")
	}
	if c.Estimator.MaxDepth == nil || *c.Estimator.MaxDepth != 3 {
		t.Errorf("max_depth = %v", c.Estimator.MaxDepth)
	}
	if c.Estimator.MinSamplesLeaf != nil {
		t.Error("unset key decoded as a value")
	}
	if got := c.SearchSpace["num_leaves"]; len(got) != 2 || got[1] != 16 {
		t.Errorf("num_leaves grid = %v", got)
	}
}

func TestConfig_Options(t *testing.T) {
	c, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	opts, err := c.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}

	clf := lce.NewClassifier(opts...)
	p := clf.Params
	if p.BaseLearner != boosting.LightGBM || p.MaxDepth != 3 || p.NIter != 4 {
		t.Errorf("tree options not applied: %+v", p)
	}
	if p.Metric != "neg_log_loss" || p.RandomState != 11 {
		t.Errorf("search options not applied: %+v", p)
	}
	if p.NEstimators != 5 || p.MaxFeatures != 0.5 {
		t.Errorf("bagging options not applied: %+v", p)
	}
	if p.MinSamplesLeaf != 5 {
		t.Errorf("min_samples_leaf = %d, want the default 5", p.MinSamplesLeaf)
	}
	if got := p.Grids["learning_rate"]; len(got) != 2 || got[0] != 0.05 {
		t.Errorf("learning_rate grid = %v", got)
	}
}

func TestConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown key", "[estimator]\nmax_dept = 3\n"},
		{"wrong type", "[estimator]\nmax_depth = \"deep\"\n"},
		{"bad syntax", "[estimator\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.src)); err == nil {
				t.Error("expected a decode error")
			}
		})
	}

	c, err := Decode(strings.NewReader("[estimator]\nbase_learner = \"randomforest\"\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var ve *lceErrors.ValidationError
	if _, err := c.Options(); !lceErrors.As(err, &ve) {
		t.Errorf("unknown base learner: err = %v, want ValidationError", err)
	}

	c, err = Decode(strings.NewReader("[estimator]\nn_estimators = 4\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := c.Options(); !lceErrors.As(err, &ve) {
		t.Errorf("bagging key on a single tree: err = %v, want ValidationError", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lce.toml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *c.Estimator.BaseLearner != "lightgbm" {
		t.Errorf("base_learner = %s", *c.Estimator.BaseLearner)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("loading a missing file should fail")
	}
}
