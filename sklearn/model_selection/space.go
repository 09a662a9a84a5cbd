package model_selection

import (
	"math/rand/v2"
	"sort"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/sklearn/boosting"
)

// Grid is the discrete set of candidate values of one hyperparameter.
type Grid struct {
	Name   string
	Values []interface{}
}

// SearchSpace is an ordered list of grids. The order fixes the sequence of
// random draws, so a seeded search is reproducible.
type SearchSpace []Grid

func ints(vs ...int) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func floats(vs ...float64) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// DefaultSearchSpace returns the default grids of a backend.
func DefaultSearchSpace(backend boosting.Backend) SearchSpace {
	space := SearchSpace{
		{Name: "n_estimators", Values: ints(10, 50, 100)},
		{Name: "learning_rate", Values: floats(0.01, 0.1, 0.3)},
	}
	switch backend {
	case boosting.LightGBM:
		space = append(space,
			Grid{Name: "num_leaves", Values: ints(20, 50, 100, 500)},
			Grid{Name: "min_child_samples", Values: ints(1, 5, 20)},
			Grid{Name: "colsample_bytree", Values: floats(0.5, 0.8, 1.0)},
			Grid{Name: "reg_lambda", Values: floats(0, 1)},
		)
	case boosting.CatBoost:
		space = append(space,
			Grid{Name: "max_depth", Values: ints(3, 6, 9)},
			Grid{Name: "reg_lambda", Values: floats(1, 3, 10)},
		)
	default:
		space = append(space,
			Grid{Name: "max_depth", Values: ints(3, 6, 9)},
			Grid{Name: "gamma", Values: floats(0, 0.1, 1)},
			Grid{Name: "min_child_weight", Values: floats(1, 5)},
			Grid{Name: "subsample", Values: floats(0.8, 1.0)},
			Grid{Name: "colsample_bytree", Values: floats(0.5, 0.8, 1.0)},
			Grid{Name: "reg_alpha", Values: floats(0, 1)},
			Grid{Name: "reg_lambda", Values: floats(0.1, 1, 10)},
		)
	}
	return space
}

// Override replaces (or adds) the grid with the given name.
func (s SearchSpace) Override(name string, values []interface{}) SearchSpace {
	out := make(SearchSpace, 0, len(s)+1)
	replaced := false
	for _, g := range s {
		if g.Name == name {
			out = append(out, Grid{Name: name, Values: values})
			replaced = true
			continue
		}
		out = append(out, g)
	}
	if !replaced {
		out = append(out, Grid{Name: name, Values: values})
	}
	return out
}

// Validate checks that every grid is non-empty and that every candidate is a
// valid boosting hyperparameter for the backend.
func (s SearchSpace) Validate(backend boosting.Backend) error {
	if len(s) == 0 {
		return lceErrors.NewValidationError("search_space", "must contain at least one grid", 0)
	}
	for _, g := range s {
		if len(g.Values) == 0 {
			return lceErrors.NewValidationError(g.Name, "search grid must not be empty", g.Values)
		}
		for _, v := range g.Values {
			p := boosting.DefaultParams(backend)
			if err := p.SetParams(map[string]interface{}{g.Name: v}); err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Draw samples one value per grid.
func (s SearchSpace) Draw(r *rand.Rand) map[string]interface{} {
	params := make(map[string]interface{}, len(s))
	for _, g := range s {
		params[g.Name] = g.Values[r.IntN(len(g.Values))]
	}
	return params
}

// Names returns the sorted grid names.
func (s SearchSpace) Names() []string {
	names := make([]string, len(s))
	for i, g := range s {
		names[i] = g.Name
	}
	sort.Strings(names)
	return names
}
