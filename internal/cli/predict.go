package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/lce/internal/dataset"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/sklearn/lce"
	"gonum.org/v1/gonum/mat"
)

type predictOpts struct {
	model  string
	data   string
	target string // column to drop before predicting, if present
	proba  bool
}

func (c *CLI) predictCommand() *cobra.Command {
	var opts predictOpts

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict a CSV file and write the predictions as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.model == "" || opts.data == "" {
				return lceErrors.NewValidationError("flags", "--model and --data are required", nil)
			}
			return c.runPredict(&opts)
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "fitted model file")
	cmd.Flags().StringVar(&opts.data, "data", "", "data to predict (CSV with header)")
	cmd.Flags().StringVar(&opts.target, "target", "", "target column to ignore")
	cmd.Flags().BoolVar(&opts.proba, "proba", false, "write class probabilities (classifiers only)")

	return cmd
}

func (c *CLI) runPredict(opts *predictOpts) error {
	est, mf, err := loadModel(opts.model)
	if err != nil {
		return err
	}
	ds, err := readFor(opts.data, opts.target, mf)
	if err != nil {
		return err
	}

	if !opts.proba {
		pred, err := est.Predict(ds.X)
		if err != nil {
			return err
		}
		name := mf.Target
		if name == "" {
			name = "prediction"
		}
		return dataset.Write(c.out, []string{name}, pred)
	}

	var (
		proba   mat.Matrix
		classes []float64
	)
	switch e := est.(type) {
	case *lce.TreeClassifier:
		proba, err = e.PredictProba(ds.X)
		classes = e.Classes()
	case *lce.Classifier:
		proba, err = e.PredictProba(ds.X)
		classes = e.Classes()
	default:
		return lceErrors.NewValidationError("proba", "probabilities need a classifier", mf.Kind)
	}
	if err != nil {
		return err
	}
	header := make([]string, len(classes))
	for i, cl := range classes {
		header[i] = "p_" + strconv.FormatFloat(cl, 'g', -1, 64)
	}
	return dataset.Write(c.out, header, proba)
}

type scoreOpts struct {
	model  string
	data   string
	target string
}

func (c *CLI) scoreCommand() *cobra.Command {
	var opts scoreOpts

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a fitted model on labelled data (accuracy or R²)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.model == "" || opts.data == "" {
				return lceErrors.NewValidationError("flags", "--model and --data are required", nil)
			}
			return c.runScore(&opts)
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "fitted model file")
	cmd.Flags().StringVar(&opts.data, "data", "", "labelled data (CSV with header)")
	cmd.Flags().StringVar(&opts.target, "target", "", "target column (defaults to the one used for fitting)")

	return cmd
}

func (c *CLI) runScore(opts *scoreOpts) error {
	est, mf, err := loadModel(opts.model)
	if err != nil {
		return err
	}
	ds, err := readFor(opts.data, opts.target, mf)
	if err != nil {
		return err
	}
	if ds.Y == nil {
		return lceErrors.NewValidationError("target", "scoring needs a target column", mf.Target)
	}

	score, err := est.Score(ds.X, ds.Y)
	if err != nil {
		return err
	}
	metric := "accuracy"
	if mf.Kind == kindTreeRegressor || mf.Kind == kindRegressor {
		metric = "r2"
	}
	fmt.Fprintf(c.out, "%s\t%.6f\n", metric, score)
	return nil
}

// readFor reads data for a fitted model and checks its feature columns.
// The target column (the fitted one unless given) is dropped when the file
// has it.
func readFor(path, target string, mf *modelFile) (*dataset.Dataset, error) {
	if target == "" {
		target = mf.Target
	}
	ds, err := dataset.ReadFile(path, "")
	if err != nil {
		return nil, err
	}
	if target != "" && contains(ds.Features, target) {
		if ds, err = dataset.ReadFile(path, target); err != nil {
			return nil, err
		}
	}
	if strings.Join(ds.Features, ",") != strings.Join(mf.Features, ",") {
		return nil, lceErrors.NewValidationError("data", "feature columns differ from the fitted model's",
			strings.Join(ds.Features, ","))
	}
	return ds, nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
