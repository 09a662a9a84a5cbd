package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/lce/internal/config"
	"github.com/YuminosukeSato/lce/internal/dataset"
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/pkg/log"
	"github.com/YuminosukeSato/lce/sklearn/lce"
	"github.com/YuminosukeSato/lce/viz"
)

// fitOpts holds the command-line flags for the fit command.
type fitOpts struct {
	data       string // training CSV
	target     string // target column name
	config     string // optional TOML config
	output     string // model file to write
	regression bool   // fit a regressor instead of a classifier
	ensemble   bool   // bag several trees (also settable in the config)
	seed       int64  // overrides random_state when set
	searchPlot string // optional plot of the root search history
}

func (c *CLI) fitCommand() *cobra.Command {
	var opts fitOpts

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit an LCE tree or ensemble on a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.data == "" || opts.target == "" || opts.output == "" {
				return lceErrors.NewValidationError("flags", "--data, --target and --model are required", nil)
			}
			return c.runFit(cmd.Context(), cmd.Flags().Changed("seed"), &opts)
		},
	}

	cmd.Flags().StringVar(&opts.data, "data", "", "training data (CSV with header)")
	cmd.Flags().StringVar(&opts.target, "target", "", "name of the target column")
	cmd.Flags().StringVar(&opts.config, "config", "", "TOML file with hyperparameters and search grids")
	cmd.Flags().StringVarP(&opts.output, "model", "o", "", "where to write the fitted model")
	cmd.Flags().BoolVar(&opts.regression, "regression", false, "fit a regressor")
	cmd.Flags().BoolVar(&opts.ensemble, "ensemble", false, "fit a bagged ensemble of trees")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed (overrides the config)")
	cmd.Flags().StringVar(&opts.searchPlot, "search-plot", "", "save the root node's search history plot (.png, .svg, .pdf)")

	return cmd
}

func (c *CLI) runFit(ctx context.Context, seedSet bool, opts *fitOpts) error {
	logger := log.GetLoggerWithName("cli.fit")

	var estOpts []lce.Option
	ensemble := opts.ensemble
	if opts.config != "" {
		cfg, err := config.Load(opts.config)
		if err != nil {
			return err
		}
		ensemble = ensemble || cfg.Ensemble
		if estOpts, err = cfg.Options(); err != nil {
			return err
		}
	}
	if seedSet {
		estOpts = append(estOpts, lce.WithRandomState(opts.seed))
	}

	ds, err := dataset.ReadFile(opts.data, opts.target)
	if err != nil {
		return err
	}

	kind := kindOf(ensemble, opts.regression)
	est, err := newEstimator(kind, estOpts...)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := est.FitContext(ctx, ds.X, ds.Y); err != nil {
		return err
	}
	logger.Info("model fitted",
		log.ModelNameKey, kind,
		log.SamplesKey, ds.NSamples(),
		log.FeaturesKey, len(ds.Features),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if err := saveModel(opts.output, est, modelFile{Kind: kind, Features: ds.Features, Target: ds.Target}); err != nil {
		return err
	}
	logger.Info("model saved", "path", opts.output)

	if opts.searchPlot != "" {
		root := firstRoot(est)
		if root == nil || root.Model == nil {
			logger.Warn("root node has no base learner, search plot skipped")
			return nil
		}
		if err := viz.PlotSearchHistory(root.SearchScores, "root node search", opts.searchPlot); err != nil {
			return err
		}
		logger.Info("search plot saved", "path", opts.searchPlot)
	}
	return nil
}
