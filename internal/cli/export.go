package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/viz"
)

type exportOpts struct {
	model  string
	member int
	svg    string
}

func (c *CLI) exportCommand() *cobra.Command {
	var opts exportOpts

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print a fitted tree as Graphviz DOT, optionally rendering it to SVG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.model == "" {
				return lceErrors.NewValidationError("flags", "--model is required", nil)
			}

			est, _, err := loadModel(opts.model)
			if err != nil {
				return err
			}
			dot, err := exportDOT(est, opts.member)
			if err != nil {
				return err
			}
			if opts.svg == "" {
				fmt.Fprint(c.out, dot)
				return nil
			}

			svg, err := viz.RenderTreeSVG(cmd.Context(), dot)
			if err != nil {
				return err
			}
			if err := os.WriteFile(opts.svg, svg, 0o644); err != nil {
				return lceErrors.Wrap(err, "write SVG")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "fitted model file")
	cmd.Flags().IntVar(&opts.member, "tree", 0, "ensemble member to export")
	cmd.Flags().StringVar(&opts.svg, "svg", "", "render to this SVG file instead of printing DOT")

	return cmd
}
