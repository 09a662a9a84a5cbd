// Package cli implements the lce command-line interface.
package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/lce/pkg/log"
)

// CLI holds shared state for all commands.
type CLI struct {
	out    io.Writer // command results (CSV, DOT, scores)
	errOut io.Writer // logs

	logLevel string
}

// New creates a CLI writing results to out and logs to errOut.
func New(out, errOut io.Writer) *CLI {
	return &CLI{out: out, errOut: errOut, logLevel: "info"}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "lce",
		Short: "Local Cascade Ensemble trees for tabular data",
		Long: `lce fits Local Cascade Ensemble trees: decision trees whose nodes each embed a
gradient boosting model and split on its outputs. Missing values are allowed in
every feature column.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return log.SetupLogger(c.logLevel, c.errOut)
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", c.logLevel, "log level: debug, info, warn or error")

	root.AddCommand(c.fitCommand())
	root.AddCommand(c.predictCommand())
	root.AddCommand(c.scoreCommand())
	root.AddCommand(c.exportCommand())

	return root
}
