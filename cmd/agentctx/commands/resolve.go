package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var resolveFormat string

var resolveCmd = &cobra.Command{
	Use:   "resolve <agent>",
	Short: "Resolve an agent's resources once",
	Long: `Resolve the resource patterns of an agent against the workspace and print
the matching files grouped by pattern.

Patterns are processed in batches; a batch that fails is retried before the
command gives up. Patterns that match nothing still get a header.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveFormat, "format", "f", formatText, "Output format (text|json|yaml)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.lookup(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := a.service.Resolve(ctx, cfg)
	if err != nil {
		return describe(err)
	}
	return printList(cmd.OutOrStdout(), list, resolveFormat)
}
