package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/agentctx/internal/config"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect resolver configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the global file,
the workspace file (.agentctx/agentctx.json[c]), AGENTCTX_CONFIG and
AGENTCTX_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", formatYAML, "Output format (json|yaml)")
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return encode(cmd.OutOrStdout(), cfg, configFormat)
}
