package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/agentctx/internal/agent"
)

var agentShowFormat string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect Q CLI agents",
	Long: `Inspect the agent configurations visible from the workspace.

Agents are JSON files in .amazonq/cli-agents/ (workspace) and
~/.aws/amazonq/cli-agents/ (global). A workspace agent shadows a global
agent of the same name.`,
}

var agentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all agents",
	Args:    cobra.NoArgs,
	RunE:    runAgentList,
}

var agentShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print an agent's configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentShow,
}

func init() {
	agentShowCmd.Flags().StringVarP(&agentShowFormat, "format", "f", formatYAML, "Output format (json|yaml)")

	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
}

func runAgentList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	items := a.agents.List()
	if len(items) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No agents found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLOCATION\tRESOURCES\tNOTE\t")
	for _, item := range items {
		note := conflictNote(a.agents, item)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", item.Name, item.Location, summarize(item.Config.Resources), note)
	}
	return w.Flush()
}

// conflictNote explains how item relates to a same-named agent elsewhere.
func conflictNote(reg *agent.Registry, item *agent.Item) string {
	if !reg.Conflict(item.Name).HasConflict {
		return ""
	}
	if item.Location == agent.LocationGlobal {
		return "shadowed by workspace agent"
	}
	return "shadows global agent"
}

func runAgentShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.lookup(args[0])
	if err != nil {
		return err
	}
	return encode(cmd.OutOrStdout(), cfg, agentShowFormat)
}

// summarize shortens a resource list for table output.
func summarize(resources []string) string {
	switch len(resources) {
	case 0:
		return "-"
	case 1, 2:
		return strings.Join(resources, ", ")
	default:
		return fmt.Sprintf("%s, %s (+%d)", resources[0], resources[1], len(resources)-2)
	}
}
