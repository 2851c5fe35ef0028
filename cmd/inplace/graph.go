package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/inplace/internal/cli"
	"github.com/aretw0/inplace/pkg/closure"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [project]...",
	Short: "Export the workspace dependency graph",
	Long: `Outputs a Mermaid diagram (graph TD) of the projects and their requirements.
When projects are given, the closure of --op over them is highlighted and numbered.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(cli.PrintGraph(cmd.Context(), options(cmd), closureOptions(cmd, args), os.Stdout))
	},
}

var closureCmd = &cobra.Command{
	Use:   "closure <project>...",
	Short: "Print the ordered closure an operation would touch",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(cli.PrintClosure(cmd.Context(), options(cmd), closureOptions(cmd, args), os.Stdout))
	},
}

func closureOptions(cmd *cobra.Command, args []string) cli.ClosureOptions {
	op, _ := cmd.Flags().GetString("op")
	allowCycles, _ := cmd.Flags().GetBool("allow-cycles")
	return cli.ClosureOptions{
		Operation:   closure.Operation(op),
		Seeds:       cli.ParseProjects(args),
		AllowCycles: allowCycles,
	}
}

func init() {
	for _, cmd := range []*cobra.Command{graphCmd, closureCmd} {
		cmd.Flags().String("op", string(closure.ActivateProject), "Closure operation: activate_project, activate_bundle, deactivate_project or deactivate_bundle")
		rootCmd.AddCommand(cmd)
	}
	closureCmd.Flags().Bool("allow-cycles", false, "Order the closure even when projects depend on each other")
}
