package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/inplace/internal/cli"
)

type jobCommand struct {
	name  string
	use   string
	short string
	long  string
	args  cobra.PositionalArgs
}

var jobCommands = []jobCommand{
	{
		name:  "sync",
		use:   "sync",
		short: "Activate every project marked activated in the manifest",
		args:  cobra.NoArgs,
	},
	{
		name:  "activate",
		use:   "activate <project>...",
		short: "Activate projects and their providers",
		long:  `Installs, resolves and starts the projects, providers first. The activation scope of the manifest decides which other projects join.`,
		args:  cobra.MinimumNArgs(1),
	},
	{
		name:  "deactivate",
		use:   "deactivate <project>...",
		short: "Deactivate projects and their requirers",
		long:  `Stops the projects, requirers first, and marks them deactivated. Bundles stay installed.`,
		args:  cobra.MinimumNArgs(1),
	},
	{
		name:  "update",
		use:   "update [project]...",
		short: "Update projects, or every project with a pending update",
		args:  cobra.ArbitraryArgs,
	},
	{
		name:  "refresh",
		use:   "refresh [project]...",
		short: "Refresh the wiring of projects, or of every project with a pending refresh",
		args:  cobra.ArbitraryArgs,
	},
	{
		name:  "uninstall",
		use:   "uninstall <project>...",
		short: "Uninstall the bundles of projects and their requirers",
		args:  cobra.MinimumNArgs(1),
	},
	{
		name:  "remove",
		use:   "remove <project>",
		short: "Take a project out of the workspace",
		long:  `Uninstalls the project and forgets it. Activated requirers are refreshed without it.`,
		args:  cobra.ExactArgs(1),
	},
	{
		name:  "reconcile",
		use:   "reconcile",
		short: "Repair nodes whose bundle no longer matches the framework",
		args:  cobra.NoArgs,
	},
}

func (jc jobCommand) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   jc.use,
		Short: jc.short,
		Long:  jc.long,
		Args:  jc.args,
		Run: func(cmd *cobra.Command, args []string) {
			asJSON, _ := cmd.Flags().GetBool("json")
			unregister, _ := cmd.Flags().GetBool("unregister")
			exitOnErr(cli.RunJob(cmd.Context(), options(cmd), jc.name, cli.JobOptions{
				Projects:   cli.ParseProjects(args),
				Unregister: unregister,
				JSON:       asJSON,
			}, os.Stdout))
		},
	}
	cmd.Flags().Bool("json", false, "Print the job status as JSON")
	if jc.name == "uninstall" {
		cmd.Flags().Bool("unregister", false, "Also forget the projects")
	}
	return cmd
}

func init() {
	for _, jc := range jobCommands {
		rootCmd.AddCommand(jc.command())
	}
}
