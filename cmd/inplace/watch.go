package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/inplace/internal/cli"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Activate the workspace and follow file changes",
	Long: `Activates the workspace, then reloads it whenever inplace.yaml changes and
schedules an update of a project whenever a file in its directory changes.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(cli.Watch(cmd.Context(), options(cmd), os.Stdout))
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
