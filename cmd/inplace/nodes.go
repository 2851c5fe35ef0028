package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/inplace/internal/cli"
)

var nodesCmd = &cobra.Command{
	Use:     "nodes",
	Aliases: []string{"status"},
	Short:   "List the bundle node of every project",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		exitOnErr(cli.PrintNodes(cmd.Context(), options(cmd), asJSON, os.Stdout))
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
	nodesCmd.Flags().Bool("json", false, "Print the nodes as JSON")
}
