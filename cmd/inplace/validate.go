package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/inplace/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check the workspace manifest",
	Long:  `Loads inplace.yaml, validates every field and reports requirement cycles.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := options(cmd).Dir
		if !cmd.Flags().Changed("dir") && len(args) > 0 {
			dir = args[0]
		}
		exitOnErr(cli.Validate(dir, os.Stdout))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
