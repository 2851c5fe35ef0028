package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/inplace"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of inplace",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inplace version %s\n", strings.TrimSpace(inplace.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
