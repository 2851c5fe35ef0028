package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/inplace/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "inplace",
	Short: "InPlace manages the bundle lifecycle of a workspace of projects",
	Long: `InPlace keeps a workspace of projects installed, resolved and started as bundles.
Projects and their requirements are declared in inplace.yaml; activating a project
brings up its providers first, deactivating it stops its requirers first.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Commands run under a context cancelled on SIGINT or SIGTERM.
func Execute() {
	ctx := cli.NewSignalContext(context.Background())
	defer ctx.Cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing inplace.yaml (or the manifest file itself)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}

// options reads the persistent flags. A positional directory is accepted
// by commands that take no projects.
func options(cmd *cobra.Command) cli.Options {
	dir, _ := cmd.Flags().GetString("dir")
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	return cli.Options{Dir: dir, LogLevel: level, LogFormat: format}
}

// exitOnErr prints err and exits with status 1. Job failures were already
// printed as a status tree.
func exitOnErr(err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, cli.ErrJobFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
