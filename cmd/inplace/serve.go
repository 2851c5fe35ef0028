package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/inplace/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Activates the workspace and exposes its nodes, closures and jobs as a JSON API over HTTP.
Job statuses are streamed on /events and Prometheus metrics are served on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetString("port")
		watch, _ := cmd.Flags().GetBool("watch")
		o := options(cmd)

		err := cli.Serve(cmd.Context(), o, cli.ServeOptions{
			Addr:  ":" + port,
			Watch: watch,
			Ready: func(addr net.Addr) {
				fmt.Printf("Starting InPlace Server on %s\n", addr)
				fmt.Printf("Serving workspace from: %s\n", o.Dir)
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("InPlace Server stopped gracefully")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload the manifest and update projects when files change")
}
