// Package main is the entry point for the visimatchd CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visimatchd",
		Short: "Visual catalog retrieval server",
		Long:  `visimatchd serves photo-to-catalog-item search, feedback collection, and model training over a library backed by an on-disk task queue.`,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(trainCmd())
	cmd.AddCommand(backupCmd())
	cmd.AddCommand(restoreCmd())
	cmd.AddCommand(versionCmd())
	cmd.AddCommand(tokenCmd())

	return cmd
}
