package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"simcheck/logger"
)

// exitCode is set by the commands reporting an exploration or replay status.
var exitCode int

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "simcheck",
	Short: "Explore the interleavings of an application looking for bugs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logger.DEBUG)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every explored transition")
	rootCmd.AddCommand(exploreCmd, replayCmd, serveCmd, modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}
