package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"simcheck/examples"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models that can be checked in process",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range examples.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}
