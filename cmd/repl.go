// Copyright © 2016 The Jet authors

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/swgillespie/jet/repl"
)

// replCmd starts an interactive session.  The embedded prelude is used, so
// no stdlib path is required.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return repl.Run("jet> ", runtimeConfigs())
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
