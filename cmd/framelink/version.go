package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/framelink/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the framelink build version",
	// No config or logger needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "framelink %s\n", version.String())
		return nil
	},
}
