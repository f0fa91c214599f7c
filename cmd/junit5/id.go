package main

import (
	"github.com/spf13/cobra"

	"github.com/tuchang/junit5/internal/cli"
)

var idCmd = &cobra.Command{
	Use:   "id <unique-id>",
	Short: "Parse a unique id and print its segments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ID(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(idCmd)
}
