package main

import (
	"github.com/spf13/cobra"

	"github.com/tuchang/junit5/internal/cli"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Print the test plan without executing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		selectors, include, exclude := selection(cmd)
		jsonMode, _ := cmd.Flags().GetBool("json")
		return cli.Discover(cmd.Context(), env, cli.DiscoverOptions{
			Selectors:   selectors,
			IncludeTags: include,
			ExcludeTags: exclude,
			JSON:        jsonMode,
			Output:      cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	addSelectionFlags(discoverCmd)
	discoverCmd.Flags().Bool("json", false, "Print the plan as JSON")
}
