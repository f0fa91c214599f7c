package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuchang/junit5/internal/cli"
	"github.com/tuchang/junit5/internal/presentation/tui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover and execute tests",
	Long: `Discovers the selected tests and executes them, printing a tree of results
and a summary. Exits with status 1 when any test or container failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		selectors, include, exclude := selection(cmd)
		flags := cmd.Flags()
		watchMode, _ := flags.GetBool("watch")
		headless, _ := flags.GetBool("headless")
		jsonMode, _ := flags.GetBool("json")
		rerun, _ := flags.GetString("rerun-failed")

		if watchMode && tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, version)
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.Run(sigCtx, env, cli.RunOptions{
			Selectors:   selectors,
			IncludeTags: include,
			ExcludeTags: exclude,
			RerunFailed: rerun,
			Watch:       watchMode,
			Headless:    headless,
			JSON:        jsonMode,
			Output:      os.Stdout,
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addSelectionFlags(runCmd)
	runCmd.Flags().BoolP("watch", "w", false, "Run again whenever a suite file changes")
	runCmd.Flags().Bool("headless", false, "Print only the summary")
	runCmd.Flags().Bool("json", false, "Print the run summary as JSON")
	runCmd.Flags().String("rerun-failed", "", `Run only the tests that failed in the given run id ("last" for the latest run)`)
	runCmd.Flags().Lookup("rerun-failed").NoOptDefVal = cli.LastRun
}
