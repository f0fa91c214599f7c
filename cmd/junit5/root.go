package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuchang/junit5/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "junit5",
	Short: "junit5 discovers and executes test suites",
	Long: `junit5 discovers tests described by *.suite.yaml and *.suite.hcl files,
executes them with lifecycle callbacks and extensions, and reports the results.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cli.ErrTestsFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file (default junit5.yaml)")
	flags.StringArrayP("param", "p", nil, "Configuration parameter key=value (repeatable)")
	flags.String("log-level", "", "Log level: debug, info, warn or error (logging is off when unset)")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.Bool("debug", false, "Shorthand for --log-level=debug")
}

// setup builds the environment from the persistent flags.
func setup(cmd *cobra.Command) (*cli.Environment, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	params, _ := flags.GetStringArray("param")
	level, _ := flags.GetString("log-level")
	logJSON, _ := flags.GetBool("log-json")
	debug, _ := flags.GetBool("debug")

	return cli.Setup(cli.Options{
		ConfigPath:     configPath,
		ConfigRequired: flags.Changed("config"),
		Params:         params,
		LogLevel:       level,
		LogJSON:        logJSON,
		Debug:          debug,
	})
}

// selection reads the --select, --include-tag and --exclude-tag flags.
func selection(cmd *cobra.Command) (selectors, include, exclude []string) {
	selectors, _ = cmd.Flags().GetStringArray("select")
	include, _ = cmd.Flags().GetStringSlice("include-tag")
	exclude, _ = cmd.Flags().GetStringSlice("exclude-tag")
	return selectors, include, exclude
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("select", "s", nil, `Selector such as "name:math.adds", "id:[engine:suites]/[suite:math]", "file:a.suite.yaml" or "dir:tests" (repeatable)`)
	cmd.Flags().StringSliceP("include-tag", "t", nil, "Only run tests with one of these tags")
	cmd.Flags().StringSliceP("exclude-tag", "T", nil, "Skip tests with one of these tags")
}
