package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tuchang/junit5/internal/cli"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long:  `Exposes discovery and execution as Model Context Protocol tools, on stdio by default or over SSE with --sse.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		addr, _ := cmd.Flags().GetString("sse")
		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()
		return cli.ServeMCP(sigCtx, env, addr, version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("sse", "", "Serve over SSE on this address instead of stdio")
}
