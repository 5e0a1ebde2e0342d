package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/osmon/pkg/mcp"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of osmon-d",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := apiClient.Ping(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), h); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s (version %s, leader %v, failures %d)\n",
				h.Status, h.Version, h.Leader, h.Failures)
		}
		if h.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", h.Status)
		}
		return nil
	},
}

var archivesCmd = &cobra.Command{
	Use:     "archives",
	Short:   "List archived snapshot batches",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := apiClient.Archives(context.Background())
		if err != nil {
			return fmt.Errorf("listing archives: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), keys)
		}
		if len(keys) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No archives.")
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:     "mcp",
	Short:   "Serve osmon to MCP clients over stdio",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcp.NewServer(endpoint, Version).Serve()
	},
}
