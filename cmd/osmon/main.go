package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/osmon/pkg/client"
)

var Version = "dev"

var (
	endpoint   string
	jsonOutput bool
	width      int

	apiClient *client.Client
)

func defaultEndpoint() string {
	if s := os.Getenv("OSMON_ENDPOINT"); s != "" {
		return s
	}
	return client.DefaultEndpoint
}

var rootCmd = &cobra.Command{
	Use:           "osmon <command>",
	Short:         "Inspect the OS simulator through osmon-d",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.NewClient(endpoint).WithRetries(2, client.DefaultBackoff())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", defaultEndpoint(), "osmon-d API base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().IntVar(&width, "width", 100, "terminal width used for the Gantt chart")

	rootCmd.AddGroup(
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "actions", Title: "Actions:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	// Views
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(reportCmd)

	// Actions
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(deadlockCmd)

	// System
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(archivesCmd)
	rootCmd.AddCommand(mcpCmd)
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
