package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/osmon/pkg/client"
	"github.com/rmax-ai/osmon/pkg/graph"
	"github.com/rmax-ai/osmon/pkg/render"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Short:   "Render graphs, Gantt chart and process table of the latest snapshot",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := apiClient.View(context.Background())
		if err != nil {
			return fmt.Errorf("fetching view: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), v)
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Dashboard(v, width))
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:     "graph [rag|wfg]",
	Short:   "Render the resource allocation or wait-for graph",
	GroupID: "views",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := graph.KindRAG
		if len(args) == 1 {
			k, err := graph.ParseKind(args[0])
			if err != nil {
				return err
			}
			kind = k
		}

		format, _ := cmd.Flags().GetString("format")
		if format != "" {
			return exportGraph(cmd, kind, format)
		}

		g, err := apiClient.Graphs(context.Background())
		if err != nil {
			return fmt.Errorf("fetching graphs: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), g)
		}

		out := cmd.OutOrStdout()
		if kind == graph.KindWFG {
			fmt.Fprintln(out, render.WFG(g.WFG))
		} else {
			fmt.Fprintln(out, render.RAG(g.RAG))
		}
		if d := render.Diagnostics(g.Diagnostics); d != "" {
			fmt.Fprintln(out)
			fmt.Fprintln(out, d)
		}
		return nil
	},
}

func exportGraph(cmd *cobra.Command, kind graph.Kind, format string) error {
	if _, err := graph.ParseFormat(format); err != nil {
		return err
	}
	text, err := apiClient.Export(context.Background(), string(kind), format)
	if err != nil {
		return fmt.Errorf("exporting graph: %w", err)
	}

	outPath, _ := cmd.Flags().GetString("out")
	if outPath == "" {
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)
	return nil
}

var timelineCmd = &cobra.Command{
	Use:     "timeline",
	Short:   "Render the Gantt chart of the last scheduling run",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tl, err := apiClient.Timeline(context.Background())
		if err != nil {
			return fmt.Errorf("fetching timeline: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tl)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, render.Timeline(tl.Timeline, width))
		fmt.Fprintln(out)
		fmt.Fprintln(out, render.Schedule(tl.Summary, tl.Processes))
		if tl.SchedulingActive {
			fmt.Fprintln(out, "\nSchedule panel is frozen on this run; `osmon schedule resume` lifts it.")
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "List stored events, newest first",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		types, _ := cmd.Flags().GetStringSlice("type")
		since, _ := cmd.Flags().GetDuration("since")

		opts := client.EventsOptions{Limit: limit, Types: types}
		if since > 0 {
			opts.From = time.Now().Add(-since)
		}
		events, err := apiClient.GetEvents(context.Background(), opts)
		if err != nil {
			return fmt.Errorf("fetching events: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), events)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events.")
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-18s %s\n",
				e.TsEvent.Local().Format(time.RFC3339), e.EventType, e.EventID)
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:     "report <timeline|processes|events>",
	Short:   "Download a CSV report from the daemon",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := apiClient.Report(context.Background(), strings.ToLower(args[0]))
		if err != nil {
			return fmt.Errorf("fetching report: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	graphCmd.Flags().StringP("format", "f", "", "export instead of rendering: dot or mermaid")
	graphCmd.Flags().StringP("out", "o", "", "write the export to a file")

	eventsCmd.Flags().Int("limit", 20, "maximum number of events")
	eventsCmd.Flags().StringSlice("type", nil, "only these event types")
	eventsCmd.Flags().Duration("since", 0, "only events newer than this")
}
