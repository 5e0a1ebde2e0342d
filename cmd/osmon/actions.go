package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/render"
)

var refreshCmd = &cobra.Command{
	Use:     "refresh",
	Short:   "Make the daemon poll the backend now",
	GroupID: "actions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := apiClient.Refresh(context.Background())
		if err != nil {
			return fmt.Errorf("refreshing: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), v)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s (seq %d)\n%s\n", v.SnapshotID, v.Seq, render.Banner(v.Graphs.RAG))
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:     "schedule <fcfs|sjf|priority|rr>",
	Short:   "Run a CPU scheduling algorithm on the simulator",
	GroupID: "actions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quantum, _ := cmd.Flags().GetInt("quantum")
		count, _ := cmd.Flags().GetInt("processes")
		if quantum < 1 {
			return fmt.Errorf("quantum must be at least 1, got %d", quantum)
		}

		req := backend.ScheduleRequest{
			Algorithm:    backend.CanonicalAlgorithm(args[0]),
			Quantum:      quantum,
			ProcessCount: count,
		}
		tl, err := apiClient.Schedule(context.Background(), req)
		if err != nil {
			return fmt.Errorf("scheduling: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tl)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, render.Timeline(tl.Timeline, width))
		fmt.Fprintln(out)
		fmt.Fprintln(out, render.Schedule(tl.Summary, tl.Processes))
		return nil
	},
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Let periodic polls refresh the schedule panel again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.ResumeScheduling(context.Background()); err != nil {
			return fmt.Errorf("resuming: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schedule panel follows the backend again.")
		return nil
	},
}

var deadlockCmd = &cobra.Command{
	Use:     "deadlock",
	Short:   "Create or break a deadlock in the simulator",
	GroupID: "actions",
}

var deadlockSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Ask the simulator to construct a circular wait",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient.SimulateDeadlock(context.Background())
		if err != nil {
			return fmt.Errorf("simulating deadlock: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deadlock created: %v\n%s\n", res.Result.DeadlockCreated, render.Banner(res.View.Graphs.RAG))
		return nil
	},
}

var deadlockRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Ask the simulator to break the deadlock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient.RecoverDeadlock(context.Background())
		if err != nil {
			return fmt.Errorf("recovering deadlock: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Processes terminated: %d\nStill deadlocked: %v\n",
			res.Result.ProcessesTerminated, res.Result.StillDeadlocked)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().IntP("quantum", "q", 2, "round robin time quantum")
	scheduleCmd.Flags().IntP("processes", "n", 0, "number of processes to schedule (0 for all)")
	scheduleCmd.AddCommand(scheduleResumeCmd)

	deadlockCmd.AddCommand(deadlockSimulateCmd)
	deadlockCmd.AddCommand(deadlockRecoverCmd)
}
