package main

import (
	"fmt"

	"modscout/internal/store"

	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyMinRuns int
	historyKeep    int
)

// historyCmd groups queries over the run history database
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the history of probe runs",
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	RunE:  runHistoryRuns,
}

var historyDeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "List strategies that never succeeded across recorded runs",
	Long: `Lists every strategy that did not succeed once in any of at least --min-runs
runs where its capability was read. These fallbacks are candidates for removal.`,
	RunE: runHistoryDead,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest runs",
	RunE:  runHistoryPrune,
}

func init() {
	historyRunsCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	historyDeadCmd.Flags().IntVar(&historyMinRuns, "min-runs", 5, "Minimum runs a strategy must have been idle for")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 100, "Runs to keep")

	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historyDeadCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

func openHistory() (*store.History, error) {
	if cfg.Monitor.HistoryDB == "" {
		return nil, fmt.Errorf("monitor.history_db is not set")
	}
	return store.Open(cfg.Monitor.HistoryDB)
}

func runHistoryRuns(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	runs, err := h.Runs(ctx, historyLimit)
	if err != nil {
		return err
	}
	renderRuns(cmd.OutOrStdout(), runs)
	return nil
}

func runHistoryDead(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	dead, err := h.DeadStrategies(ctx, historyMinRuns)
	if err != nil {
		return err
	}
	renderDead(cmd.OutOrStdout(), dead, historyMinRuns)
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if historyKeep < 0 {
		return fmt.Errorf("--keep must not be negative")
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	n, err := h.Prune(ctx, historyKeep)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d runs\n", n)
	return nil
}
