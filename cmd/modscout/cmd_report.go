package main

import (
	"encoding/json"
	"fmt"

	"modscout/internal/monitor"
	"modscout/internal/store"

	"github.com/spf13/cobra"
)

var (
	reportFormat string
	reportRun    string
	reportPath   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the strategy report of the last probe or of a recorded run",
	Long: `Reads the strategy report written by the last probe (monitor.report_path), or
a run from the history database with --run. Formats: text, json, yaml.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "text", "Output format: text, json, yaml")
	reportCmd.Flags().StringVar(&reportRun, "run", "", "Run id from the history database")
	reportCmd.Flags().StringVar(&reportPath, "path", "", "Report file (default: monitor.report_path)")
}

func loadReport(cmd *cobra.Command) (monitor.Snapshot, error) {
	if reportRun != "" {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		h, err := store.Open(cfg.Monitor.HistoryDB)
		if err != nil {
			return monitor.Snapshot{}, err
		}
		defer h.Close()
		return h.Snapshot(ctx, reportRun)
	}
	path := reportPath
	if path == "" {
		path = cfg.Monitor.ReportPath
	}
	return monitor.LoadSnapshot(path)
}

func runReport(cmd *cobra.Command, args []string) error {
	snap, err := loadReport(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch reportFormat {
	case "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		return snap.WriteYAML(out)
	case "text", "":
		renderReport(out, snap)
	default:
		return fmt.Errorf("unknown format %q (valid: text, json, yaml)", reportFormat)
	}
	return nil
}
