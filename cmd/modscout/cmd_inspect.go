package main

import (
	"context"
	"encoding/json"
	"fmt"

	"modscout/internal/bootstrap"
	"modscout/internal/monitor"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	inspectDemo bool
	inspectURL  string
	inspectJSON bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [capability...]",
	Short: "Print the method and property names of capabilities on a page",
	Long: `Bootstraps against the page, then resolves each named capability live and lists
the member names of what it resolved to. Only the critical phase has to finish
before inspecting.

Example:
  modscout inspect --demo Msg UserConstructor`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	addTargetFlags(inspectCmd, &inspectDemo, &inspectURL)
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	t, err := openTarget(ctx, cfg, inspectDemo, inspectURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.close(); err != nil {
			logger.Warn("closing target", zap.Error(err))
		}
	}()

	boot := bootstrap.New(t.host, bootOptions(cfg, monitor.New()))
	s := boot.Surface()
	runCtx, stopRun := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := boot.Run(runCtx); err != nil {
			logger.Debug("bootstrap ended with error", zap.Error(err))
		}
	}()
	// The full phase is not needed once every inspection is printed.
	defer func() {
		stopRun()
		<-done
	}()
	if err := s.WaitReady(ctx); err != nil {
		return fmt.Errorf("waiting for surface: %w", err)
	}

	out := cmd.OutOrStdout()
	for i, name := range args {
		in := s.Inspect(name)
		if inspectJSON {
			data, err := json.MarshalIndent(in, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			continue
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		renderInspection(out, in)
	}
	return nil
}
