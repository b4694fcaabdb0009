package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"modscout/internal/bootstrap"
	"modscout/internal/config"
	"modscout/internal/host/memhost"
	"modscout/internal/host/rodhost"
	"modscout/internal/monitor"
	"modscout/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	probeDemo      bool
	probeURL       string
	probeNoHistory bool
	probeReport    string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Bootstrap against a page and report which capabilities resolved",
	Long: `Runs the full bootstrap sequence: waits for the page to be ready, builds the
module table, resolves the critical capabilities and then the rest of the catalog.

The strategy report is written to monitor.report_path and appended to the run
history (monitor.history_db) unless --no-history is set.

Example:
  modscout probe --demo
  modscout probe --url https://web.example.com/`,
	RunE: runProbe,
}

func init() {
	addTargetFlags(probeCmd, &probeDemo, &probeURL)
	probeCmd.Flags().BoolVar(&probeNoHistory, "no-history", false, "Do not record the run in the history database")
	probeCmd.Flags().StringVar(&probeReport, "report", "", "Report path (default: monitor.report_path)")
}

func addTargetFlags(cmd *cobra.Command, demo *bool, url *string) {
	cmd.Flags().BoolVar(demo, "demo", false, "Use the built-in sample app instead of a browser")
	cmd.Flags().StringVar(url, "url", "", "Page to open (attaches to the first tab of --debugger-url when empty)")
}

// target is a host plus what the CLI needs to describe and release it.
type target struct {
	host  bootstrap.Host
	name  string
	close func() error
}

// openTarget returns the sample host for --demo, otherwise a started CDP host.
func openTarget(ctx context.Context, c *config.Config, demo bool, url string) (*target, error) {
	if demo {
		return &target{host: memhost.SampleApp(), name: "demo", close: func() error { return nil }}, nil
	}
	if url == "" && c.Browser.DebuggerURL == "" {
		return nil, errors.New("nothing to probe: pass --demo, --url, or set browser.debugger_url")
	}
	h := rodhost.New(rodhost.FromConfig(c, url))
	if err := h.Start(ctx); err != nil {
		return nil, err
	}
	name := url
	if name == "" {
		name = h.ControlURL()
	}
	return &target{host: h, name: name, close: h.Close}, nil
}

// bootOptions maps the config onto bootstrap options.
func bootOptions(c *config.Config, mon *monitor.Monitor) bootstrap.Options {
	return bootstrap.Options{
		ReadyTimeout:   c.GetReadyTimeout(),
		PollInterval:   c.GetPollInterval(),
		AcceptedStates: c.Readiness.AcceptedStates,
		SettleDelay:    c.GetSettleDelay(),
		Parallelism:    c.Bootstrap.Parallelism,
		WarnBudget:     c.Bootstrap.WarnBudget,
		Monitor:        mon,
	}
}

// probeResult is everything one probe run produced.
type probeResult struct {
	boot     *bootstrap.Bootstrapper
	surface  *bootstrap.Surface
	snapshot monitor.Snapshot
	target   string
	err      error
}

// probe runs one bootstrap against t. A failed run still yields a snapshot.
func probe(ctx context.Context, c *config.Config, t *target) probeResult {
	mon := monitor.New()
	boot := bootstrap.New(t.host, bootOptions(c, mon))
	s, err := boot.Run(ctx)
	if err != nil {
		logger.Warn("bootstrap did not complete", zap.String("state", boot.State().String()), zap.Error(err))
	}
	return probeResult{
		boot:     boot,
		surface:  s,
		snapshot: mon.Snapshot(boot.RunID()),
		target:   t.name,
		err:      err,
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	t, err := openTarget(ctx, cfg, probeDemo, probeURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.close(); err != nil {
			logger.Warn("closing target", zap.Error(err))
		}
	}()

	res := probe(ctx, cfg, t)
	if err := persistProbe(ctx, cfg, res, probeReport, !probeNoHistory); err != nil {
		return err
	}
	renderProbe(cmd.OutOrStdout(), res)

	if res.err != nil && res.boot.State() == bootstrap.Failed {
		return fmt.Errorf("probe failed: %w", res.err)
	}
	return nil
}

// persistProbe writes the JSON report and, when asked, appends the run to history.
func persistProbe(ctx context.Context, c *config.Config, res probeResult, reportPath string, history bool) error {
	if reportPath == "" {
		reportPath = c.Monitor.ReportPath
	}
	if reportPath != "" {
		if err := res.surface.Monitor().Save(reportPath, res.boot.RunID()); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		logger.Debug("report saved", zap.String("path", reportPath))
	}
	if !history || c.Monitor.HistoryDB == "" {
		return nil
	}

	h, err := store.Open(c.Monitor.HistoryDB)
	if err != nil {
		return err
	}
	defer h.Close()

	resolved := 0
	for _, name := range res.surface.Names() {
		if res.surface.Get(name) != nil {
			resolved++
		}
	}
	run := store.Run{
		ID:        res.boot.RunID(),
		Target:    res.target,
		Mechanism: string(res.boot.Mechanism()),
		State:     res.boot.State().String(),
		Modules:   res.boot.Modules(),
		Resolved:  resolved,
		Total:     len(res.boot.CapabilityNames()),
	}
	return h.Record(ctx, run, res.snapshot)
}

// writeLine is a small helper so render code reads top to bottom.
func writeLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
