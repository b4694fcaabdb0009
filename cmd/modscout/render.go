package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"modscout/internal/capability"
	"modscout/internal/monitor"
	"modscout/internal/store"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	missStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	nameStyle  = lipgloss.NewStyle().Width(22)
)

func renderProbe(w io.Writer, res probeResult) {
	b := res.boot
	title := fmt.Sprintf("modscout · %s", res.target)
	fmt.Fprintln(w, headerStyle.Render(title))
	writeLine(w, "%s %s   %s %s   %s %d",
		mutedStyle.Render("state"), b.State(),
		mutedStyle.Render("mechanism"), orDash(string(b.Mechanism())),
		mutedStyle.Render("modules"), b.Modules())
	if r := b.Readiness(); !r.Ready && !r.Cancelled && r.Polls > 0 {
		writeLine(w, "%s", missStyle.Render(fmt.Sprintf("readiness not confirmed after %s, proceeded anyway", r.Elapsed.Round(1e6))))
	}
	if res.err != nil {
		writeLine(w, "%s %v", missStyle.Render("error"), res.err)
	}
	fmt.Fprintln(w)

	resolved := 0
	names := b.CapabilityNames()
	for _, name := range names {
		stats := res.snapshot.Report[name]
		mark := missStyle.Render("✗")
		if res.surface.Get(name) != nil {
			mark = okStyle.Render("✓")
			resolved++
		}
		writeLine(w, "%s %s %s", mark, nameStyle.Render(name), mutedStyle.Render(strategySummary(stats)))
	}
	fmt.Fprintln(w)
	writeLine(w, "%d/%d capabilities resolved", resolved, len(names))
	if n := b.Diagnostics().Count(); n > 0 {
		writeLine(w, "%s", mutedStyle.Render(fmt.Sprintf("%d modules failed to load", n)))
	}
}

// strategySummary renders "winner #2 · redundant 1,3".
func strategySummary(s monitor.CapabilityStats) string {
	var parts []string
	for _, idx := range sortedIndices(s) {
		if idx != monitor.NoStrategy && s.Strategies[idx].Successes > 0 {
			parts = append(parts, fmt.Sprintf("winner #%d", idx))
		}
	}
	if dead := s.Redundant(); len(dead) > 0 {
		parts = append(parts, "redundant "+joinInts(dead))
	}
	return strings.Join(parts, " · ")
}

func sortedIndices(s monitor.CapabilityStats) []int {
	out := make([]int, 0, len(s.Strategies))
	for idx := range s.Strategies {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func renderReport(w io.Writer, snap monitor.Snapshot) {
	fmt.Fprintln(w, headerStyle.Render("strategy report · "+orDash(snap.RunID)))
	writeLine(w, "%s %s", mutedStyle.Render("taken"), snap.TakenAt.Format("2006-01-02 15:04:05"))
	names := make([]string, 0, len(snap.Report))
	for name := range snap.Report {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := snap.Report[name]
		writeLine(w, "%s calls=%d %s", nameStyle.Render(name), stats.Calls, mutedStyle.Render(strategySummary(stats)))
	}
}

func renderInspection(w io.Writer, in capability.Inspection) {
	status := okStyle.Render(string(in.Status))
	if in.Status != capability.StatusResolved {
		status = missStyle.Render(string(in.Status))
	}
	fmt.Fprintln(w, headerStyle.Render(in.Name))
	writeLine(w, "%s %s   %s %s", mutedStyle.Render("status"), status, mutedStyle.Render("kind"), orDash(string(in.Kind)))
	writeLine(w, "%s %s", mutedStyle.Render("methods"), orDash(strings.Join(in.MethodNames, ", ")))
	writeLine(w, "%s %s", mutedStyle.Render("properties"), orDash(strings.Join(in.PropertyNames, ", ")))
}

func renderRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		writeLine(w, "%s", mutedStyle.Render("no runs recorded"))
		return
	}
	for _, r := range runs {
		writeLine(w, "%s  %s  %-16s %3d/%-3d %s",
			mutedStyle.Render(r.TakenAt.Local().Format("2006-01-02 15:04")),
			r.ID[:min(8, len(r.ID))], r.State, r.Resolved, r.Total, r.Target)
	}
}

func renderDead(w io.Writer, dead []store.DeadStrategy, minRuns int) {
	if len(dead) == 0 {
		writeLine(w, "%s", okStyle.Render(fmt.Sprintf("no strategy has been dead for %d runs", minRuns)))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("dead strategies (>= %d runs)", minRuns)))
	for _, d := range dead {
		writeLine(w, "%s #%d  %s", nameStyle.Render(d.Capability), d.Strategy,
			mutedStyle.Render(fmt.Sprintf("%d runs, %d attempts, 0 successes", d.Runs, d.Attempts)))
	}
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
