// Package readiness waits for the host application to look initialised before the
// module table is touched.
package readiness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modscout/internal/logging"

	"go.uber.org/zap"
)

// DefaultAcceptedStates are the connection states that count as "up enough".
var DefaultAcceptedStates = []string{"CONNECTED", "OPENING", "PAIRING", "SYNCING", "NORMAL"}

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Signals is one sample of the host environment.
type Signals struct {
	UIRoot    bool   `json:"ui_root"`
	Loader    bool   `json:"loader"`
	ConnState string `json:"conn_state,omitempty"` // empty when not sampled
}

// Probe samples the host environment.
type Probe interface {
	Sample(ctx context.Context) (Signals, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (Signals, error)

func (f ProbeFunc) Sample(ctx context.Context) (Signals, error) { return f(ctx) }

// Result describes how a wait ended.
type Result struct {
	Ready     bool
	Cancelled bool
	Elapsed   time.Duration
	Polls     int
	Last      Signals
}

// Gate polls a Probe until the host looks ready.
type Gate struct {
	probe    Probe
	accepted map[string]bool
}

// NewGate creates a gate. An empty accepted list uses DefaultAcceptedStates.
func NewGate(probe Probe, accepted []string) *Gate {
	if len(accepted) == 0 {
		accepted = DefaultAcceptedStates
	}
	set := make(map[string]bool, len(accepted))
	for _, s := range accepted {
		set[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &Gate{probe: probe, accepted: set}
}

// Positive reports whether s means the host is ready.
func (g *Gate) Positive(s Signals) bool {
	if !s.UIRoot || !s.Loader {
		return false
	}
	if s.ConnState == "" {
		return true
	}
	return g.accepted[strings.ToUpper(s.ConnState)]
}

// AwaitReady polls every pollInterval until a positive sample, timeout or ctx
// cancellation, whichever comes first. It never fails: a timeout returns with
// Ready false and the caller proceeds anyway. The probe sees a context bounded by
// timeout, so a slow sample cannot hold the wait past it.
func (g *Gate) AwaitReady(ctx context.Context, timeout, pollInterval time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	log := logging.Get(logging.CategoryReadiness)

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var res Result
	for {
		res.Polls++
		res.Last = g.sample(waitCtx)
		if g.Positive(res.Last) {
			res.Ready = true
			res.Elapsed = time.Since(start)
			log.Debug("host ready", zap.Duration("elapsed", res.Elapsed), zap.Int("polls", res.Polls))
			return res
		}

		select {
		case <-waitCtx.Done():
			res.Elapsed = time.Since(start)
			if ctx.Err() != nil {
				res.Cancelled = true
				log.Debug("readiness wait cancelled", zap.Error(ctx.Err()))
				return res
			}
			log.Warn("host readiness timed out, continuing",
				zap.Duration("timeout", timeout),
				zap.Int("polls", res.Polls),
				zap.Bool("ui_root", res.Last.UIRoot),
				zap.Bool("loader", res.Last.Loader),
				zap.String("conn_state", res.Last.ConnState))
			return res
		case <-ticker.C:
		}
	}
}

// sample treats probe errors and panics as a negative sample.
func (g *Gate) sample(ctx context.Context) (s Signals) {
	if g.probe == nil {
		return Signals{}
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryReadiness).Debug("probe panicked", zap.String("panic", fmt.Sprint(r)))
			s = Signals{}
		}
	}()
	s, err := g.probe.Sample(ctx)
	if err != nil {
		logging.Get(logging.CategoryReadiness).Debug("probe failed", zap.Error(err))
		return Signals{}
	}
	return s
}
