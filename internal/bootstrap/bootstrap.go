// Package bootstrap sequences readiness, table building and the two resolution
// phases, publishing results onto a Surface as they arrive.
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"modscout/internal/capability"
	"modscout/internal/logging"
	"modscout/internal/modtable"
	"modscout/internal/monitor"
	"modscout/internal/readiness"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Host is everything bootstrap needs from the host environment.
type Host interface {
	readiness.Probe
	modtable.Host
	// Available reports whether a bundler mechanism is exposed.
	Available() bool
}

// Options tunes a run. Zero values take defaults.
type Options struct {
	ReadyTimeout   time.Duration
	PollInterval   time.Duration
	AcceptedStates []string
	// SettleDelay is waited between building the table and the critical phase.
	SettleDelay time.Duration
	// Parallelism bounds concurrent full-phase resolutions (default 1).
	Parallelism int
	// Specs overrides the built-in capability catalog.
	Specs []capability.Spec
	// Monitor defaults to monitor.Default().
	Monitor *monitor.Monitor
	// WarnBudget caps distinct module failure warnings.
	WarnBudget int
}

// Bootstrapper runs the bootstrap sequence once.
type Bootstrapper struct {
	host  Host
	opts  Options
	mon   *monitor.Monitor
	runID string
	log   *zap.Logger

	gate    *readiness.Gate
	builder *modtable.Builder
	surface *Surface

	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error
	ready   readiness.Result
	modules int
}

// New prepares a run against host. The returned bootstrapper's Surface is usable
// immediately, though empty.
func New(host Host, opts Options) *Bootstrapper {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	mon := opts.Monitor
	if mon == nil {
		mon = monitor.Default()
	}
	runID := uuid.NewString()
	b := &Bootstrapper{
		host:    host,
		opts:    opts,
		mon:     mon,
		runID:   runID,
		log:     logging.Get(logging.CategoryBoot).With(zap.String("run_id", runID)),
		gate:    readiness.NewGate(host, opts.AcceptedStates),
		builder: modtable.NewBuilder(host, modtable.NewDiagnostics(opts.WarnBudget)),
		done:    make(chan struct{}),
	}
	b.surface = newSurface(b)
	return b
}

// Surface returns the published surface.
func (b *Bootstrapper) Surface() *Surface { return b.surface }

// RunID identifies this run in logs and history.
func (b *Bootstrapper) RunID() string { return b.runID }

// State returns the current phase.
func (b *Bootstrapper) State() State { return b.surface.State() }

// Readiness returns how the readiness wait ended. Zero before the wait finishes.
func (b *Bootstrapper) Readiness() readiness.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Diagnostics returns the module failure sink of this run.
func (b *Bootstrapper) Diagnostics() *modtable.Diagnostics { return b.builder.Diagnostics() }

// Mechanism returns the bundling mechanism the module table came from.
func (b *Bootstrapper) Mechanism() modtable.Mechanism { return b.builder.Mechanism() }

// Modules returns the module table size, zero before the table is built.
func (b *Bootstrapper) Modules() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modules
}

// CapabilityNames lists every capability this run resolves, in catalog order.
func (b *Bootstrapper) CapabilityNames() []string {
	specs := b.opts.Specs
	if specs == nil {
		specs = capability.Catalog()
	}
	names := make([]string, len(specs))
	for i, sp := range specs {
		names[i] = sp.Name
	}
	return names
}

func (b *Bootstrapper) hostAvailable() (ok bool) {
	if b.host == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return b.host.Available()
}

// Run executes the sequence on the first call. Later and concurrent calls wait for
// that run and return its outcome; a failed run is not retried.
func (b *Bootstrapper) Run(ctx context.Context) (*Surface, error) {
	b.mu.Lock()
	if !b.started {
		b.started = true
		b.mu.Unlock()
		defer close(b.done)
		err := b.guardedRun(ctx)
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		return b.surface, err
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.surface, b.err
	case <-ctx.Done():
		return b.surface, ctx.Err()
	}
}

// guardedRun turns a panic escaping the host into a failed run.
func (b *Bootstrapper) guardedRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = b.fail(fmt.Errorf("%w: host panicked: %v", modtable.ErrBundlerUnavailable, r))
		}
	}()
	return b.run(ctx)
}

func (b *Bootstrapper) run(ctx context.Context) error {
	s := b.surface
	start := time.Now()

	s.setState(AwaitingReadiness)
	b.log.Info("awaiting host readiness")
	res := b.gate.AwaitReady(ctx, b.opts.ReadyTimeout, b.opts.PollInterval)
	b.mu.Lock()
	b.ready = res
	b.mu.Unlock()
	if res.Cancelled {
		return b.fail(fmt.Errorf("await readiness: %w", ctx.Err()))
	}
	if !res.Ready {
		b.log.Warn("proceeding without positive readiness signal", zap.Duration("waited", res.Elapsed))
	}

	cache, err := b.builder.Build(ctx)
	if err != nil {
		return b.fail(fmt.Errorf("build module table: %w", err))
	}
	b.mu.Lock()
	b.modules = cache.Len()
	b.mu.Unlock()
	s.setState(TableBuilt)
	b.log.Info("module table built",
		zap.String("mechanism", string(b.builder.Mechanism())),
		zap.Int("modules", cache.Len()))

	resolver := capability.NewResolver(cache, b.mon, b.opts.Specs)
	s.attach(resolver)

	if b.opts.SettleDelay > 0 {
		t := time.NewTimer(b.opts.SettleDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return b.fail(fmt.Errorf("settle delay: %w", ctx.Err()))
		}
	}

	critical := resolver.NamesIn(capability.PhaseCritical)
	found := 0
	for _, name := range critical {
		v := resolver.Resolve(name)
		s.publish(name, v)
		if v != nil {
			found++
		} else {
			b.log.Warn("critical capability unresolved", zap.String("capability", name))
		}
	}
	s.setState(CriticalResolved)
	s.markReady()
	b.log.Info("critical capabilities resolved", zap.Int("resolved", found), zap.Int("total", len(critical)))

	full := resolver.NamesIn(capability.PhaseFull)
	if err := b.resolveFull(ctx, resolver, full); err != nil {
		b.log.Warn("full phase interrupted", zap.Error(err))
		return fmt.Errorf("resolve full set: %w", err)
	}
	s.setState(FullyResolved)
	b.log.Info("bootstrap complete",
		zap.Int("published", len(s.Names())),
		zap.Int("capabilities", len(critical)+len(full)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// resolveFull resolves the remaining capabilities with bounded parallelism.
// Unresolved capabilities are not errors.
func (b *Bootstrapper) resolveFull(ctx context.Context, r *capability.Resolver, names []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Parallelism)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v := r.Resolve(name)
			b.surface.publish(name, v)
			if v == nil {
				b.log.Debug("capability unresolved", zap.String("capability", name))
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Bootstrapper) fail(err error) error {
	b.log.Error("bootstrap failed", zap.Error(err))
	b.surface.markFailed(err)
	return err
}
