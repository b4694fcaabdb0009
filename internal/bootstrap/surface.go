package bootstrap

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"modscout/internal/capability"
	"modscout/internal/monitor"
)

// Surface is the published capability boundary. It exists before the critical
// phase starts so consumers can watch capabilities appear one by one; Ready turns
// true once the critical phase has been attempted.
type Surface struct {
	boot *Bootstrapper

	mu       sync.RWMutex
	values   map[string]any
	resolver *capability.Resolver

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once
	failed    chan struct{}
	failOnce  sync.Once
	failErr   error
}

func newSurface(b *Bootstrapper) *Surface {
	return &Surface{
		boot:   b,
		values: make(map[string]any),
		ready:  make(chan struct{}),
		failed: make(chan struct{}),
	}
}

// RunID identifies the bootstrap run that owns this surface.
func (s *Surface) RunID() string { return s.boot.runID }

// State returns the current bootstrap phase.
func (s *Surface) State() State { return State(s.state.Load()) }

func (s *Surface) setState(st State) { s.state.Store(int32(st)) }

// Ready reports whether the critical phase has completed.
func (s *Surface) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the surface is ready, bootstrap fails or ctx ends.
func (s *Surface) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.failed:
		return s.failErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Surface) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Surface) markFailed(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		s.setState(Failed)
		close(s.failed)
	})
}

func (s *Surface) attach(r *capability.Resolver) {
	s.mu.Lock()
	s.resolver = r
	s.mu.Unlock()
}

func (s *Surface) publish(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == nil {
		delete(s.values, name)
		return
	}
	s.values[name] = v
}

// Get returns the last published value of a capability, or nil.
func (s *Surface) Get(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

// Resolve re-runs a capability's strategies now and republishes the outcome.
// Before the module table exists it returns nil.
func (s *Surface) Resolve(name string) any {
	s.mu.RLock()
	r := s.resolver
	s.mu.RUnlock()
	if r == nil {
		return nil
	}
	v := r.Resolve(name)
	if _, known := r.Spec(name); known {
		s.publish(name, v)
	}
	return v
}

// Names returns the capabilities currently published, sorted.
func (s *Surface) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the published values.
func (s *Surface) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Inspect describes one capability by resolving it live.
func (s *Surface) Inspect(name string) capability.Inspection {
	s.mu.RLock()
	r := s.resolver
	s.mu.RUnlock()
	if r == nil {
		return capability.InspectValue(name, "", nil)
	}
	return r.Inspect(name)
}

// Monitor returns the strategy monitor the run records to.
func (s *Surface) Monitor() *monitor.Monitor { return s.boot.mon }

// IsHostAvailable reports whether the host exposes a bundler at all.
func (s *Surface) IsHostAvailable() bool { return s.boot.hostAvailable() }

// EnsureInitialized runs bootstrap if it has not run yet and waits for it. It is
// idempotent.
func (s *Surface) EnsureInitialized(ctx context.Context) error {
	_, err := s.boot.Run(ctx)
	return err
}
