package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"modscout/internal/capability"
	"modscout/internal/host/memhost"
	"modscout/internal/modcache"
	"modscout/internal/modtable"
	"modscout/internal/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// callLog records the order strategies run in, across goroutines.
type callLog struct {
	mu    sync.Mutex
	names []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func recording(log *callLog, name string, phase capability.Phase, v any) capability.Spec {
	return capability.Spec{
		Name:  name,
		Phase: phase,
		Kind:  capability.KindObject,
		Valid: capability.Any,
		Strategies: []capability.Strategy{capability.Custom("record", func(*capability.Env) (any, error) {
			log.add(name)
			return v, nil
		})},
	}
}

func TestRun_CriticalBeforeFull(t *testing.T) {
	for _, par := range []int{1, 4} {
		log := &callLog{}
		specs := []capability.Spec{
			recording(log, "F1", capability.PhaseFull, 1),
			recording(log, "C1", capability.PhaseCritical, 1),
			recording(log, "F2", capability.PhaseFull, nil),
			recording(log, "C2", capability.PhaseCritical, nil),
			recording(log, "F3", capability.PhaseFull, 3),
			recording(log, "F4", capability.PhaseFull, 4),
		}
		b := New(memhost.SampleApp(), Options{Specs: specs, Parallelism: par, Monitor: monitor.New()})

		s, err := b.Run(context.Background())
		require.NoError(t, err)

		calls := log.list()
		require.Len(t, calls, 6)
		assert.ElementsMatch(t, []string{"C1", "C2"}, calls[:2], "parallelism %d", par)
		assert.ElementsMatch(t, []string{"F1", "F2", "F3", "F4"}, calls[2:], "parallelism %d", par)

		assert.True(t, s.Ready())
		assert.Equal(t, FullyResolved, s.State())
		assert.Equal(t, []string{"C1", "F1", "F3", "F4"}, s.Names())
	}
}

func TestRun_SurfaceObservableDuringPhases(t *testing.T) {
	var (
		b          *Bootstrapper
		sawCrit    State
		readyCrit  bool
		firstSeen  any
		sawFull    State
		readyFull  bool
		surfaceNil bool
	)
	specs := []capability.Spec{
		{Name: "A", Phase: capability.PhaseCritical, Valid: capability.Any, Strategies: []capability.Strategy{
			capability.Custom("a", func(*capability.Env) (any, error) {
				surfaceNil = b.Surface() == nil
				sawCrit = b.Surface().State()
				readyCrit = b.Surface().Ready()
				return "a", nil
			}),
		}},
		{Name: "B", Phase: capability.PhaseCritical, Valid: capability.Any, Strategies: []capability.Strategy{
			capability.Custom("b", func(*capability.Env) (any, error) {
				firstSeen = b.Surface().Get("A")
				return "b", nil
			}),
		}},
		{Name: "C", Phase: capability.PhaseFull, Valid: capability.Any, Strategies: []capability.Strategy{
			capability.Custom("c", func(*capability.Env) (any, error) {
				sawFull = b.Surface().State()
				readyFull = b.Surface().Ready()
				return "c", nil
			}),
		}},
	}
	b = New(memhost.SampleApp(), Options{Specs: specs, Monitor: monitor.New()})
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, surfaceNil)
	assert.Equal(t, TableBuilt, sawCrit)
	assert.False(t, readyCrit)
	assert.Equal(t, "a", firstSeen)
	assert.Equal(t, CriticalResolved, sawFull)
	assert.True(t, readyFull)
}

func TestRun_SampleAppPublishesCatalog(t *testing.T) {
	mon := monitor.New()
	b := New(memhost.SampleApp().SetMechanism(memhost.Chunks), Options{Monitor: mon, Parallelism: 3})
	s, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, s.Names(), len(capability.Catalog()))
	assert.NotNil(t, s.Get(capability.UserIdentity))
	assert.True(t, s.IsHostAvailable())
	assert.Equal(t, capability.StatusResolved, s.Inspect("Msg").Status)
	assert.NotNil(t, s.Resolve("Chat"))
	assert.Same(t, mon, s.Monitor())
	assert.NotEmpty(t, s.RunID())

	// The noise modules in the sample app produced diagnostics, not errors.
	assert.NotEmpty(t, b.Diagnostics().Failures())

	assert.Equal(t, modtable.MechanismChunks, b.Mechanism())
	assert.Equal(t, len(memhost.SampleApp().IDs()), b.Modules())
	assert.Len(t, b.CapabilityNames(), len(capability.Catalog()))
	assert.Equal(t, capability.UserIdentity, b.CapabilityNames()[0])
}

func TestRun_BundlerUnavailableFails(t *testing.T) {
	h := memhost.SampleApp().SetMechanism(memhost.None)
	b := New(h, Options{Monitor: monitor.New()})

	s, err := b.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, modtable.ErrBundlerUnavailable))
	assert.Equal(t, Failed, s.State())
	assert.False(t, s.Ready())
	assert.False(t, s.IsHostAvailable())
	assert.ErrorIs(t, s.WaitReady(context.Background()), modtable.ErrBundlerUnavailable)

	// Not retried within the same run.
	polls := b.Readiness().Polls
	_, again := b.Run(context.Background())
	assert.Equal(t, err, again)
	assert.Equal(t, polls, b.Readiness().Polls)
	assert.Nil(t, s.Resolve("Msg"))
}

// throwingHost is a page whose bundler globals throw when read.
type throwingHost struct{ *memhost.Host }

func (throwingHost) Require(context.Context) (modtable.RequireFunc, []modcache.ModuleID, bool) {
	panic("js: TypeError: Cannot read properties of undefined")
}

func (throwingHost) ChunkArray(context.Context) (modtable.ChunkArray, bool) {
	panic("js: TypeError: Cannot read properties of undefined")
}

func TestRun_ThrowingHostFailsEveryCaller(t *testing.T) {
	b := New(throwingHost{memhost.SampleApp()}, Options{Monitor: monitor.New()})
	s := b.Surface()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.EnsureInitialized(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, modtable.ErrBundlerUnavailable)
	}
	assert.Equal(t, Failed, s.State())
	assert.ErrorIs(t, s.WaitReady(context.Background()), modtable.ErrBundlerUnavailable)
}

func TestRun_ProceedsAfterReadinessTimeout(t *testing.T) {
	h := memhost.SampleApp().ReadyAfter(1000, memhost.ReadySignals)
	b := New(h, Options{
		ReadyTimeout: 40 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		Monitor:      monitor.New(),
	})

	s, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, b.Readiness().Ready)
	assert.Equal(t, FullyResolved, s.State())
}

func TestRun_CancelledWhileAwaitingReadiness(t *testing.T) {
	h := memhost.SampleApp().ReadyAfter(1000, memhost.ReadySignals)
	b := New(h, Options{ReadyTimeout: 10 * time.Second, PollInterval: 5 * time.Millisecond, Monitor: monitor.New()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	s, err := b.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, s.State())
}

func TestRun_SettleDelay(t *testing.T) {
	b := New(memhost.SampleApp(), Options{SettleDelay: 30 * time.Millisecond, Monitor: monitor.New(), Specs: []capability.Spec{
		{Name: "X", Phase: capability.PhaseCritical, Valid: capability.Any, Strategies: []capability.Strategy{capability.Custom("x", func(*capability.Env) (any, error) { return 1, nil })}},
	}})
	start := time.Now()
	_, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestEnsureInitialized_Idempotent(t *testing.T) {
	h := memhost.SampleApp()
	b := New(h, Options{Monitor: monitor.New()})
	s := b.Surface()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.EnsureInitialized(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	callsAfterFirst := h.Calls("100")

	require.NoError(t, s.EnsureInitialized(context.Background()))
	assert.Equal(t, callsAfterFirst, h.Calls("100"))
	assert.Equal(t, 1, callsAfterFirst)
}

func TestWaitReady_Cancelled(t *testing.T) {
	b := New(memhost.SampleApp(), Options{Monitor: monitor.New()})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Surface().WaitReady(ctx), context.DeadlineExceeded)
}

func TestSurface_BeforeRun(t *testing.T) {
	s := New(memhost.SampleApp(), Options{Monitor: monitor.New()}).Surface()
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Ready())
	assert.Nil(t, s.Resolve("Msg"))
	assert.Equal(t, capability.StatusUnresolved, s.Inspect("Msg").Status)
	assert.Empty(t, s.Snapshot())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "critical_resolved", CriticalResolved.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, Failed.Terminal())
	assert.False(t, TableBuilt.Terminal())
}
