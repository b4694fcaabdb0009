package readiness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPositive(t *testing.T) {
	g := NewGate(nil, nil)
	tests := []struct {
		name string
		in   Signals
		want bool
	}{
		{"nothing", Signals{}, false},
		{"ui only", Signals{UIRoot: true}, false},
		{"loader only", Signals{Loader: true}, false},
		{"both, no state", Signals{UIRoot: true, Loader: true}, true},
		{"accepted state", Signals{UIRoot: true, Loader: true, ConnState: "SYNCING"}, true},
		{"lowercase state", Signals{UIRoot: true, Loader: true, ConnState: "normal"}, true},
		{"rejected state", Signals{UIRoot: true, Loader: true, ConnState: "CONFLICT"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Positive(tt.in))
		})
	}
}

func TestPositive_CustomStates(t *testing.T) {
	g := NewGate(nil, []string{" online "})
	assert.True(t, g.Positive(Signals{UIRoot: true, Loader: true, ConnState: "ONLINE"}))
	assert.False(t, g.Positive(Signals{UIRoot: true, Loader: true, ConnState: "CONNECTED"}))
}

func TestAwaitReady_ImmediatelyReady(t *testing.T) {
	g := NewGate(ProbeFunc(func(context.Context) (Signals, error) {
		return Signals{UIRoot: true, Loader: true}, nil
	}), nil)

	res := g.AwaitReady(context.Background(), time.Second, 10*time.Millisecond)
	assert.True(t, res.Ready)
	assert.Equal(t, 1, res.Polls)
}

func TestAwaitReady_BecomesReady(t *testing.T) {
	var n atomic.Int32
	g := NewGate(ProbeFunc(func(context.Context) (Signals, error) {
		if n.Add(1) < 4 {
			return Signals{UIRoot: true}, nil
		}
		return Signals{UIRoot: true, Loader: true, ConnState: "CONNECTED"}, nil
	}), nil)

	res := g.AwaitReady(context.Background(), 2*time.Second, 5*time.Millisecond)
	assert.True(t, res.Ready)
	assert.Equal(t, 4, res.Polls)
	assert.Equal(t, "CONNECTED", res.Last.ConnState)
}

func TestAwaitReady_TimeoutNeverHangs(t *testing.T) {
	g := NewGate(ProbeFunc(func(context.Context) (Signals, error) {
		return Signals{}, nil
	}), nil)

	start := time.Now()
	res := g.AwaitReady(context.Background(), 100*time.Millisecond, 10*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, res.Ready)
	assert.False(t, res.Cancelled)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	// Generous upper bound for loaded CI machines.
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.GreaterOrEqual(t, res.Polls, 2)
}

func TestAwaitReady_SlowProbeBoundedByTimeout(t *testing.T) {
	// The probe only returns when its context ends or after two seconds.
	g := NewGate(ProbeFunc(func(ctx context.Context) (Signals, error) {
		select {
		case <-ctx.Done():
			return Signals{}, ctx.Err()
		case <-time.After(2 * time.Second):
			return Signals{UIRoot: true, Loader: true}, nil
		}
	}), nil)

	start := time.Now()
	res := g.AwaitReady(context.Background(), 100*time.Millisecond, 10*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, res.Ready)
	assert.False(t, res.Cancelled)
	assert.Equal(t, 1, res.Polls)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestAwaitReady_ProbeFailuresAreNegative(t *testing.T) {
	var n atomic.Int32
	g := NewGate(ProbeFunc(func(context.Context) (Signals, error) {
		switch n.Add(1) {
		case 1:
			return Signals{UIRoot: true, Loader: true}, errors.New("evaluation failed")
		case 2:
			panic("document is not defined")
		default:
			return Signals{UIRoot: true, Loader: true}, nil
		}
	}), nil)

	res := g.AwaitReady(context.Background(), time.Second, 5*time.Millisecond)
	assert.True(t, res.Ready)
	assert.Equal(t, 3, res.Polls)
}

func TestAwaitReady_Cancelled(t *testing.T) {
	g := NewGate(ProbeFunc(func(context.Context) (Signals, error) {
		return Signals{}, nil
	}), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := g.AwaitReady(ctx, 10*time.Second, 5*time.Millisecond)
	assert.True(t, res.Cancelled)
	assert.False(t, res.Ready)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAwaitReady_NilProbeTimesOut(t *testing.T) {
	res := NewGate(nil, nil).AwaitReady(context.Background(), 20*time.Millisecond, 5*time.Millisecond)
	assert.False(t, res.Ready)
}
