// Package memhost is an in-process host: a scripted module table and readiness
// signals. The CLI's demo mode and most tests run against it.
package memhost

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"modscout/internal/modcache"
	"modscout/internal/modtable"
	"modscout/internal/readiness"
)

// Mechanism selects how the host exposes its modules.
type Mechanism int

const (
	// Require exposes a require-by-id function.
	Require Mechanism = iota
	// Chunks exposes a push-based chunk array.
	Chunks
	// None exposes no bundler at all.
	None
)

// Factory produces a module the way a host factory does: it may fail or panic.
type Factory func() (any, error)

// Host is a scripted host application. It is safe for concurrent use.
type Host struct {
	mu        sync.Mutex
	mechanism Mechanism
	order     []modcache.ModuleID
	factories map[modcache.ModuleID]Factory
	calls     map[modcache.ModuleID]int
	signals   readiness.Signals
	readyAt   int
	samples   int
	chunkSize int
	chunks    *chunkArray
}

// New creates an empty host using the require mechanism. Signals start negative.
func New() *Host {
	return &Host{
		factories: make(map[modcache.ModuleID]Factory),
		calls:     make(map[modcache.ModuleID]int),
		chunkSize: 8,
	}
}

// SetMechanism switches the bundling mechanism.
func (h *Host) SetMechanism(m Mechanism) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mechanism = m
	h.chunks = nil
	return h
}

// Define registers a module factory.
func (h *Host) Define(id modcache.ModuleID, f Factory) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.factories[id]; !ok {
		h.order = append(h.order, id)
	}
	h.factories[id] = f
	return h
}

// DefineValue registers a module that always evaluates to v.
func (h *Host) DefineValue(id modcache.ModuleID, v any) *Host {
	return h.Define(id, func() (any, error) { return v, nil })
}

// SetSignals fixes the readiness signals returned by Sample.
func (h *Host) SetSignals(s readiness.Signals) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = s
	h.readyAt = 0
	return h
}

// ReadyAfter makes Sample report s only from the n-th sample on, and empty signals
// before that.
func (h *Host) ReadyAfter(n int, s readiness.Signals) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = s
	h.readyAt = n
	h.samples = 0
	return h
}

// Sample implements readiness.Probe.
func (h *Host) Sample(ctx context.Context) (readiness.Signals, error) {
	if err := ctx.Err(); err != nil {
		return readiness.Signals{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples++
	if h.samples < h.readyAt {
		return readiness.Signals{}, nil
	}
	return h.signals, nil
}

// Available reports whether any bundler mechanism is exposed.
func (h *Host) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mechanism != None
}

// Calls returns how many times id's factory has run.
func (h *Host) Calls(id modcache.ModuleID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[id]
}

// IDs returns the defined module ids in definition order.
func (h *Host) IDs() []modcache.ModuleID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]modcache.ModuleID(nil), h.order...)
}

func (h *Host) require(id modcache.ModuleID) (any, error) {
	h.mu.Lock()
	f, ok := h.factories[id]
	if ok {
		h.calls[id]++
	}
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("cannot find module '%s'", id)
	}
	return f()
}

// Require implements modtable.Host.
func (h *Host) Require(context.Context) (modtable.RequireFunc, []modcache.ModuleID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mechanism != Require {
		return nil, nil, false
	}
	return h.require, append([]modcache.ModuleID(nil), h.order...), true
}

// ChunkArray implements modtable.Host. Modules are split over chunks of a fixed size.
func (h *Host) ChunkArray(context.Context) (modtable.ChunkArray, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mechanism != Chunks {
		return nil, false
	}
	if h.chunks == nil {
		h.chunks = &chunkArray{req: h.require}
		for i := 0; i < len(h.order); i += h.chunkSize {
			end := i + h.chunkSize
			if end > len(h.order) {
				end = len(h.order)
			}
			h.chunks.entries = append(h.chunks.entries, modtable.Chunk{
				IDs:     []string{strconv.Itoa(i / h.chunkSize)},
				Modules: append([]modcache.ModuleID(nil), h.order[i:end]...),
			})
		}
	}
	return h.chunks, true
}

type chunkArray struct {
	mu      sync.Mutex
	entries []modtable.Chunk
	req     modtable.RequireFunc
}

func (a *chunkArray) Chunks() []modtable.Chunk {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]modtable.Chunk(nil), a.entries...)
}

func (a *chunkArray) Push(c modtable.Chunk) {
	a.mu.Lock()
	a.entries = append(a.entries, c)
	a.mu.Unlock()
	if c.Runtime != nil {
		c.Runtime(a.req)
	}
}
