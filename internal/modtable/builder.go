// Package modtable detects the host page's bundling mechanism and normalises its
// module table into a modcache.Registry of panic-safe accessors.
package modtable

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"modscout/internal/logging"
	"modscout/internal/modcache"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBundlerUnavailable is returned when the page exposes neither a require-by-id
// function nor a chunk array.
var ErrBundlerUnavailable = errors.New("bundler unavailable")

// Mechanism names the bundling mechanism a table was built from.
type Mechanism string

const (
	MechanismNone    Mechanism = ""
	MechanismRequire Mechanism = "require"
	MechanismChunks  Mechanism = "chunks"
)

// Builder turns a Host's module table into a module cache. Build is idempotent.
type Builder struct {
	host Host
	diag *Diagnostics

	mu        sync.Mutex
	cache     *modcache.Cache
	mechanism Mechanism
}

// NewBuilder creates a builder. A nil diag gets a default sink.
func NewBuilder(host Host, diag *Diagnostics) *Builder {
	if diag == nil {
		diag = NewDiagnostics(0)
	}
	return &Builder{host: host, diag: diag}
}

// Diagnostics returns the builder's failure sink.
func (b *Builder) Diagnostics() *Diagnostics { return b.diag }

// Mechanism returns the mechanism the table was built from, empty before Build.
func (b *Builder) Mechanism() Mechanism {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mechanism
}

// Built reports whether Build has succeeded.
func (b *Builder) Built() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache != nil
}

// Build detects the bundler and returns the module cache. Once it has succeeded,
// later calls return the same cache without touching the host.
func (b *Builder) Build(ctx context.Context) (*modcache.Cache, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cache != nil {
		return b.cache, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.host == nil {
		return nil, ErrBundlerUnavailable
	}

	log := logging.Get(logging.CategoryTable)

	req, ids, ok, err := safeRequire(ctx, b.host)
	if err != nil {
		// A broken require global does not rule out the chunk array.
		log.Warn("reading require failed", zap.Error(err))
	}
	if ok && req != nil {
		reg := modcache.NewRegistry()
		for _, id := range ids {
			reg.Add(id, b.accessor(id, req))
		}
		b.cache = modcache.New(reg)
		b.mechanism = MechanismRequire
		log.Info("module table built", zap.String("mechanism", string(MechanismRequire)), zap.Int("modules", reg.Len()))
		return b.cache, nil
	}

	arr, ok, err := safeChunkArray(ctx, b.host)
	if err != nil {
		return nil, fmt.Errorf("%w: read chunk array: %v", ErrBundlerUnavailable, err)
	}
	if ok && arr != nil {
		reg, err := b.fromChunks(arr)
		if err != nil {
			return nil, err
		}
		b.cache = modcache.New(reg)
		b.mechanism = MechanismChunks
		log.Info("module table built", zap.String("mechanism", string(MechanismChunks)), zap.Int("modules", reg.Len()))
		return b.cache, nil
	}

	return nil, ErrBundlerUnavailable
}

// fromChunks pushes a probe chunk to capture the bundler's require function, then
// registers every module id the existing chunks define.
func (b *Builder) fromChunks(arr ChunkArray) (*modcache.Registry, error) {
	var captured RequireFunc
	probe := Chunk{
		IDs: []string{"modscout-probe-" + uuid.NewString()},
		Runtime: func(req RequireFunc) {
			captured = req
		},
	}
	if err := safePush(arr, probe); err != nil {
		return nil, fmt.Errorf("%w: push probe chunk: %v", ErrBundlerUnavailable, err)
	}
	if captured == nil {
		return nil, fmt.Errorf("%w: chunk runtime did not expose require", ErrBundlerUnavailable)
	}

	chunks, err := safeChunks(arr)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %v", ErrBundlerUnavailable, err)
	}
	reg := modcache.NewRegistry()
	for _, chunk := range chunks {
		for _, id := range chunk.Modules {
			reg.Add(id, b.accessor(id, captured))
		}
	}
	return reg, nil
}

// Host calls touch page values and may panic (a thrown JS exception in wasm).
// The safe* wrappers turn that into an error.

func safeRequire(ctx context.Context, h Host) (req RequireFunc, ids []modcache.ModuleID, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			req, ids, ok = nil, nil, false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	req, ids, ok = h.Require(ctx)
	return req, ids, ok, nil
}

func safeChunkArray(ctx context.Context, h Host) (arr ChunkArray, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			arr, ok = nil, false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	arr, ok = h.ChunkArray(ctx)
	return arr, ok, nil
}

func safeChunks(arr ChunkArray) (chunks []Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return arr.Chunks(), nil
}

func safePush(arr ChunkArray, c Chunk) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	arr.Push(c)
	return nil
}

// accessor wraps require(id) so that host failures become nil plus a one-shot
// diagnostic.
func (b *Builder) accessor(id modcache.ModuleID, req RequireFunc) modcache.Factory {
	return func() (v any) {
		defer func() {
			if r := recover(); r != nil {
				v = nil
				b.diag.ModuleFailed(id, fmt.Sprint(r))
			}
		}()
		v, err := req(id)
		if err != nil {
			b.diag.ModuleFailed(id, err.Error())
			return nil
		}
		return v
	}
}
