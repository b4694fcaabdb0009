//go:build js && wasm

// Package wasmhost runs the engine inside the page itself. Compiled to WebAssembly
// and loaded by the extension's content script, it reads the bundler globals
// directly through syscall/js.
package wasmhost

import (
	"context"
	"fmt"
	"strings"
	"syscall/js"

	"modscout/internal/logging"
	"modscout/internal/modcache"
	"modscout/internal/modtable"
	"modscout/internal/readiness"

	"go.uber.org/zap"
)

// Config names the page globals to read.
type Config struct {
	RequireGlobal  string
	ChunkGlobal    string
	UIRootSelector string
	ConnStateExpr  string // evaluated in the page's global scope; empty skips the signal
}

// Host is the page the module is running in.
type Host struct {
	cfg    Config
	global js.Value
	log    *zap.Logger
}

// New returns a host over the current page's global object.
func New(cfg Config) *Host {
	return &Host{cfg: cfg, global: js.Global(), log: logging.Get(logging.CategoryBrowser)}
}

// Sample reads the readiness signals straight off the page.
func (h *Host) Sample(ctx context.Context) (s readiness.Signals, err error) {
	if err := ctx.Err(); err != nil {
		return readiness.Signals{}, err
	}
	defer recoverJS(&err)

	s.UIRoot = true
	if h.cfg.UIRootSelector != "" {
		doc := h.global.Get("document")
		s.UIRoot = truthy(doc) && truthy(doc.Call("querySelector", h.cfg.UIRootSelector))
	}
	s.Loader = h.Available()
	if h.cfg.ConnStateExpr != "" {
		s.ConnState = h.connState()
	}
	return s, nil
}

func (h *Host) connState() (state string) {
	defer func() {
		if r := recover(); r != nil {
			state = ""
		}
	}()
	v := h.global.Call("eval", h.cfg.ConnStateExpr)
	if !truthy(v) {
		return ""
	}
	return jsString(v)
}

// Available reports whether the page exposes a require function or chunk array.
func (h *Host) Available() bool {
	return h.requireValue().Type() == js.TypeFunction || h.chunkValue().Truthy()
}

func (h *Host) requireValue() js.Value {
	if h.cfg.RequireGlobal == "" {
		return js.Undefined()
	}
	return h.global.Get(h.cfg.RequireGlobal)
}

func (h *Host) chunkValue() js.Value {
	if h.cfg.ChunkGlobal == "" {
		return js.Undefined()
	}
	v := h.global.Get(h.cfg.ChunkGlobal)
	if !h.global.Get("Array").Call("isArray", v).Bool() {
		return js.Undefined()
	}
	return v
}

// Require returns the page's require-by-id function and its module table ids.
func (h *Host) Require(ctx context.Context) (modtable.RequireFunc, []modcache.ModuleID, bool) {
	req := h.requireValue()
	if ctx.Err() != nil || req.Type() != js.TypeFunction {
		return nil, nil, false
	}
	table := req.Get("m")
	if !truthy(table) {
		table = req.Get("c")
	}
	var ids []modcache.ModuleID
	if truthy(table) {
		ids = toModuleIDs(objectKeys(table))
	}
	return h.requireFunc(req), ids, true
}

func (h *Host) requireFunc(req js.Value) modtable.RequireFunc {
	return func(id modcache.ModuleID) (v any, err error) {
		defer recoverJS(&err)
		return wrap(req.Invoke(string(id)), js.Undefined()), nil
	}
}

// ChunkArray returns the page's chunk registration array.
func (h *Host) ChunkArray(ctx context.Context) (modtable.ChunkArray, bool) {
	arr := h.chunkValue()
	if ctx.Err() != nil || arr.IsUndefined() {
		return nil, false
	}
	return &chunkArray{h: h, arr: arr}, true
}

type chunkArray struct {
	h   *Host
	arr js.Value
}

func (a *chunkArray) Chunks() []modtable.Chunk {
	n := a.arr.Length()
	chunks := make([]modtable.Chunk, 0, n)
	for i := 0; i < n; i++ {
		entry := a.arr.Index(i)
		if !truthy(entry) {
			continue
		}
		var c modtable.Chunk
		if ids := entry.Index(0); truthy(ids) {
			for j := 0; j < ids.Length(); j++ {
				c.IDs = append(c.IDs, jsString(ids.Index(j)))
			}
		}
		if mods := entry.Index(1); truthy(mods) {
			c.Modules = toModuleIDs(objectKeys(mods))
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// Push appends a chunk whose runtime hands the bundler's require back to Go.
func (a *chunkArray) Push(c modtable.Chunk) {
	var captured js.Value
	runtime := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			captured = args[0]
		}
		return nil
	})
	defer runtime.Release()

	ids := make([]any, len(c.IDs))
	for i, id := range c.IDs {
		ids[i] = id
	}
	a.arr.Call("push", js.ValueOf([]any{ids, map[string]any{}, runtime}))

	if captured.Type() != js.TypeFunction {
		a.h.log.Debug("chunk runtime did not run", zap.Strings("ids", c.IDs))
		return
	}
	if c.Runtime != nil {
		c.Runtime(a.h.requireFunc(captured))
	}
}

func objectKeys(v js.Value) []string {
	keys := js.Global().Get("Object").Call("keys", v)
	out := make([]string, keys.Length())
	for i := range out {
		out[i] = keys.Index(i).String()
	}
	return out
}

func toModuleIDs(keys []string) []modcache.ModuleID {
	ids := make([]modcache.ModuleID, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			ids = append(ids, modcache.ModuleID(k))
		}
	}
	return ids
}

func truthy(v js.Value) bool {
	return !v.IsUndefined() && !v.IsNull() && v.Truthy()
}

func jsString(v js.Value) string {
	if v.Type() == js.TypeString {
		return v.String()
	}
	return js.Global().Get("String").Invoke(v).String()
}

// recoverJS turns a thrown JS exception into an error.
func recoverJS(err *error) {
	if r := recover(); r != nil {
		if jsErr, ok := r.(js.Error); ok {
			*err = fmt.Errorf("js: %s", jsErr.Error())
			return
		}
		*err = fmt.Errorf("js: %v", r)
	}
}
