//go:build js && wasm

// Command modscout-wasm is loaded by the extension's content script. It bootstraps
// against the page it runs in and publishes the capability surface as
// window.modscout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"
	"time"

	"modscout/internal/bootstrap"
	"modscout/internal/capability"
	"modscout/internal/config"
	"modscout/internal/host/wasmhost"
	"modscout/internal/logging"
	"modscout/internal/monitor"

	"go.uber.org/zap"
)

// pageConfig is the optional window.modscoutConfig object.
type pageConfig struct {
	RequireGlobal  string   `json:"requireGlobal"`
	ChunkGlobal    string   `json:"chunkGlobal"`
	UIRootSelector string   `json:"uiRootSelector"`
	ConnStateExpr  string   `json:"connStateExpr"`
	AcceptedStates []string `json:"acceptedStates"`
	ReadyTimeoutMs int      `json:"readyTimeoutMs"`
	PollMs         int      `json:"pollMs"`
	SettleMs       int      `json:"settleMs"`
	Parallelism    int      `json:"parallelism"`
	LogLevel       string   `json:"logLevel"`
}

// loadPageConfig returns the defaults overlaid with window.modscoutConfig. A
// malformed object is reported and the defaults are kept.
func loadPageConfig() (pageConfig, error) {
	def := config.DefaultConfig()
	pc := pageConfig{
		RequireGlobal:  def.Bundler.RequireGlobal,
		ChunkGlobal:    def.Bundler.ChunkGlobal,
		UIRootSelector: def.Readiness.UIRootSelector,
		AcceptedStates: def.Readiness.AcceptedStates,
		ReadyTimeoutMs: int(def.GetReadyTimeout() / time.Millisecond),
		PollMs:         int(def.GetPollInterval() / time.Millisecond),
		Parallelism:    def.Bootstrap.Parallelism,
		LogLevel:       def.Logging.Level,
	}
	raw := js.Global().Get("modscoutConfig")
	if raw.IsUndefined() || raw.IsNull() {
		return pc, nil
	}
	text := js.Global().Get("JSON").Call("stringify", raw).String()
	override := pc
	if err := json.Unmarshal([]byte(text), &override); err != nil {
		return pc, fmt.Errorf("window.modscoutConfig: %w", err)
	}
	return override, nil
}

func main() {
	pc, cfgErr := loadPageConfig()
	if err := logging.Initialize(logging.Options{Level: pc.LogLevel, Format: "console", Sink: wasmhost.ConsoleSink()}); err != nil {
		js.Global().Get("console").Call("error", "modscout: "+err.Error())
	}
	log := logging.Get(logging.CategoryBoot)
	if cfgErr != nil {
		log.Warn("ignoring page config, using defaults", zap.Error(cfgErr))
	}

	host := wasmhost.New(wasmhost.Config{
		RequireGlobal:  pc.RequireGlobal,
		ChunkGlobal:    pc.ChunkGlobal,
		UIRootSelector: pc.UIRootSelector,
		ConnStateExpr:  pc.ConnStateExpr,
	})
	boot := bootstrap.New(host, bootstrap.Options{
		ReadyTimeout:   time.Duration(pc.ReadyTimeoutMs) * time.Millisecond,
		PollInterval:   time.Duration(pc.PollMs) * time.Millisecond,
		AcceptedStates: pc.AcceptedStates,
		SettleDelay:    time.Duration(pc.SettleMs) * time.Millisecond,
		Parallelism:    pc.Parallelism,
		Monitor:        monitor.New(),
	})
	s := boot.Surface()

	js.Global().Set("modscout", surfaceAPI(s))

	go func() {
		if err := s.EnsureInitialized(context.Background()); err != nil {
			log.Error("bootstrap failed", zap.Error(err))
		}
	}()
	select {}
}

// surfaceAPI builds the window.modscout object. ready, state and every catalog
// capability are read-only getter properties, so modscout.ready is a boolean and
// modscout.Chat is the resolved value or null. Functions that wait return promises
// so the page's event loop never blocks.
func surfaceAPI(s *bootstrap.Surface) js.Value {
	object := js.Global().Get("Object")
	api := object.New()
	fn := func(name string, f func(args []js.Value) any) {
		api.Set(name, js.FuncOf(func(this js.Value, args []js.Value) any { return f(args) }))
	}
	getter := func(name string, f func() any) {
		desc := object.New()
		desc.Set("enumerable", true)
		desc.Set("get", js.FuncOf(func(js.Value, []js.Value) any { return f() }))
		object.Call("defineProperty", api, name, desc)
	}

	getter("ready", func() any { return s.Ready() })
	getter("state", func() any { return s.State().String() })
	for _, sp := range capability.Catalog() {
		name := sp.Name
		getter(name, func() any { return wasmhost.ToJS(s.Get(name)) })
	}
	fn("names", func([]js.Value) any {
		names := s.Names()
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = n
		}
		return out
	})
	fn("get", func(args []js.Value) any {
		if len(args) == 0 {
			return js.Null()
		}
		return wasmhost.ToJS(s.Get(args[0].String()))
	})
	fn("resolve", func(args []js.Value) any {
		if len(args) == 0 {
			return js.Null()
		}
		return wasmhost.ToJS(s.Resolve(args[0].String()))
	})
	fn("inspect", func(args []js.Value) any {
		if len(args) == 0 {
			return js.Null()
		}
		return toJSON(s.Inspect(args[0].String()))
	})
	fn("report", func([]js.Value) any {
		return toJSON(s.Monitor().Snapshot(s.RunID()))
	})
	fn("isHostAvailable", func([]js.Value) any { return s.IsHostAvailable() })
	fn("ensureInitialized", func([]js.Value) any {
		return promise(func() error { return s.EnsureInitialized(context.Background()) })
	})
	fn("whenReady", func([]js.Value) any {
		return promise(func() error { return s.WaitReady(context.Background()) })
	})
	return api
}

// toJSON hands a Go value to the page as a parsed JSON object.
func toJSON(v any) js.Value {
	data, err := json.Marshal(v)
	if err != nil {
		return js.Null()
	}
	return js.Global().Get("JSON").Call("parse", string(data))
}

// promise runs work on its own goroutine and settles a JS Promise with the outcome.
func promise(work func() error) js.Value {
	var executor js.Func
	executor = js.FuncOf(func(this js.Value, args []js.Value) any {
		resolve, reject := args[0], args[1]
		go func() {
			defer executor.Release()
			if err := work(); err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(true)
		}()
		return nil
	})
	return js.Global().Get("Promise").New(executor)
}
