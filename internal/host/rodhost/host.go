// Package rodhost drives a real page over the Chrome DevTools Protocol. It reaches
// the page's bundler globals through go-rod and hands every page value back as a
// remote object view, so the engine can resolve capabilities against a live app
// from outside the browser.
package rodhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modscout/internal/config"
	"modscout/internal/logging"
	"modscout/internal/modcache"
	"modscout/internal/modtable"
	"modscout/internal/readiness"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds the CDP host settings.
type Config struct {
	URL               string // page to open; empty attaches to the first open tab
	DebuggerURL       string // attach to a running Chrome when set, otherwise launch one
	Headless          bool
	NavigationTimeout time.Duration
	EvalTimeout       time.Duration
	RequireGlobal     string
	ChunkGlobal       string
	UIRootSelector    string
	ConnStateExpr     string
}

// FromConfig builds a host config for url from the modscout config.
func FromConfig(cfg *config.Config, url string) Config {
	return Config{
		URL:               url,
		DebuggerURL:       cfg.Browser.DebuggerURL,
		Headless:          cfg.Browser.Headless,
		NavigationTimeout: cfg.GetNavigationTimeout(),
		EvalTimeout:       cfg.GetEvalTimeout(),
		RequireGlobal:     cfg.Bundler.RequireGlobal,
		ChunkGlobal:       cfg.Bundler.ChunkGlobal,
		UIRootSelector:    cfg.Readiness.UIRootSelector,
		ConnStateExpr:     cfg.Readiness.ConnStateExpr,
	}
}

func (c Config) evalTimeout() time.Duration {
	if c.EvalTimeout <= 0 {
		return 10 * time.Second
	}
	return c.EvalTimeout
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 60 * time.Second
	}
	return c.NavigationTimeout
}

// ErrNotStarted is returned by operations that need a page before Start.
var ErrNotStarted = errors.New("rodhost: not started")

// Host is a page reached over CDP.
type Host struct {
	cfg Config
	log *zap.Logger

	mu         sync.RWMutex
	launch     *launcher.Launcher // set when we started Chrome ourselves
	browser    *rod.Browser
	page       *rod.Page
	ownsPage   bool
	controlURL string
	base       context.Context // bounds evaluations made outside a caller's ctx
	cancel     context.CancelFunc
}

// New creates a host. Nothing is launched until Start.
func New(cfg Config) *Host {
	return &Host{cfg: cfg, log: logging.Get(logging.CategoryBrowser)}
}

// Start connects to an existing Chrome or launches a new one, then opens the
// target page and waits for it to load.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browser != nil {
		if _, err := h.browser.Version(); err == nil {
			return nil
		}
		h.log.Warn("stale browser connection detected, reconnecting")
		h.closeLocked()
	}

	controlURL := h.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(h.cfg.Headless)
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		h.launch = l
		controlURL = url
	}

	base, cancel := context.WithCancel(context.Background())
	browser := rod.New().ControlURL(controlURL).Context(base)
	if err := browser.Connect(); err != nil {
		cancel()
		h.killLauncherLocked()
		return fmt.Errorf("connect to chrome: %w", err)
	}
	h.browser = browser
	h.controlURL = controlURL
	h.base, h.cancel = base, cancel

	page, owned, err := h.openPageLocked()
	if err != nil {
		h.closeLocked()
		return err
	}
	h.page, h.ownsPage = page, owned

	navCtx, navCancel := context.WithTimeout(ctx, h.cfg.navigationTimeout())
	defer navCancel()
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		h.closeLocked()
		return fmt.Errorf("wait for page load: %w", err)
	}

	h.log.Info("page attached",
		zap.String("control_url", controlURL),
		zap.String("url", h.cfg.URL),
		zap.Bool("launched", h.launch != nil))
	return nil
}

func (h *Host) openPageLocked() (*rod.Page, bool, error) {
	if h.cfg.URL != "" {
		page, err := h.browser.Page(proto.TargetCreateTarget{URL: h.cfg.URL})
		if err != nil {
			return nil, false, fmt.Errorf("create page: %w", err)
		}
		return page, true, nil
	}
	pages, err := h.browser.Pages()
	if err != nil {
		return nil, false, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, false, errors.New("no url given and the browser has no open tab")
	}
	return pages.First(), false, nil
}

// Close closes the page if this host opened it and the browser if this host
// launched it. An attached browser is left running.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeLocked()
}

func (h *Host) closeLocked() error {
	var err error
	if h.page != nil && h.ownsPage {
		err = h.page.Close()
	}
	if h.launch != nil && h.browser != nil {
		if cerr := h.browser.Close(); err == nil {
			err = cerr
		}
	}
	h.killLauncherLocked()
	if h.cancel != nil {
		h.cancel()
	}
	h.page, h.browser, h.ownsPage = nil, nil, false
	h.controlURL = ""
	h.base, h.cancel = nil, nil
	return err
}

func (h *Host) killLauncherLocked() {
	if h.launch != nil {
		h.launch.Kill()
		h.launch.Cleanup()
		h.launch = nil
	}
}

// ControlURL returns the DevTools WebSocket URL.
func (h *Host) ControlURL() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.controlURL
}

// Page returns the attached page, or nil before Start.
func (h *Host) Page() *rod.Page {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.page
}

// baseContext bounds evaluations that have no caller context, such as property
// reads on remote objects. It is cancelled by Close.
func (h *Host) baseContext() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.base == nil {
		return context.Background()
	}
	return h.base
}

// eval runs opts against the page bounded by ctx and the eval timeout.
func (h *Host) eval(ctx context.Context, opts *rod.EvalOptions) (*proto.RuntimeRemoteObject, error) {
	h.mu.RLock()
	page := h.page
	h.mu.RUnlock()
	if page == nil {
		return nil, ErrNotStarted
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.evalTimeout())
	defer cancel()
	return page.Context(ctx).Evaluate(opts)
}

// evalJSON runs opts by value and decodes the result into out.
func (h *Host) evalJSON(ctx context.Context, opts *rod.EvalOptions, out any) error {
	res, err := h.eval(ctx, opts)
	if err != nil {
		return err
	}
	return decodeValue(res, out)
}

func decodeValue(res *proto.RuntimeRemoteObject, out any) error {
	if res == nil || res.Type == proto.RuntimeRemoteObjectTypeUndefined {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

const sampleJS = `function(sel, req, chunks, connExpr) {
	let ui = true;
	if (sel) { try { ui = !!document.querySelector(sel); } catch (e) { ui = false; } }
	const loader = (!!req && typeof window[req] === 'function') || (!!chunks && Array.isArray(window[chunks]));
	let conn = '';
	if (connExpr) {
		try { const v = (0, eval)(connExpr); conn = v == null ? '' : String(v); } catch (e) { conn = ''; }
	}
	return { ui_root: ui, loader: loader, conn_state: conn };
}`

// Sample takes one readiness sample from the page.
func (h *Host) Sample(ctx context.Context) (readiness.Signals, error) {
	var s readiness.Signals
	err := h.evalJSON(ctx, rod.Eval(sampleJS,
		h.cfg.UIRootSelector, h.cfg.RequireGlobal, h.cfg.ChunkGlobal, h.cfg.ConnStateExpr), &s)
	if err != nil {
		return readiness.Signals{}, fmt.Errorf("sample readiness: %w", err)
	}
	return s, nil
}

// Available reports whether the page exposes a require function or chunk array.
func (h *Host) Available() bool {
	var s readiness.Signals
	if err := h.evalJSON(h.baseContext(), rod.Eval(sampleJS, "", h.cfg.RequireGlobal, h.cfg.ChunkGlobal, ""), &s); err != nil {
		h.log.Debug("availability check failed", zap.Error(err))
		return false
	}
	return s.Loader
}

const requireJS = `function(name) {
	const r = name ? window[name] : undefined;
	return typeof r === 'function' ? r : undefined;
}`

const moduleIDsJS = `function() {
	const table = this.m || this.c || {};
	return Object.keys(table);
}`

const callRequireJS = `function(id) { return this(id); }`

// Require returns the page's require-by-id function together with the ids in its
// module factory table.
func (h *Host) Require(ctx context.Context) (modtable.RequireFunc, []modcache.ModuleID, bool) {
	res, err := h.eval(ctx, rod.Eval(requireJS, h.cfg.RequireGlobal).ByObject())
	if err != nil || res == nil || res.Type != proto.RuntimeRemoteObjectTypeFunction {
		if err != nil {
			h.log.Debug("require lookup failed", zap.Error(err))
		}
		return nil, nil, false
	}

	var keys []string
	if err := h.evalJSON(ctx, rod.Eval(moduleIDsJS).This(res), &keys); err != nil {
		h.log.Warn("listing module ids failed", zap.Error(err))
		return nil, nil, false
	}
	return h.requireFunc(res), toModuleIDs(keys), true
}

// requireFunc binds a remote require function.
func (h *Host) requireFunc(req *proto.RuntimeRemoteObject) modtable.RequireFunc {
	return func(id modcache.ModuleID) (any, error) {
		res, err := h.eval(h.baseContext(), rod.Eval(callRequireJS, string(id)).This(req).ByObject())
		if err != nil {
			return nil, fmt.Errorf("require %s: %w", id, err)
		}
		return h.wrap(res, nil), nil
	}
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

const chunkArrayJS = `function(name) {
	const a = name ? window[name] : undefined;
	return Array.isArray(a) ? a : undefined;
}`

// ChunkArray returns the page's chunk registration array.
func (h *Host) ChunkArray(ctx context.Context) (modtable.ChunkArray, bool) {
	res, err := h.eval(ctx, rod.Eval(chunkArrayJS, h.cfg.ChunkGlobal).ByObject())
	if err != nil || res == nil || res.Type != proto.RuntimeRemoteObjectTypeObject || res.ObjectID == "" {
		if err != nil {
			h.log.Debug("chunk array lookup failed", zap.Error(err))
		}
		return nil, false
	}
	return &chunkArray{h: h, ctx: ctx, arr: res}, true
}

// chunkArray is the page's chunk array. Existing chunks are read by value and
// carry no runtime; pushing a chunk runs its Runtime with the captured require.
type chunkArray struct {
	h   *Host
	ctx context.Context
	arr *proto.RuntimeRemoteObject
}

const listChunksJS = `function() {
	return this.map(function(c) {
		return {
			ids: Array.isArray(c && c[0]) ? c[0].map(String) : [],
			modules: c && c[1] ? Object.keys(c[1]) : []
		};
	});
}`

const pushChunkJS = `function(ids) {
	let captured;
	this.push([ids, {}, function(r) { captured = r; }]);
	return captured;
}`

type chunkEntry struct {
	IDs     []string `json:"ids"`
	Modules []string `json:"modules"`
}

func (a *chunkArray) Chunks() []modtable.Chunk {
	var entries []chunkEntry
	if err := a.h.evalJSON(a.ctx, rod.Eval(listChunksJS).This(a.arr), &entries); err != nil {
		a.h.log.Warn("listing chunks failed", zap.Error(err))
		return nil
	}
	return toChunks(entries)
}

func toChunks(entries []chunkEntry) []modtable.Chunk {
	chunks := make([]modtable.Chunk, 0, len(entries))
	for _, e := range entries {
		chunks = append(chunks, modtable.Chunk{IDs: e.IDs, Modules: toModuleIDs(e.Modules)})
	}
	return chunks
}

func (a *chunkArray) Push(c modtable.Chunk) {
	ids := c.IDs
	if ids == nil {
		ids = []string{}
	}
	res, err := a.h.eval(a.ctx, rod.Eval(pushChunkJS, ids).This(a.arr).ByObject())
	if err != nil {
		a.h.log.Warn("pushing chunk failed", zap.Error(err))
		return
	}
	if res == nil || res.Type != proto.RuntimeRemoteObjectTypeFunction {
		a.h.log.Debug("chunk runtime did not run", zap.Strings("ids", c.IDs))
		return
	}
	if c.Runtime != nil {
		c.Runtime(a.h.requireFunc(res))
	}
}
