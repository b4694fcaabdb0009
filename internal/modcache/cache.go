// Package modcache wraps the host's module table with lazy, memoised per-id access
// and the generic search primitives the capability resolver is built on.
package modcache

import (
	"sync"
	"sync/atomic"

	"modscout/internal/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ModuleID addresses one module within a page load. Integer ids are normalised to
// their decimal string form.
type ModuleID string

// Factory materialises one module. A nil result, or a panic, means the module is not
// available yet.
type Factory func() any

// Registry is the uniform `id -> accessor` form of a host module table. IDs keeps
// table order.
type Registry struct {
	IDs       []ModuleID
	Factories map[ModuleID]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{Factories: make(map[ModuleID]Factory)}
}

// Add appends id with its factory. Re-adding an id replaces the factory but keeps
// the original position.
func (r *Registry) Add(id ModuleID, f Factory) {
	if _, exists := r.Factories[id]; !exists {
		r.IDs = append(r.IDs, id)
	}
	r.Factories[id] = f
}

// Len returns the number of ids.
func (r *Registry) Len() int { return len(r.IDs) }

// Cache memoises non-nil module values. Nil results are never stored, so a module
// that is still initialising is retried on the next read.
type Cache struct {
	reg *Registry

	mu   sync.RWMutex
	memo map[ModuleID]any

	group        singleflight.Group
	factoryN     atomic.Int64
	factoryFails atomic.Int64
	predFails    atomic.Int64
}

// New builds a cache over reg. The registry must not be modified afterwards.
func New(reg *Registry) *Cache {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Cache{
		reg:  reg,
		memo: make(map[ModuleID]any, reg.Len()),
	}
}

// Get returns the module for id, evaluating its factory on first successful read.
func (c *Cache) Get(id ModuleID) any {
	c.mu.RLock()
	v, ok := c.memo[id]
	c.mu.RUnlock()
	if ok {
		return v
	}

	f, ok := c.reg.Factories[id]
	if !ok || f == nil {
		return nil
	}

	// Concurrent first reads of one id share a single factory call.
	v, _, _ = c.group.Do(string(id), func() (any, error) {
		c.mu.RLock()
		if v, ok := c.memo[id]; ok {
			c.mu.RUnlock()
			return v, nil
		}
		c.mu.RUnlock()

		c.factoryN.Add(1)
		v := c.call(id, f)
		if v != nil {
			c.mu.Lock()
			c.memo[id] = v
			c.mu.Unlock()
		}
		return v, nil
	})
	return v
}

// call runs f, treating a panic as a nil module.
func (c *Cache) call(id ModuleID, f Factory) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			c.factoryFails.Add(1)
			logging.Get(logging.CategoryCache).Debug("module factory panicked",
				zap.String("module", string(id)), zap.Any("panic", r))
		}
	}()
	return f()
}

// Has reports whether id is in the table.
func (c *Cache) Has(id ModuleID) bool {
	_, ok := c.reg.Factories[id]
	return ok
}

// IDs returns the module ids in table order.
func (c *Cache) IDs() []ModuleID {
	return append([]ModuleID(nil), c.reg.IDs...)
}

// Len returns the number of modules in the table.
func (c *Cache) Len() int { return c.reg.Len() }

// Materialized returns how many modules currently hold a memoised value.
func (c *Cache) Materialized() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.memo)
}

// FactoryCalls returns how many times any factory has been invoked.
func (c *Cache) FactoryCalls() int64 { return c.factoryN.Load() }

// FactoryFailures returns how many factory panics Get has swallowed.
func (c *Cache) FactoryFailures() int64 { return c.factoryFails.Load() }

// PredicateFailures returns how many predicate panics search has swallowed.
func (c *Cache) PredicateFailures() int64 { return c.predFails.Load() }

// Each evaluates modules in table order and calls fn with every non-nil one until
// fn returns false.
func (c *Cache) Each(fn func(id ModuleID, mod any) bool) {
	for _, id := range c.reg.IDs {
		mod := c.Get(id)
		if mod == nil {
			continue
		}
		if !fn(id, mod) {
			return
		}
	}
}
