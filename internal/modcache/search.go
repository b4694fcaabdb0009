package modcache

import (
	"modscout/internal/logging"
	"modscout/internal/object"

	"go.uber.org/zap"
)

// Predicate decides whether a module matches a search.
type Predicate func(mod any) bool

// match runs pred and treats a panic as "does not match".
func (c *Cache) match(id ModuleID, mod any, pred Predicate) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			c.predFails.Add(1)
			logging.Get(logging.CategoryCache).Debug("search predicate failed",
				zap.String("module", string(id)), zap.Any("panic", r))
		}
	}()
	return pred(mod)
}

// Find returns the first module, in table order, that satisfies pred.
func (c *Cache) Find(pred Predicate) any {
	var found any
	c.Each(func(id ModuleID, mod any) bool {
		if c.match(id, mod, pred) {
			found = mod
			return false
		}
		return true
	})
	return found
}

// Filter returns every module that satisfies pred, in table order.
func (c *Cache) Filter(pred Predicate) []any {
	var out []any
	c.Each(func(id ModuleID, mod any) bool {
		if c.match(id, mod, pred) {
			out = append(out, mod)
		}
		return true
	})
	return out
}

// FindByExport returns the first module whose own keys, or whose default export's
// keys, include name.
func (c *Cache) FindByExport(name string) any {
	return c.Find(ExportPredicate(name))
}

// FilterByExport returns every module exporting name.
func (c *Cache) FilterByExport(name string) []any {
	return c.Filter(ExportPredicate(name))
}

// ExportPredicate matches modules exporting name at the top level or on default.
func ExportPredicate(name string) Predicate {
	return func(mod any) bool {
		return object.HasKey(mod, name) || object.HasKey(object.Default(mod), name)
	}
}
