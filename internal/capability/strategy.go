package capability

import (
	"errors"
	"fmt"

	"modscout/internal/modcache"
	"modscout/internal/object"
)

var errCompositeDepth = errors.New("composite nesting too deep")

// Env is what a strategy sees while producing a candidate.
type Env struct {
	Modules *modcache.Cache

	valid Validity
	depth int
	r     *Resolver
}

// Valid applies the capability's validity predicate, so strategies that have
// several candidates can prefer a usable one.
func (e *Env) Valid(v any) bool {
	if e.valid == nil {
		return v != nil
	}
	return v != nil && e.valid(v)
}

// Resolve reads another capability, for composite lookups.
func (e *Env) Resolve(name string) (any, error) {
	if e.r == nil {
		return nil, fmt.Errorf("resolve %s: no resolver", name)
	}
	if e.depth >= maxDepth {
		return nil, fmt.Errorf("resolve %s: %w", name, errCompositeDepth)
	}
	return e.r.resolve(name, e.depth+1), nil
}

// pick returns the first candidate along paths that passes validity, falling back to
// the first non-nil one so that the resolver can record an invalid attempt.
func (e *Env) pick(mod any, paths []string) any {
	var first any
	for _, p := range paths {
		v := object.Path(mod, p)
		if v == nil {
			continue
		}
		if e.Valid(v) {
			return v
		}
		if first == nil {
			first = v
		}
	}
	return first
}

// Strategy is one ordered attempt at producing a capability.
type Strategy struct {
	// Desc is a short human readable description used in reports.
	Desc string
	// Ref names the capability a composite strategy reads, if any.
	Ref string

	run func(env *Env) (any, error)
}

// Run executes the strategy. Callers are expected to recover panics.
func (s Strategy) Run(env *Env) (any, error) {
	if s.run == nil {
		return nil, nil
	}
	return s.run(env)
}

func exportPaths(name string, paths []string) []string {
	if len(paths) > 0 {
		return paths
	}
	return []string{name, object.DefaultKey + "." + name}
}

// Export finds the first module exporting name and reads the candidate at paths.
// With no paths the export itself is the candidate, top level or under default.
func Export(name string, paths ...string) Strategy {
	paths = exportPaths(name, paths)
	return Strategy{
		Desc: "export " + name,
		run: func(env *Env) (any, error) {
			mod := env.Modules.FindByExport(name)
			if mod == nil {
				return nil, nil
			}
			return env.pick(mod, paths), nil
		},
	}
}

// ExportWhere scans every module exporting name and returns the first candidate
// whose module also satisfies pred.
func ExportWhere(name string, pred modcache.Predicate, paths ...string) Strategy {
	paths = exportPaths(name, paths)
	return Strategy{
		Desc: "export " + name + " (filtered)",
		run: func(env *Env) (any, error) {
			var first any
			for _, mod := range env.Modules.FilterByExport(name) {
				if pred != nil && !pred(mod) {
					continue
				}
				v := env.pick(mod, paths)
				if env.Valid(v) {
					return v, nil
				}
				if first == nil {
					first = v
				}
			}
			return first, nil
		},
	}
}

// FromComposite reads field from a previously resolved composite capability.
func FromComposite(capability, field string) Strategy {
	return Strategy{
		Desc: capability + "." + field,
		Ref:  capability,
		run: func(env *Env) (any, error) {
			c, err := env.Resolve(capability)
			if err != nil || c == nil {
				return nil, err
			}
			return object.Get(c, field), nil
		},
	}
}

// Shape is a structural heuristic over the whole table: the first module matching
// pred, with the candidate read at paths ("" is the module itself).
func Shape(desc string, pred modcache.Predicate, paths ...string) Strategy {
	if len(paths) == 0 {
		paths = []string{""}
	}
	return Strategy{
		Desc: "shape: " + desc,
		run: func(env *Env) (any, error) {
			mod := env.Modules.Find(pred)
			if mod == nil {
				return nil, nil
			}
			return env.pick(mod, paths), nil
		},
	}
}

// FilterIndex takes the index-th module matching pred (negative counts from the
// end) and reads the candidate at paths.
func FilterIndex(desc string, pred modcache.Predicate, index int, paths ...string) Strategy {
	if len(paths) == 0 {
		paths = []string{""}
	}
	return Strategy{
		Desc: fmt.Sprintf("filter[%d]: %s", index, desc),
		run: func(env *Env) (any, error) {
			mods := env.Modules.Filter(pred)
			i := index
			if i < 0 {
				i += len(mods)
			}
			if i < 0 || i >= len(mods) {
				return nil, nil
			}
			return env.pick(mods[i], paths), nil
		},
	}
}

// Custom wraps arbitrary lookup logic.
func Custom(desc string, fn func(env *Env) (any, error)) Strategy {
	return Strategy{Desc: desc, run: fn}
}
