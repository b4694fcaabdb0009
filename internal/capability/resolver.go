package capability

import (
	"fmt"

	"modscout/internal/logging"
	"modscout/internal/modcache"
	"modscout/internal/monitor"
	"modscout/internal/object"

	"go.uber.org/zap"
)

// maxDepth bounds composite lookups (a capability reading another capability).
const maxDepth = 4

// Resolver re-resolves capabilities on every read. It never stores results; the
// module cache beneath it does the memoising.
type Resolver struct {
	modules *modcache.Cache
	mon     *monitor.Monitor
	specs   map[string]Spec
	order   []string
	log     *zap.Logger
}

// NewResolver builds a resolver over modules for specs (the built-in catalog when
// specs is nil) and declares every capability's strategy count to mon.
func NewResolver(modules *modcache.Cache, mon *monitor.Monitor, specs []Spec) *Resolver {
	if modules == nil {
		modules = modcache.New(nil)
	}
	if specs == nil {
		specs = Catalog()
	}
	r := &Resolver{
		modules: modules,
		mon:     mon,
		specs:   make(map[string]Spec, len(specs)),
		log:     logging.Get(logging.CategoryResolver),
	}
	for _, s := range specs {
		if _, dup := r.specs[s.Name]; !dup {
			r.order = append(r.order, s.Name)
		}
		r.specs[s.Name] = s
		mon.Declare(s.Name, len(s.Strategies))
	}
	return r
}

// Monitor returns the monitor outcomes are recorded to.
func (r *Resolver) Monitor() *monitor.Monitor { return r.mon }

// Modules returns the module cache.
func (r *Resolver) Modules() *modcache.Cache { return r.modules }

// Names returns every capability name in declaration order.
func (r *Resolver) Names() []string {
	return append([]string(nil), r.order...)
}

// NamesIn returns the capability names of one phase in declaration order.
func (r *Resolver) NamesIn(p Phase) []string {
	var out []string
	for _, name := range r.order {
		if r.specs[name].Phase == p {
			out = append(out, name)
		}
	}
	return out
}

// Spec returns the declaration for name.
func (r *Resolver) Spec(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Resolve runs name's strategies in order and returns the first valid candidate,
// or nil when none is found. It never panics on host misbehaviour.
func (r *Resolver) Resolve(name string) any {
	return r.resolve(name, 0)
}

func (r *Resolver) resolve(name string, depth int) any {
	spec, ok := r.specs[name]
	if !ok {
		r.log.Debug("unknown capability", zap.String("capability", name))
		return nil
	}

	env := &Env{Modules: r.modules, valid: spec.Valid, depth: depth, r: r}
	for i, st := range spec.Strategies {
		idx := i + 1
		v, err := attempt(st, env)
		if err != nil {
			r.log.Debug("strategy failed",
				zap.String("capability", name),
				zap.Int("strategy", idx),
				zap.String("desc", st.Desc),
				zap.Error(err))
		}
		if err == nil && v != nil {
			r.mon.Record(name, idx, true)
			return v
		}
		r.mon.Record(name, idx, false)
	}

	r.mon.Record(name, monitor.NoStrategy, false)
	r.log.Debug("capability unresolved", zap.String("capability", name))
	return nil
}

// attempt runs one strategy and its validity check, turning host panics into errors.
// A nil value with a nil error means "no valid candidate".
func attempt(st Strategy, env *Env) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()
	v, err = st.Run(env)
	if err != nil || !env.Valid(v) {
		return nil, err
	}
	return v, nil
}

// Status is the outcome reported by Inspect.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
	StatusUnknown    Status = "unknown"
)

// Inspection describes a capability without exposing engine internals.
type Inspection struct {
	Name          string   `json:"name" yaml:"name"`
	Status        Status   `json:"status" yaml:"status"`
	Kind          Kind     `json:"kind,omitempty" yaml:"kind,omitempty"`
	MethodNames   []string `json:"methodNames" yaml:"method_names"`
	PropertyNames []string `json:"propertyNames" yaml:"property_names"`
}

// Inspect resolves name and lists the member names of the result.
func (r *Resolver) Inspect(name string) Inspection {
	spec, ok := r.specs[name]
	if !ok {
		return Inspection{Name: name, Status: StatusUnknown, MethodNames: []string{}, PropertyNames: []string{}}
	}
	return InspectValue(name, spec.Kind, r.Resolve(name))
}

// InspectValue builds an Inspection for an already resolved value.
func InspectValue(name string, kind Kind, v any) (in Inspection) {
	in = Inspection{Name: name, Kind: kind, Status: StatusUnresolved, MethodNames: []string{}, PropertyNames: []string{}}
	if v == nil {
		return in
	}
	in.Status = StatusResolved
	defer func() {
		if rec := recover(); rec != nil {
			in.MethodNames, in.PropertyNames = []string{}, []string{}
		}
	}()
	methods, props := object.Members(v)
	if methods != nil {
		in.MethodNames = methods
	}
	if props != nil {
		in.PropertyNames = props
	}
	return in
}
