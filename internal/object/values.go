package object

import "sort"

// Map is an in-process property bag. Keys come back sorted so iteration is stable.
type Map map[string]any

// Keys implements Object.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get implements Object.
func (m Map) Get(key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

// Instance is an object with an own property bag and a shared prototype, the
// shape a class instance has in the host runtime.
type Instance struct {
	Own   Map
	Proto Map
}

// Keys implements Object.
func (i *Instance) Keys() []string { return i.Own.Keys() }

// Get implements Object.
func (i *Instance) Get(key string) any {
	if v, ok := i.Own[key]; ok {
		return v
	}
	return i.Proto.Get(key)
}

// ProtoKeys implements Prototyped.
func (i *Instance) ProtoKeys() []string { return i.Proto.Keys() }

// Func is an in-process callable that can carry properties, the way host functions
// carry statics and a prototype.
type Func struct {
	Fn    func(args ...any) (any, error)
	Props Map
}

// NewFunc wraps fn with no properties.
func NewFunc(fn func(args ...any) (any, error)) *Func {
	return &Func{Fn: fn}
}

// Call implements Callable.
func (f *Func) Call(args ...any) (any, error) {
	if f.Fn == nil {
		return nil, nil
	}
	return f.Fn(args...)
}

// New implements Constructor. The result is an Instance whose prototype is the
// function's "prototype" property when it is a Map.
func (f *Func) New(args ...any) (any, error) {
	proto, _ := f.Props.Get("prototype").(Map)
	inst := &Instance{Own: Map{}, Proto: proto}
	if f.Fn != nil {
		if _, err := f.Fn(append([]any{inst}, args...)...); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Keys implements Object.
func (f *Func) Keys() []string { return f.Props.Keys() }

// Get implements Object.
func (f *Func) Get(key string) any { return f.Props.Get(key) }

// Method returns a Func that ignores its arguments and returns result.
func Method(result any) *Func {
	return NewFunc(func(...any) (any, error) { return result, nil })
}
