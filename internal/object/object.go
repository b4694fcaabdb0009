// Package object defines the read-only view modscout has over values that live in
// the host application's runtime. Hosts (in-memory, js/wasm, CDP) hand out values
// that implement these interfaces; the engine only ever reads them.
//
// nil is the null sentinel: JS null and undefined both map to it.
package object

import (
	"sort"
	"strings"
)

// Object is a host object exposed as a property bag.
type Object interface {
	// Keys returns the object's own enumerable keys.
	Keys() []string
	// Get looks a property up, inherited members included. Absent properties are nil.
	Get(key string) any
}

// Callable is a host function.
type Callable interface {
	Call(args ...any) (any, error)
}

// Constructor is a host function that can be invoked with `new`.
type Constructor interface {
	Callable
	New(args ...any) (any, error)
}

// Prototyped is implemented by objects that can list inherited member names.
type Prototyped interface {
	ProtoKeys() []string
}

// DefaultKey is the key bundlers use for a module's default export.
const DefaultKey = "default"

// Keys returns the own keys of v, or nil when v is not an Object.
func Keys(v any) []string {
	if o, ok := v.(Object); ok {
		return o.Keys()
	}
	return nil
}

// Get reads key from v. It returns nil for non-objects and absent keys.
func Get(v any, key string) any {
	if o, ok := v.(Object); ok {
		return o.Get(key)
	}
	return nil
}

// Path walks a dot separated property path ("default.Msg"). An empty path returns v.
func Path(v any, path string) any {
	if path == "" {
		return v
	}
	cur := v
	for _, part := range strings.Split(path, ".") {
		cur = Get(cur, part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Default returns the nested default export of v, or nil.
func Default(v any) any {
	return Get(v, DefaultKey)
}

// HasKey reports whether key is one of v's own keys.
func HasKey(v any, key string) bool {
	for _, k := range Keys(v) {
		if k == key {
			return true
		}
	}
	return false
}

// IsCallable reports whether v can be invoked.
func IsCallable(v any) bool {
	_, ok := v.(Callable)
	return ok
}

// IsConstructor reports whether v is a function carrying a prototype object.
func IsConstructor(v any) bool {
	if _, ok := v.(Constructor); !ok {
		return false
	}
	return Get(v, "prototype") != nil
}

// HasMethods reports whether every name resolves to a callable member of v.
func HasMethods(v any, names ...string) bool {
	if v == nil {
		return false
	}
	for _, name := range names {
		if !IsCallable(Get(v, name)) {
			return false
		}
	}
	return true
}

// HasProps reports whether every name resolves to a non-nil member of v.
func HasProps(v any, names ...string) bool {
	if v == nil {
		return false
	}
	for _, name := range names {
		if Get(v, name) == nil {
			return false
		}
	}
	return true
}

// Members splits v's own and inherited member names into methods and plain
// properties. Both lists are sorted and de-duplicated.
func Members(v any) (methods, props []string) {
	seen := make(map[string]bool)
	names := append([]string(nil), Keys(v)...)
	if p, ok := v.(Prototyped); ok {
		names = append(names, p.ProtoKeys()...)
	}
	for _, name := range names {
		if seen[name] || name == "constructor" {
			continue
		}
		seen[name] = true
		if IsCallable(Get(v, name)) {
			methods = append(methods, name)
		} else {
			props = append(props, name)
		}
	}
	sort.Strings(methods)
	sort.Strings(props)
	return methods, props
}
