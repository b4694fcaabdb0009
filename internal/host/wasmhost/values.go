//go:build js && wasm

package wasmhost

import (
	"syscall/js"

	"modscout/internal/object"
)

type jsObject struct{ v js.Value }

// jsFunc remembers the object it was read from so methods keep their receiver.
type jsFunc struct {
	jsObject
	recv js.Value
}

var (
	_ object.Object      = (*jsObject)(nil)
	_ object.Prototyped  = (*jsObject)(nil)
	_ object.Constructor = (*jsFunc)(nil)
)

// wrap maps a JS value onto the engine's value model.
func wrap(v js.Value, recv js.Value) any {
	switch v.Type() {
	case js.TypeUndefined, js.TypeNull:
		return nil
	case js.TypeString:
		return v.String()
	case js.TypeNumber:
		return v.Float()
	case js.TypeBoolean:
		return v.Bool()
	case js.TypeFunction:
		return &jsFunc{jsObject: jsObject{v}, recv: recv}
	case js.TypeObject:
		return &jsObject{v}
	default:
		return jsString(v)
	}
}

func unwrap(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *jsFunc:
			out[i] = v.v
		case *jsObject:
			out[i] = v.v
		default:
			out[i] = v
		}
	}
	return out
}

func (o *jsObject) Keys() (keys []string) {
	defer func() {
		if recover() != nil {
			keys = nil
		}
	}()
	return objectKeys(o.v)
}

// Get reads a property, inherited members included. A throwing getter reads as
// absent.
func (o *jsObject) Get(key string) (v any) {
	defer func() {
		if recover() != nil {
			v = nil
		}
	}()
	return wrap(o.v.Get(key), o.v)
}

func (o *jsObject) ProtoKeys() (keys []string) {
	defer func() {
		if recover() != nil {
			keys = nil
		}
	}()
	objectCtor := js.Global().Get("Object")
	objectProto := objectCtor.Get("prototype")
	funcProto := js.Global().Get("Function").Get("prototype")
	p := objectCtor.Call("getPrototypeOf", o.v)
	for truthy(p) && !p.Equal(objectProto) && !p.Equal(funcProto) {
		names := objectCtor.Call("getOwnPropertyNames", p)
		for i := 0; i < names.Length(); i++ {
			keys = append(keys, names.Index(i).String())
		}
		p = objectCtor.Call("getPrototypeOf", p)
	}
	return keys
}

func (f *jsFunc) Call(args ...any) (v any, err error) {
	defer recoverJS(&err)
	recv := f.recv
	if recv.IsUndefined() {
		recv = js.Null()
	}
	return wrap(f.v.Call("apply", recv, js.ValueOf(unwrap(args))), js.Undefined()), nil
}

func (f *jsFunc) New(args ...any) (v any, err error) {
	defer recoverJS(&err)
	return wrap(f.v.New(unwrap(args)...), js.Undefined()), nil
}

// ToJS converts an engine value back into a page value. Values that came from the
// page are returned as-is; maps built on the Go side become plain objects.
func ToJS(v any) js.Value {
	switch x := v.(type) {
	case nil:
		return js.Null()
	case *jsFunc:
		return x.v
	case *jsObject:
		return x.v
	case js.Value:
		return x
	case object.Map:
		out := js.Global().Get("Object").New()
		for k, val := range x {
			out.Set(k, ToJS(val))
		}
		return out
	case []any:
		arr := js.Global().Get("Array").New(len(x))
		for i, val := range x {
			arr.SetIndex(i, ToJS(val))
		}
		return arr
	case string, bool, float64, int, int64:
		return js.ValueOf(x)
	default:
		return js.Undefined()
	}
}
