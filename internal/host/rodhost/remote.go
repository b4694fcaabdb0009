package rodhost

import (
	"fmt"

	"modscout/internal/object"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// remoteObject is a page object held by reference.
type remoteObject struct {
	h   *Host
	ref *proto.RuntimeRemoteObject
}

// remoteFunc is a page function held by reference. recv is the object it was read
// from and becomes `this` when it is called.
type remoteFunc struct {
	remoteObject
	recv *proto.RuntimeRemoteObject
}

var (
	_ object.Object      = (*remoteObject)(nil)
	_ object.Prototyped  = (*remoteObject)(nil)
	_ object.Constructor = (*remoteFunc)(nil)
)

const (
	keysJS  = `function() { return Object.keys(this); }`
	getJS   = `function(k) { return this[k]; }`
	protoJS = `function() {
		const out = [];
		let p = Object.getPrototypeOf(this);
		while (p && p !== Object.prototype && p !== Function.prototype) {
			out.push(...Object.getOwnPropertyNames(p));
			p = Object.getPrototypeOf(p);
		}
		return out;
	}`
	applyJS = `function(f, ...args) { return f.apply(this, args); }`
	callJS  = `function(...args) { return this(...args); }`
	newJS   = `function(...args) { return new this(...args); }`
)

// wrap turns a CDP result into an engine value: nil for null and undefined, Go
// primitives for primitives, remote views for objects and functions.
func (h *Host) wrap(res *proto.RuntimeRemoteObject, recv *proto.RuntimeRemoteObject) any {
	if res == nil {
		return nil
	}
	switch res.Type {
	case proto.RuntimeRemoteObjectTypeUndefined:
		return nil
	case proto.RuntimeRemoteObjectTypeString:
		return res.Value.Str()
	case proto.RuntimeRemoteObjectTypeNumber:
		return res.Value.Num()
	case proto.RuntimeRemoteObjectTypeBoolean:
		return res.Value.Bool()
	case proto.RuntimeRemoteObjectTypeFunction:
		if res.ObjectID == "" {
			return nil
		}
		return &remoteFunc{remoteObject: remoteObject{h: h, ref: res}, recv: recv}
	case proto.RuntimeRemoteObjectTypeObject:
		if res.Subtype == proto.RuntimeRemoteObjectSubtypeNull || res.ObjectID == "" {
			return nil
		}
		return &remoteObject{h: h, ref: res}
	default:
		// symbols and bigints carry nothing the engine can read
		return res.Description
	}
}

func (o *remoteObject) strings(js string) []string {
	var out []string
	if err := o.h.evalJSON(o.h.baseContext(), rod.Eval(js).This(o.ref), &out); err != nil {
		o.h.log.Debug("remote key listing failed", zap.Error(err))
		return nil
	}
	return out
}

func (o *remoteObject) Keys() []string { return o.strings(keysJS) }

func (o *remoteObject) ProtoKeys() []string { return o.strings(protoJS) }

// Get reads a property. Throwing getters read as absent.
func (o *remoteObject) Get(key string) any {
	res, err := o.h.eval(o.h.baseContext(), rod.Eval(getJS, key).This(o.ref).ByObject())
	if err != nil {
		return nil
	}
	return o.h.wrap(res, o.ref)
}

func (f *remoteFunc) Call(args ...any) (any, error) {
	if f.recv != nil {
		return f.invoke(applyJS, f.recv, append([]any{f.ref}, args...))
	}
	return f.invoke(callJS, f.ref, args)
}

func (f *remoteFunc) New(args ...any) (any, error) {
	return f.invoke(newJS, f.ref, args)
}

func (f *remoteFunc) invoke(js string, this *proto.RuntimeRemoteObject, args []any) (any, error) {
	res, err := f.h.eval(f.h.baseContext(), rod.Eval(js, jsArgs(args)...).This(this).ByObject())
	if err != nil {
		return nil, fmt.Errorf("remote call: %w", err)
	}
	return f.h.wrap(res, nil), nil
}

// jsArgs passes remote views by reference and everything else by value.
func jsArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *remoteFunc:
			out[i] = v.ref
		case *remoteObject:
			out[i] = v.ref
		default:
			out[i] = v
		}
	}
	return out
}
