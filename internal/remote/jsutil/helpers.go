// Package jsutil wraps the goja operations the bridge needs on both sides:
// classifying values, reading property descriptors, building proxies that can
// tell a call from a construction, and converting errors.
package jsutil

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/dop251/goja"
)

// Kind classifies a script value for marshaling.
type Kind int

const (
	KindPrimitive Kind = iota
	KindNull
	KindArray
	KindBuffer
	KindDate
	KindPromise
	KindError
	KindFunction
	KindObject
)

// proxyFactorySource builds a function that forwards every invocation to a Go
// callback together with whether it was invoked with new.
const proxyFactorySource = `(function (invoke) {
	return function () {
		return invoke(new.target !== undefined, this, Array.prototype.slice.call(arguments));
	};
})`

// Invoke receives a proxy invocation.
type Invoke func(construct bool, this goja.Value, args []goja.Value) goja.Value

// Helpers caches the constructors and compiled helpers of one runtime. Like
// the runtime itself it must only be used from the goroutine driving it.
type Helpers struct {
	rt *goja.Runtime

	objectProto    *goja.Object
	arrayBuffer    *goja.Object
	uint8Array     *goja.Object
	date           *goja.Object
	promise        *goja.Object
	errorCtor      *goja.Object
	promiseResolve goja.Callable
	ownDescriptor  goja.Callable
	proxyFactory   goja.Callable
}

// New resolves the builtins of rt and compiles the proxy factory.
func New(rt *goja.Runtime) (*Helpers, error) {
	h := &Helpers{rt: rt}

	lookup := func(name string) (*goja.Object, error) {
		v := rt.Get(name)
		if v == nil || goja.IsUndefined(v) {
			return nil, fmt.Errorf("runtime has no %s", name)
		}
		return v.ToObject(rt), nil
	}

	objectCtor, err := lookup("Object")
	if err != nil {
		return nil, err
	}
	h.objectProto = objectCtor.Get("prototype").ToObject(rt)
	if h.arrayBuffer, err = lookup("ArrayBuffer"); err != nil {
		return nil, err
	}
	if h.uint8Array, err = lookup("Uint8Array"); err != nil {
		return nil, err
	}
	if h.date, err = lookup("Date"); err != nil {
		return nil, err
	}
	if h.promise, err = lookup("Promise"); err != nil {
		return nil, err
	}
	if h.errorCtor, err = lookup("Error"); err != nil {
		return nil, err
	}

	var ok bool
	if h.ownDescriptor, ok = goja.AssertFunction(objectCtor.Get("getOwnPropertyDescriptor")); !ok {
		return nil, errors.New("Object.getOwnPropertyDescriptor is not a function")
	}
	if h.promiseResolve, ok = goja.AssertFunction(h.promise.Get("resolve")); !ok {
		return nil, errors.New("Promise.resolve is not a function")
	}

	factory, err := rt.RunString(proxyFactorySource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile proxy factory: %w", err)
	}
	if h.proxyFactory, ok = goja.AssertFunction(factory); !ok {
		return nil, errors.New("proxy factory is not a function")
	}

	return h, nil
}

// Runtime returns the runtime the helpers belong to.
func (h *Helpers) Runtime() *goja.Runtime {
	return h.rt
}

// ObjectPrototype returns Object.prototype.
func (h *Helpers) ObjectPrototype() *goja.Object {
	return h.objectProto
}

// KindOf classifies v.
func (h *Helpers) KindOf(v goja.Value) Kind {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return KindNull
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return KindPrimitive
	}

	switch obj.ClassName() {
	case "Array":
		return KindArray
	case "ArrayBuffer":
		return KindBuffer
	case "Date":
		return KindDate
	case "Error":
		return KindError
	}
	if h.rt.InstanceOf(obj, h.uint8Array) || h.rt.InstanceOf(obj, h.arrayBuffer) {
		return KindBuffer
	}
	if h.rt.InstanceOf(obj, h.promise) {
		return KindPromise
	}
	if h.rt.InstanceOf(obj, h.errorCtor) {
		return KindError
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return KindFunction
	}
	return KindObject
}

// Scalar exports a primitive as a JSON scalar. Values JSON cannot carry
// (NaN, infinities, symbols) become nil.
func Scalar(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch x := v.Export().(type) {
	case bool, string, int64:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case int:
		return int64(x)
	default:
		return nil
	}
}

// Length returns the length property of an array-like object. Negative
// lengths read as zero.
func Length(obj *goja.Object) int {
	n := obj.Get("length")
	if n == nil {
		return 0
	}
	if l := n.ToInteger(); l > 0 {
		return int(l)
	}
	return 0
}

// EachElement calls fn with every index of an array-like object in order,
// holes included, and stops at the first error.
func EachElement(obj *goja.Object, fn func(i int, v goja.Value) error) error {
	n := Length(obj)
	for i := 0; i < n; i++ {
		v := obj.Get(strconv.Itoa(i))
		if v == nil {
			v = goja.Undefined()
		}
		if err := fn(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Elements returns the elements of an array-like object. Callers must know
// the length is small; use EachElement for untrusted arrays.
func Elements(obj *goja.Object) []goja.Value {
	out := make([]goja.Value, 0, Length(obj))
	_ = EachElement(obj, func(_ int, v goja.Value) error {
		out = append(out, v)
		return nil
	})
	return out
}

// NewArray builds an array holding values.
func (h *Helpers) NewArray(values []goja.Value) *goja.Object {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = v
	}
	return h.rt.NewArray(items...)
}

// Bytes copies the contents of an ArrayBuffer or Uint8Array.
func (h *Helpers) Bytes(obj *goja.Object) []byte {
	if buf, ok := obj.Export().(goja.ArrayBuffer); ok {
		return append([]byte(nil), buf.Bytes()...)
	}

	backing, ok := obj.Get("buffer").Export().(goja.ArrayBuffer)
	if !ok {
		return nil
	}
	data := backing.Bytes()
	off := int(obj.Get("byteOffset").ToInteger())
	n := int(obj.Get("byteLength").ToInteger())
	if off < 0 || n < 0 || off+n > len(data) {
		return nil
	}
	return append([]byte(nil), data[off:off+n]...)
}

// NewUint8Array creates a Uint8Array over a copy of data.
func (h *Helpers) NewUint8Array(data []byte) (*goja.Object, error) {
	buf := h.rt.NewArrayBuffer(append([]byte(nil), data...))
	return h.rt.New(h.uint8Array, h.rt.ToValue(buf))
}

// DateMillis returns the timestamp of a Date, or false for an invalid date.
func (h *Helpers) DateMillis(obj *goja.Object) (float64, bool) {
	getTime, ok := goja.AssertFunction(obj.Get("getTime"))
	if !ok {
		return 0, false
	}
	v, err := getTime(obj)
	if err != nil {
		return 0, false
	}
	ms := v.ToFloat()
	if math.IsNaN(ms) {
		return 0, false
	}
	return ms, true
}

// NewDate creates a Date. A nil timestamp yields an invalid date.
func (h *Helpers) NewDate(ms any) (*goja.Object, error) {
	var arg goja.Value
	switch x := ms.(type) {
	case float64:
		arg = h.rt.ToValue(x)
	case int64:
		arg = h.rt.ToValue(x)
	case int:
		arg = h.rt.ToValue(x)
	default:
		arg = h.rt.ToValue(math.NaN())
	}
	return h.rt.New(h.date, arg)
}

// ResolvePromise returns Promise.resolve(v).
func (h *Helpers) ResolvePromise(v goja.Value) (*goja.Object, error) {
	res, err := h.promiseResolve(h.promise, v)
	if err != nil {
		return nil, err
	}
	return res.ToObject(h.rt), nil
}

// NewProxyFunction creates a script function that forwards calls and
// constructions to invoke.
func (h *Helpers) NewProxyFunction(name string, invoke Invoke) (*goja.Object, error) {
	native := h.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		construct := call.Argument(0).ToBoolean()
		var args []goja.Value
		if arr, ok := call.Argument(2).(*goja.Object); ok {
			args = Elements(arr)
		}
		return invoke(construct, call.Argument(1), args)
	})

	fn, err := h.proxyFactory(goja.Undefined(), native)
	if err != nil {
		return nil, err
	}
	obj := fn.ToObject(h.rt)
	if name != "" {
		if err := obj.DefineDataProperty("name", h.rt.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
