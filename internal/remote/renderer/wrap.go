package renderer

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/hidden"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/jsutil"
)

// wrapper holds the state of one Wrap call. path is the chain of containers
// from the root to the value being wrapped; a value found on it closes a
// cycle. added lists the callback references taken so far.
type wrapper struct {
	b     *Bridge
	path  []*goja.Object
	nodes int
	added []int64
}

// Wrap converts a local value into a descriptor. Local functions are
// registered as callbacks the owner may invoke later.
func (b *Bridge) Wrap(v goja.Value) (*descriptor.Descriptor, error) {
	w := &wrapper{b: b}
	d, err := w.wrap(v)
	if err != nil {
		w.rollback()
		return nil, err
	}
	return d, nil
}

// WrapArgs wraps args as one descriptor list sharing the node limit. On
// failure no callback registered for any argument is kept.
func (b *Bridge) WrapArgs(args []goja.Value) ([]*descriptor.Descriptor, error) {
	w := &wrapper{b: b}
	out := make([]*descriptor.Descriptor, len(args))
	for i, arg := range args {
		d, err := w.wrap(arg)
		if err != nil {
			w.rollback()
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// rollback drops the callback references taken by a wrap that was never sent.
func (w *wrapper) rollback() {
	for _, cid := range w.added {
		w.b.callbacks.Release(cid, 1)
	}
	w.added = nil
	w.b.metrics.SetCallbacks(w.b.callbacks.Len())
}

func (w *wrapper) enter(obj *goja.Object) (bool, error) {
	for _, seen := range w.path {
		if seen == obj {
			if w.b.opts.CyclePolicy == config.CycleReject {
				return false, descriptor.ErrCycle
			}
			return false, nil
		}
	}
	if len(w.path)+1 > w.b.opts.Limits.MaxDepth {
		return false, fmt.Errorf("%w: depth exceeds %d", descriptor.ErrTooDeep, w.b.opts.Limits.MaxDepth)
	}
	w.path = append(w.path, obj)
	return true, nil
}

func (w *wrapper) leave() {
	w.path = w.path[:len(w.path)-1]
}

// reserve fails when n more nodes would not fit the node limit.
func (w *wrapper) reserve(n int) error {
	if n > w.b.opts.Limits.MaxNodes-w.nodes {
		return fmt.Errorf("%w: more than %d nodes", descriptor.ErrTooLarge, w.b.opts.Limits.MaxNodes)
	}
	return nil
}

func (w *wrapper) wrap(v goja.Value) (*descriptor.Descriptor, error) {
	if err := w.reserve(1); err != nil {
		return nil, err
	}
	w.nodes++

	js := w.b.js
	kind := js.KindOf(v)
	switch kind {
	case jsutil.KindNull, jsutil.KindPrimitive:
		return descriptor.Scalar(jsutil.Scalar(v)), nil
	}
	obj := v.(*goja.Object)

	switch kind {
	case jsutil.KindArray:
		return w.container(obj, w.array)
	case jsutil.KindBuffer:
		return &descriptor.Descriptor{Type: descriptor.TypeBuffer, Bytes: js.Bytes(obj)}, nil
	case jsutil.KindDate:
		d := &descriptor.Descriptor{Type: descriptor.TypeDate}
		if ms, ok := js.DateMillis(obj); ok {
			d.Value = ms
		}
		return d, nil
	}

	if id, ok := w.b.hidden.Int(obj, hidden.RemoteID); ok {
		return descriptor.Remote(id), nil
	}

	switch kind {
	case jsutil.KindError:
		return w.container(obj, w.failure)
	case jsutil.KindPromise:
		return w.promise(obj)
	case jsutil.KindObject:
		return w.container(obj, w.object)
	case jsutil.KindFunction:
		if w.b.hidden.Has(obj, hidden.ReturnValue) {
			return w.returnValue(obj)
		}
		return w.function(obj)
	}
	return descriptor.Null(), nil
}

// container guards fn with cycle detection on obj.
func (w *wrapper) container(obj *goja.Object, fn func(*goja.Object) (*descriptor.Descriptor, error)) (*descriptor.Descriptor, error) {
	ok, err := w.enter(obj)
	if err != nil {
		return nil, err
	}
	if !ok {
		return descriptor.Null(), nil
	}
	defer w.leave()
	return fn(obj)
}

func (w *wrapper) array(obj *goja.Object) (*descriptor.Descriptor, error) {
	n := jsutil.Length(obj)
	if err := w.reserve(n); err != nil {
		return nil, err
	}
	items := make([]*descriptor.Descriptor, 0, n)
	err := jsutil.EachElement(obj, func(_ int, elem goja.Value) error {
		d, err := w.wrap(elem)
		if err != nil {
			return err
		}
		items = append(items, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &descriptor.Descriptor{Type: descriptor.TypeArray, Items: items}, nil
}

func (w *wrapper) object(obj *goja.Object) (*descriptor.Descriptor, error) {
	members, err := w.fields(obj, jsutil.EnumerableKeys(obj))
	if err != nil {
		return nil, err
	}
	return &descriptor.Descriptor{
		Type:    descriptor.TypeObject,
		Name:    jsutil.ConstructorName(obj),
		Members: members,
	}, nil
}

func (w *wrapper) failure(obj *goja.Object) (*descriptor.Descriptor, error) {
	message, stack := jsutil.ErrorDetails(obj)
	members, err := w.fields(obj, obj.Keys())
	if err != nil {
		return nil, err
	}
	return &descriptor.Descriptor{
		Type:    descriptor.TypeError,
		Name:    jsutil.ConstructorName(obj),
		Message: message,
		Stack:   stack,
		Members: members,
	}, nil
}

// fields snapshots the named properties of obj, reading each through normal
// property access.
func (w *wrapper) fields(obj *goja.Object, keys []string) ([]descriptor.Member, error) {
	members := make([]descriptor.Member, 0, len(keys))
	for _, key := range keys {
		val, err := w.b.js.Get(obj, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		d, err := w.wrap(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		members = append(members, descriptor.Member{Name: key, Enumerable: true, Value: d})
	}
	return members, nil
}

func (w *wrapper) promise(obj *goja.Object) (*descriptor.Descriptor, error) {
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		return w.container(obj, w.object)
	}
	rt := w.b.rt
	forward := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		res, err := then(obj, call.Argument(0), call.Argument(1))
		if err != nil {
			w.b.rethrow(err)
		}
		return res
	}).ToObject(rt)

	d, err := w.function(forward)
	if err != nil {
		return nil, err
	}
	d.Name = "then"
	return &descriptor.Descriptor{Type: descriptor.TypePromise, Then: d}, nil
}

func (w *wrapper) returnValue(fn *goja.Object) (*descriptor.Descriptor, error) {
	call, _ := goja.AssertFunction(fn)
	res, err := call(goja.Undefined())
	if err != nil {
		return nil, fmt.Errorf("fixed return value: %w", err)
	}
	ret, err := w.wrap(res)
	if err != nil {
		return nil, err
	}
	return &descriptor.Descriptor{Type: descriptor.TypeFunctionWithReturnValue, Return: ret}, nil
}

func (w *wrapper) function(fn *goja.Object) (*descriptor.Descriptor, error) {
	var location string
	if w.b.opts.CaptureLocation {
		location = w.b.js.Location()
	}
	id, err := w.b.callbacks.Add(fn, location)
	if err != nil {
		return nil, err
	}
	w.added = append(w.added, id)
	w.b.metrics.SetCallbacks(w.b.callbacks.Len())
	return &descriptor.Descriptor{
		Type:     descriptor.TypeFunction,
		ID:       id,
		Name:     jsutil.FunctionName(fn),
		Location: location,
	}, nil
}
