package owner

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/hidden"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/jsutil"
)

// Names a function proxy provides by itself.
var skipFunctionMembers = map[string]struct{}{
	"length":    {},
	"name":      {},
	"arguments": {},
	"caller":    {},
	"prototype": {},
}

type wrapper struct {
	s     *Session
	path  []*goja.Object
	nodes int
	added []int64
}

// Wrap converts v into a descriptor for the renderer. Every object sent by
// reference is pinned and counted once.
func (s *Session) Wrap(v goja.Value) (*descriptor.Descriptor, error) {
	w := &wrapper{s: s}
	d, err := w.wrap(v, true)
	if err != nil {
		w.rollback()
		return nil, err
	}
	return d, nil
}

// WrapArgs wraps values as one descriptor list sharing the node limit. On
// failure no object pinned for any value stays pinned.
func (s *Session) WrapArgs(values []goja.Value) ([]*descriptor.Descriptor, error) {
	w := &wrapper{s: s}
	out := make([]*descriptor.Descriptor, len(values))
	for i, v := range values {
		d, err := w.wrap(v, true)
		if err != nil {
			w.rollback()
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// rollback unpins what a failed wrap added. Nothing was sent, so the renderer
// holds none of these references.
func (w *wrapper) rollback() {
	for _, oid := range w.added {
		w.s.objects.Release(oid, 1)
	}
	w.added = nil
}

func (w *wrapper) enter(obj *goja.Object) (bool, error) {
	for _, seen := range w.path {
		if seen == obj {
			if w.s.opts.CyclePolicy == config.CycleReject {
				return false, descriptor.ErrCycle
			}
			return false, nil
		}
	}
	if len(w.path)+1 > w.s.opts.Limits.MaxDepth {
		return false, fmt.Errorf("%w: depth exceeds %d", descriptor.ErrTooDeep, w.s.opts.Limits.MaxDepth)
	}
	w.path = append(w.path, obj)
	return true, nil
}

// reserve fails when n more nodes would not fit the node limit.
func (w *wrapper) reserve(n int) error {
	if n > w.s.opts.Limits.MaxNodes-w.nodes {
		return fmt.Errorf("%w: more than %d nodes", descriptor.ErrTooLarge, w.s.opts.Limits.MaxNodes)
	}
	return nil
}

// wrap converts one value. shaped is false for the fields of a snapshot:
// their references travel bare and the renderer describes them on first use.
func (w *wrapper) wrap(v goja.Value, shaped bool) (*descriptor.Descriptor, error) {
	if err := w.reserve(1); err != nil {
		return nil, err
	}
	w.nodes++

	js := w.s.js
	kind := js.KindOf(v)
	switch kind {
	case jsutil.KindNull, jsutil.KindPrimitive:
		return descriptor.Scalar(jsutil.Scalar(v)), nil
	}
	obj := v.(*goja.Object)

	switch kind {
	case jsutil.KindBuffer:
		return &descriptor.Descriptor{Type: descriptor.TypeBuffer, Bytes: js.Bytes(obj)}, nil
	case jsutil.KindDate:
		d := &descriptor.Descriptor{Type: descriptor.TypeDate}
		if ms, ok := js.DateMillis(obj); ok {
			d.Value = ms
		}
		return d, nil
	case jsutil.KindPromise:
		return w.promise(obj)
	case jsutil.KindFunction:
		return w.reference(obj, descriptor.TypeFunction, shaped)
	}

	ok, err := w.enter(obj)
	if err != nil {
		return nil, err
	}
	if !ok {
		return descriptor.Null(), nil
	}
	defer func() { w.path = w.path[:len(w.path)-1] }()

	switch {
	case kind == jsutil.KindArray:
		n := jsutil.Length(obj)
		if err := w.reserve(n); err != nil {
			return nil, err
		}
		items := make([]*descriptor.Descriptor, 0, n)
		err := jsutil.EachElement(obj, func(_ int, elem goja.Value) error {
			d, err := w.wrap(elem, true)
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
	case kind == jsutil.KindError:
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
	case w.s.hidden.Has(obj, hidden.Simple):
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
	return w.reference(obj, descriptor.TypeRemoteObject, shaped)
}

func (w *wrapper) fields(obj *goja.Object, keys []string) ([]descriptor.Member, error) {
	members := make([]descriptor.Member, 0, len(keys))
	for _, key := range keys {
		val, err := w.s.js.Get(obj, key)
		if err != nil {
			return nil, err
		}
		d, err := w.wrap(val, false)
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
		return w.reference(obj, descriptor.TypeRemoteObject, true)
	}
	rt := w.s.rt
	forward := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		res, err := then(obj, call.Argument(0), call.Argument(1))
		if err != nil {
			throw(rt, err)
		}
		return res
	}).ToObject(rt)

	d, err := w.reference(forward, descriptor.TypeFunction, true)
	if err != nil {
		return nil, err
	}
	return &descriptor.Descriptor{Type: descriptor.TypePromise, Then: d}, nil
}

// reference pins obj and describes it by id.
func (w *wrapper) reference(obj *goja.Object, typ descriptor.Type, shaped bool) (*descriptor.Descriptor, error) {
	oid := w.s.objects.Add(obj)
	w.added = append(w.added, oid)

	d := &descriptor.Descriptor{Type: typ, ID: oid}
	if shaped {
		w.s.describe(d, obj)
	}
	return d, nil
}

// describe fills in the name and shape of a reference.
func (s *Session) describe(d *descriptor.Descriptor, obj *goja.Object) {
	if d.Type == descriptor.TypeFunction {
		d.Name = jsutil.FunctionName(obj)
	} else {
		d.Name = jsutil.ConstructorName(obj)
	}
	d.Members = s.members(obj)
	d.Proto = s.prototype(obj)
}

// members lists the own properties of obj as remote members.
func (s *Session) members(obj *goja.Object) []descriptor.Member {
	isFunction := s.js.KindOf(obj) == jsutil.KindFunction

	var out []descriptor.Member
	for _, p := range s.js.OwnProperties(obj) {
		if isFunction {
			if _, skip := skipFunctionMembers[p.Name]; skip {
				continue
			}
		}
		m := descriptor.Member{Name: p.Name, Type: descriptor.MemberGet, Enumerable: p.Enumerable}
		switch {
		case p.IsAccessor():
			m.Writable = p.Setter != nil
		case s.js.KindOf(p.Value) == jsutil.KindFunction:
			m.Type = descriptor.MemberMethod
		default:
			m.Writable = p.Writable
		}
		out = append(out, m)
	}
	return out
}

// prototype describes the prototype chain of obj up to Object.prototype.
func (s *Session) prototype(obj *goja.Object) *descriptor.Shape {
	proto := obj.Prototype()
	if proto == nil || proto == s.js.ObjectPrototype() {
		return nil
	}
	return &descriptor.Shape{
		Members: s.members(proto),
		Proto:   s.prototype(proto),
	}
}
