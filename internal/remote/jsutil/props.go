package jsutil

import (
	"github.com/dop251/goja"
)

// Property is an own property as reported by Object.getOwnPropertyDescriptor.
// Getter and Setter are nil for data properties; Value is nil for accessors.
type Property struct {
	Name       string
	Value      goja.Value
	Getter     goja.Value
	Setter     goja.Value
	Writable   bool
	Enumerable bool
}

// IsAccessor reports whether the property has a getter or setter.
func (p Property) IsAccessor() bool {
	return p.Getter != nil || p.Setter != nil
}

// OwnProperty reads one own property descriptor without invoking getters.
func (h *Helpers) OwnProperty(obj *goja.Object, name string) (Property, bool) {
	res, err := h.ownDescriptor(goja.Undefined(), obj, h.rt.ToValue(name))
	if err != nil || res == nil || goja.IsUndefined(res) {
		return Property{}, false
	}
	desc := res.ToObject(h.rt)

	p := Property{
		Name:       name,
		Writable:   desc.Get("writable") != nil && desc.Get("writable").ToBoolean(),
		Enumerable: desc.Get("enumerable") != nil && desc.Get("enumerable").ToBoolean(),
	}
	if get := desc.Get("get"); get != nil && !goja.IsUndefined(get) {
		p.Getter = get
	}
	if set := desc.Get("set"); set != nil && !goja.IsUndefined(set) {
		p.Setter = set
	}
	if !p.IsAccessor() {
		p.Value = desc.Get("value")
		if p.Value == nil {
			p.Value = goja.Undefined()
		}
	}
	return p, true
}

// OwnProperties returns every own string-keyed property of obj, enumerable
// or not, in property order.
func (h *Helpers) OwnProperties(obj *goja.Object) []Property {
	names := obj.GetOwnPropertyNames()
	out := make([]Property, 0, len(names))
	for _, name := range names {
		if p, ok := h.OwnProperty(obj, name); ok {
			out = append(out, p)
		}
	}
	return out
}

// EnumerableKeys lists the keys a for-in loop would visit: enumerable
// string-keyed properties, own first, then inherited. A non-enumerable
// property hides an enumerable one further up the chain.
func EnumerableKeys(obj *goja.Object) []string {
	var keys []string
	seen := make(map[string]struct{})
	for level := obj; level != nil; level = level.Prototype() {
		enumerable := make(map[string]struct{})
		for _, name := range level.Keys() {
			enumerable[name] = struct{}{}
		}
		for _, name := range level.GetOwnPropertyNames() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			if _, ok := enumerable[name]; ok {
				keys = append(keys, name)
			}
		}
	}
	return keys
}

// ConstructorName returns obj.constructor.name, or "" when unavailable.
func ConstructorName(obj *goja.Object) string {
	ctor, ok := obj.Get("constructor").(*goja.Object)
	if !ok {
		return ""
	}
	name := ctor.Get("name")
	if name == nil || goja.IsUndefined(name) {
		return ""
	}
	return name.String()
}

// FunctionName returns fn.name, or "" when unavailable.
func FunctionName(fn *goja.Object) string {
	name := fn.Get("name")
	if name == nil || goja.IsUndefined(name) {
		return ""
	}
	return name.String()
}

// Get reads obj[name], returning an exception thrown by a getter as an error.
func (h *Helpers) Get(obj *goja.Object, name string) (v goja.Value, err error) {
	if exc := h.rt.Try(func() { v = obj.Get(name) }); exc != nil {
		return nil, exc
	}
	if v == nil {
		v = goja.Undefined()
	}
	return v, nil
}

// Set assigns obj[name], returning an exception thrown by a setter as an
// error.
func (h *Helpers) Set(obj *goja.Object, name string, v goja.Value) error {
	var err error
	if exc := h.rt.Try(func() { err = obj.Set(name, v) }); exc != nil {
		return exc
	}
	return err
}
