package renderer

import (
	"runtime"
	"sync"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/hidden"
)

// remote returns the proxy for a remote-object or function descriptor,
// building one when no live proxy exists for its id.
func (b *Bridge) remote(d *descriptor.Descriptor) (goja.Value, error) {
	if proxy, ok := b.rel.cache.Get(d.ID); ok && b.rel.cache.Ref(d.ID) {
		return proxy, nil
	}

	if !d.HasShape() {
		shape, err := b.request(b.ctx, ipc.ChannelDescribe, d.ID)
		if err != nil {
			// The owner counted a reference for this descriptor; give it back.
			b.rel.dereference(d.ID, 1)
			return nil, err
		}
		// Describing may have dispatched other replies carrying the same id.
		if proxy, ok := b.rel.cache.Get(d.ID); ok && b.rel.cache.Ref(d.ID) {
			return proxy, nil
		}
		d = &descriptor.Descriptor{
			Type:    d.Type,
			ID:      d.ID,
			Name:    shape.Name,
			Members: shape.Members,
			Proto:   shape.Proto,
		}
	}

	proxy, err := b.buildProxy(d)
	if err != nil {
		b.rel.dereference(d.ID, 1)
		return nil, err
	}

	b.hidden.Set(proxy, hidden.RemoteID, d.ID)
	stale := b.rel.cache.Has(d.ID)
	token := b.rel.cache.Set(d.ID, proxy)
	runtime.AddCleanup(proxy, b.rel.collected, handle{id: d.ID, token: token})
	if !stale {
		b.metrics.AddProxies(1)
	}
	return proxy, nil
}

func (b *Bridge) buildProxy(d *descriptor.Descriptor) (*goja.Object, error) {
	id := d.ID

	var proxy *goja.Object
	if d.Type == descriptor.TypeFunction {
		fn, err := b.js.NewProxyFunction(d.Name, func(construct bool, _ goja.Value, args []goja.Value) goja.Value {
			wrapped := b.wrapArgsOrThrow(args)
			if construct {
				return b.call(ipc.ChannelConstructor, id, wrapped)
			}
			return b.call(ipc.ChannelFunctionCall, id, wrapped)
		})
		if err != nil {
			return nil, err
		}
		proxy = fn
	} else {
		proxy = b.rt.NewObject()
	}

	for _, m := range d.Members {
		if err := b.installMember(proxy, id, m); err != nil {
			return nil, err
		}
	}

	if d.Proto != nil {
		proto := b.rt.NewObject()
		for _, m := range d.Proto.Flatten() {
			if err := b.installMember(proto, id, m); err != nil {
				return nil, err
			}
		}
		if d.Type == descriptor.TypeRemoteObject && d.Name != "" {
			if err := b.nameConstructor(proto, d.Name); err != nil {
				return nil, err
			}
		}
		if err := proxy.SetPrototype(proto); err != nil {
			return nil, err
		}
	}
	return proxy, nil
}

// installMember defines one forwarding member on target. Names target
// already owns are left alone.
func (b *Bridge) installMember(target *goja.Object, id int64, m descriptor.Member) error {
	if _, ok := b.js.OwnProperty(target, m.Name); ok {
		return nil
	}
	name := m.Name

	if m.Type == descriptor.MemberMethod {
		fn, err := b.js.NewProxyFunction(name, func(construct bool, _ goja.Value, args []goja.Value) goja.Value {
			wrapped := b.wrapArgsOrThrow(args)
			if construct {
				return b.call(ipc.ChannelMemberConstructor, id, name, wrapped)
			}
			return b.call(ipc.ChannelMemberCall, id, name, wrapped)
		})
		if err != nil {
			return err
		}
		return target.DefineDataProperty(name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, flag(m.Enumerable))
	}

	getter := b.rt.ToValue(func(goja.FunctionCall) goja.Value {
		return b.call(ipc.ChannelMemberGet, id, name)
	})
	var setter goja.Value
	if m.Writable {
		setter = b.rt.ToValue(func(call goja.FunctionCall) goja.Value {
			v := call.Argument(0)
			d, err := b.Wrap(v)
			if err != nil {
				b.throw(err)
			}
			b.call(ipc.ChannelMemberSet, id, name, d)
			return v
		})
	}
	return target.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, flag(m.Enumerable))
}

// nameConstructor makes proxy.constructor.name report the remote class.
func (b *Bridge) nameConstructor(proto *goja.Object, name string) error {
	if own, ok := b.js.OwnProperty(proto, "constructor"); ok {
		if ctor, isObject := own.Value.(*goja.Object); isObject {
			return ctor.DefineDataProperty("name", b.rt.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
		}
		return nil
	}
	ctor, err := b.js.NewProxyFunction(name, func(bool, goja.Value, []goja.Value) goja.Value {
		b.throw(ErrNotConstructible)
		return nil
	})
	if err != nil {
		return err
	}
	return proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (b *Bridge) wrapArgsOrThrow(args []goja.Value) []*descriptor.Descriptor {
	wrapped, err := b.WrapArgs(args)
	if err != nil {
		b.throw(err)
	}
	return wrapped
}

func flag(v bool) goja.Flag {
	if v {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

// pendingRefs tracks the remote members of a snapshot that were never read.
// It must not reference the snapshot itself.
type pendingRefs struct {
	mu  sync.Mutex
	ids map[string]int64
}

func (p *pendingRefs) take(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ids[name]; !ok {
		return false
	}
	delete(p.ids, name)
	return true
}

// snapshot builds a plain object from an "object" descriptor. Scalar fields
// are copied eagerly; remote fields become accessors that build their proxy
// on first read.
func (b *Bridge) snapshot(d *descriptor.Descriptor) (goja.Value, error) {
	obj := b.rt.NewObject()
	pending := &pendingRefs{ids: make(map[string]int64)}

	for _, m := range d.Members {
		if m.Value == nil || !m.Value.IsRemote() {
			v, err := b.Unwrap(m.Value)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(m.Name, v); err != nil {
				return nil, err
			}
			continue
		}
		if err := b.lazyField(obj, pending, m.Name, m.Value); err != nil {
			return nil, err
		}
	}

	if len(pending.ids) > 0 {
		runtime.AddCleanup(obj, b.rel.unread, pending)
	}
	return obj, nil
}

func (b *Bridge) lazyField(obj *goja.Object, pending *pendingRefs, name string, d *descriptor.Descriptor) error {
	pending.ids[name] = d.ID

	settle := func(v goja.Value) {
		if err := obj.DefineDataProperty(name, v, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			b.throw(err)
		}
	}

	getter := b.rt.ToValue(func(goja.FunctionCall) goja.Value {
		if !pending.take(name) {
			return goja.Undefined()
		}
		v, err := b.Unwrap(d)
		if err != nil {
			b.throw(err)
		}
		settle(v)
		return v
	})
	setter := b.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		if pending.take(name) {
			b.rel.dereference(d.ID, 1)
		}
		settle(call.Argument(0))
		return call.Argument(0)
	})
	return obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}
