package renderer

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
)

// Unwrap converts a descriptor received from the owner into a local value.
// Remote objects and functions become proxies, reused while the proxy for
// the same id is alive. An exception descriptor is returned as a
// *descriptor.RemoteError.
func (b *Bridge) Unwrap(d *descriptor.Descriptor) (goja.Value, error) {
	if d == nil {
		return goja.Undefined(), nil
	}

	switch d.Type {
	case descriptor.TypeValue:
		if d.Value == nil {
			return goja.Null(), nil
		}
		return b.rt.ToValue(d.Value), nil

	case descriptor.TypeArray:
		values := make([]goja.Value, len(d.Items))
		for i, item := range d.Items {
			v, err := b.Unwrap(item)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return b.js.NewArray(values), nil

	case descriptor.TypeBuffer:
		return b.js.NewUint8Array(d.Bytes)

	case descriptor.TypeDate:
		return b.js.NewDate(d.Value)

	case descriptor.TypePromise:
		then, err := b.Unwrap(d.Then)
		if err != nil {
			return nil, err
		}
		thenable := b.rt.NewObject()
		if err := thenable.Set("then", then); err != nil {
			return nil, err
		}
		return b.js.ResolvePromise(thenable)

	case descriptor.TypeError:
		obj := b.js.NewError(d.Message, d.Stack)
		for _, m := range d.Members {
			v, err := b.Unwrap(m.Value)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(m.Name, v); err != nil {
				return nil, err
			}
		}
		return obj, nil

	case descriptor.TypeException:
		return nil, d.AsError()

	case descriptor.TypeObject:
		return b.snapshot(d)

	case descriptor.TypeFunctionWithReturnValue:
		ret, err := b.Unwrap(d.Return)
		if err != nil {
			return nil, err
		}
		return b.rt.ToValue(func(goja.FunctionCall) goja.Value {
			return ret
		}), nil

	case descriptor.TypeRemoteObject, descriptor.TypeFunction:
		return b.remote(d)
	}
	return nil, fmt.Errorf("%w: unknown type %q", descriptor.ErrMalformed, d.Type)
}

// UnwrapList unwraps each descriptor in order.
func (b *Bridge) UnwrapList(list []*descriptor.Descriptor) ([]goja.Value, error) {
	out := make([]goja.Value, len(list))
	for i, d := range list {
		v, err := b.Unwrap(d)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
