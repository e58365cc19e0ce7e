package owner

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/jsutil"
)

// Unwrap converts a descriptor sent by the renderer into a value of the
// session runtime.
func (s *Session) Unwrap(d *descriptor.Descriptor) (goja.Value, error) {
	if d == nil {
		return goja.Undefined(), nil
	}

	switch d.Type {
	case descriptor.TypeValue:
		if d.Value == nil {
			return goja.Null(), nil
		}
		return s.rt.ToValue(d.Value), nil

	case descriptor.TypeArray:
		values, err := s.UnwrapList(d.Items)
		if err != nil {
			return nil, err
		}
		return s.js.NewArray(values), nil

	case descriptor.TypeBuffer:
		return s.js.NewUint8Array(d.Bytes)

	case descriptor.TypeDate:
		return s.js.NewDate(d.Value)

	case descriptor.TypePromise:
		then, err := s.Unwrap(d.Then)
		if err != nil {
			return nil, err
		}
		thenable := s.rt.NewObject()
		if err := thenable.Set("then", then); err != nil {
			return nil, err
		}
		return s.js.ResolvePromise(thenable)

	case descriptor.TypeObject, descriptor.TypeError:
		var obj *goja.Object
		if d.Type == descriptor.TypeError {
			obj = s.js.NewError(d.Message, d.Stack)
		} else {
			obj = s.rt.NewObject()
		}
		for _, m := range d.Members {
			v, err := s.Unwrap(m.Value)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(m.Name, v); err != nil {
				return nil, err
			}
		}
		return obj, nil

	case descriptor.TypeFunctionWithReturnValue:
		ret, err := s.Unwrap(d.Return)
		if err != nil {
			return nil, err
		}
		return s.rt.ToValue(func(goja.FunctionCall) goja.Value {
			return ret
		}), nil

	case descriptor.TypeRemoteObject:
		return s.objects.Get(d.ID)

	case descriptor.TypeFunction:
		return s.callback(d)

	case descriptor.TypeException:
		return nil, fmt.Errorf("%w: exception in request arguments", descriptor.ErrMalformed)
	}
	return nil, fmt.Errorf("%w: unknown type %q", descriptor.ErrMalformed, d.Type)
}

// UnwrapList unwraps each descriptor in order.
func (s *Session) UnwrapList(list []*descriptor.Descriptor) ([]goja.Value, error) {
	out := make([]goja.Value, len(list))
	for i, d := range list {
		v, err := s.Unwrap(d)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Session) unwrapArgs(raw json.RawMessage) ([]goja.Value, error) {
	list, err := descriptor.UnmarshalList(raw, s.opts.Limits)
	if err != nil {
		return nil, err
	}
	return s.UnwrapList(list)
}

// callback returns the function standing in for a renderer callback. Calls
// are delivered one way; their result is always undefined.
func (s *Session) callback(d *descriptor.Descriptor) (goja.Value, error) {
	if fn, ok := s.rel.cache.Get(d.ID); ok && s.rel.cache.Ref(d.ID) {
		return fn, nil
	}

	cid := d.ID
	fn, err := s.js.NewProxyFunction(d.Name, func(_ bool, _ goja.Value, args []goja.Value) goja.Value {
		wrapped, err := s.WrapArgs(args)
		if err != nil {
			throw(s.rt, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := s.transport.Send(ctx, ipc.ChannelCallback, cid, wrapped); err != nil {
			s.logger.Warn("Callback not delivered",
				zap.Int64("callback_id", cid),
				zap.String("location", d.Location),
				zap.Error(err))
		}
		return goja.Undefined()
	})
	if err != nil {
		return nil, err
	}

	token := s.rel.cache.Set(cid, fn)
	runtime.AddCleanup(fn, s.rel.collected, handle{id: cid, token: token})
	return fn, nil
}

// throw raises err in the calling script.
func throw(rt *goja.Runtime, err error) {
	if exc, ok := err.(*goja.Exception); ok {
		jsutil.Throw(exc.Value())
	}
	jsutil.Throw(rt.NewGoError(err))
}
