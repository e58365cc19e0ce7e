package owner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
)

func (s *Session) register() {
	handlers := map[string]ipc.Handler{
		ipc.ChannelRequire:            s.handleRequire,
		ipc.ChannelGetBuiltin:         s.handleGetBuiltin,
		ipc.ChannelCurrentWindow:      s.handleCurrentWindow,
		ipc.ChannelCurrentWebContents: s.handleCurrentWebContents,
		ipc.ChannelGlobal:             s.handleGlobal,
		ipc.ChannelGuestWebContents:   s.handleGuestWebContents,
		ipc.ChannelConstructor:        s.handleConstructor,
		ipc.ChannelFunctionCall:       s.handleFunctionCall,
		ipc.ChannelMemberConstructor:  s.handleMemberConstructor,
		ipc.ChannelMemberCall:         s.handleMemberCall,
		ipc.ChannelMemberGet:          s.handleMemberGet,
		ipc.ChannelMemberSet:          s.handleMemberSet,
		ipc.ChannelDescribe:           s.handleDescribe,
	}
	for channel, h := range handlers {
		s.transport.Handle(channel, s.instrument(channel, h))
	}
	s.transport.Listen(ipc.ChannelDereference, s.onDereference)
}

// instrument records the outcome of each served request.
func (s *Session) instrument(channel string, h ipc.Handler) ipc.Handler {
	return func(ctx context.Context, args ipc.Args) (any, error) {
		start := time.Now()
		result, err := h(ctx, args)

		status := monitoring.StatusOK
		if err != nil {
			status = monitoring.StatusError
			s.logger.Warn("Request failed",
				zap.String("channel", channel),
				zap.Error(err))
		} else if d, ok := result.(*descriptor.Descriptor); ok && d.Type == descriptor.TypeException {
			status = monitoring.StatusException
		}
		s.metrics.RecordRequest(monitoring.SideOwner, channel, status, time.Since(start))
		return result, err
	}
}

func (s *Session) handleRequire(_ context.Context, args ipc.Args) (any, error) {
	var module string
	if err := args.Decode(&module); err != nil {
		return nil, err
	}
	return s.reply(s.host.Require(module))
}

func (s *Session) handleGetBuiltin(_ context.Context, args ipc.Args) (any, error) {
	var name string
	if err := args.Decode(&name); err != nil {
		return nil, err
	}
	return s.reply(s.host.Builtin(name))
}

func (s *Session) handleCurrentWindow(context.Context, ipc.Args) (any, error) {
	return s.reply(s.host.CurrentWindow())
}

func (s *Session) handleCurrentWebContents(context.Context, ipc.Args) (any, error) {
	return s.reply(s.host.CurrentWebContents())
}

func (s *Session) handleGlobal(_ context.Context, args ipc.Args) (any, error) {
	var name string
	if err := args.Decode(&name); err != nil {
		return nil, err
	}
	return s.reply(s.js.Get(s.rt.GlobalObject(), name))
}

func (s *Session) handleGuestWebContents(_ context.Context, args ipc.Args) (any, error) {
	var guestID int64
	if err := args.Decode(&guestID); err != nil {
		return nil, err
	}
	return s.reply(s.host.GuestWebContents(guestID))
}

// target decodes the leading object id and the wrapped argument list of a
// call or construction request.
func (s *Session) target(args ipc.Args, name *string) (*goja.Object, []goja.Value, error) {
	var (
		oid int64
		raw json.RawMessage
		err error
	)
	if name != nil {
		err = args.Decode(&oid, name, &raw)
	} else {
		err = args.Decode(&oid, &raw)
	}
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.objects.Get(oid)
	if err != nil {
		return nil, nil, err
	}
	values, err := s.unwrapArgs(raw)
	if err != nil {
		return nil, nil, err
	}
	return obj, values, nil
}

func (s *Session) handleConstructor(_ context.Context, args ipc.Args) (any, error) {
	ctor, values, err := s.target(args, nil)
	if err != nil {
		return nil, err
	}
	return s.reply(s.construct(ctor, values))
}

func (s *Session) handleFunctionCall(_ context.Context, args ipc.Args) (any, error) {
	fn, values, err := s.target(args, nil)
	if err != nil {
		return nil, err
	}
	return s.reply(s.invoke(fn, goja.Undefined(), values))
}

func (s *Session) handleMemberConstructor(_ context.Context, args ipc.Args) (any, error) {
	var name string
	obj, values, err := s.target(args, &name)
	if err != nil {
		return nil, err
	}
	member, err := s.js.Get(obj, name)
	if err != nil {
		return s.fail(err)
	}
	return s.reply(s.construct(member, values))
}

func (s *Session) handleMemberCall(_ context.Context, args ipc.Args) (any, error) {
	var name string
	obj, values, err := s.target(args, &name)
	if err != nil {
		return nil, err
	}
	member, err := s.js.Get(obj, name)
	if err != nil {
		return s.fail(err)
	}
	return s.reply(s.invoke(member, obj, values))
}

func (s *Session) handleMemberGet(_ context.Context, args ipc.Args) (any, error) {
	var (
		oid  int64
		name string
	)
	if err := args.Decode(&oid, &name); err != nil {
		return nil, err
	}
	obj, err := s.objects.Get(oid)
	if err != nil {
		return nil, err
	}
	return s.reply(s.js.Get(obj, name))
}

func (s *Session) handleMemberSet(_ context.Context, args ipc.Args) (any, error) {
	var (
		oid  int64
		name string
		d    descriptor.Descriptor
	)
	if err := args.Decode(&oid, &name, &d); err != nil {
		return nil, err
	}
	if err := descriptor.Validate(&d, s.opts.Limits); err != nil {
		return nil, err
	}
	obj, err := s.objects.Get(oid)
	if err != nil {
		return nil, err
	}
	v, err := s.Unwrap(&d)
	if err != nil {
		return nil, err
	}
	if err := s.js.Set(obj, name, v); err != nil {
		return s.fail(err)
	}
	return descriptor.Null(), nil
}

// handleDescribe returns the shape of a pinned object without counting a
// reference.
func (s *Session) handleDescribe(_ context.Context, args ipc.Args) (any, error) {
	var oid int64
	if err := args.Decode(&oid); err != nil {
		return nil, err
	}
	obj, err := s.objects.Get(oid)
	if err != nil {
		return nil, err
	}
	d := &descriptor.Descriptor{Type: descriptor.TypeRemoteObject, ID: oid}
	if _, ok := goja.AssertFunction(obj); ok {
		d.Type = descriptor.TypeFunction
	}
	s.describe(d, obj)
	return d, nil
}

func (s *Session) onDereference(_ context.Context, args ipc.Args) {
	var (
		oid  int64
		refs int
	)
	if err := args.Decode(&oid, &refs); err != nil {
		s.logger.Warn("Malformed dereference", zap.Error(err))
		return
	}
	if s.objects.Release(oid, refs) {
		s.logger.Debug("Object unpinned", zap.Int64("remote_id", oid))
	}
	s.metrics.SetOwnerObjects(s.objects.Len())
}

func (s *Session) invoke(fn goja.Value, this goja.Value, args []goja.Value) (goja.Value, error) {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, s.typeError("%s is not a function", describeValue(fn))
	}
	return call(this, args...)
}

func (s *Session) construct(ctor goja.Value, args []goja.Value) (goja.Value, error) {
	if _, ok := goja.AssertConstructor(ctor); !ok {
		return nil, s.typeError("%s is not a constructor", describeValue(ctor))
	}
	return s.rt.New(ctor, args...)
}

// typeError returns a TypeError of the session runtime as an exception.
func (s *Session) typeError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	exc := s.rt.Try(func() {
		panic(s.rt.NewTypeError("%s", msg))
	})
	if exc == nil {
		return errors.New(msg)
	}
	return exc
}

func describeValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	return v.String()
}
