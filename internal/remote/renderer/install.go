package renderer

import (
	"context"

	"github.com/dop251/goja"
)

// Install defines a "remote" object on target exposing the bridge to
// scripts. Builtins and process are fetched on first access.
func (b *Bridge) Install(target *goja.Object) (*goja.Object, error) {
	remote := b.rt.NewObject()

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"require": b.scriptFetch(func(ctx context.Context, call goja.FunctionCall) (goja.Value, error) {
			return b.Require(ctx, call.Argument(0).String())
		}),
		"getBuiltin": b.scriptFetch(func(ctx context.Context, call goja.FunctionCall) (goja.Value, error) {
			return b.GetBuiltin(ctx, call.Argument(0).String())
		}),
		"getCurrentWindow": b.scriptFetch(func(ctx context.Context, _ goja.FunctionCall) (goja.Value, error) {
			return b.GetCurrentWindow(ctx)
		}),
		"getCurrentWebContents": b.scriptFetch(func(ctx context.Context, _ goja.FunctionCall) (goja.Value, error) {
			return b.GetCurrentWebContents(ctx)
		}),
		"getGlobal": b.scriptFetch(func(ctx context.Context, call goja.FunctionCall) (goja.Value, error) {
			return b.GetGlobal(ctx, call.Argument(0).String())
		}),
		"getGuestWebContents": b.scriptFetch(func(ctx context.Context, call goja.FunctionCall) (goja.Value, error) {
			return b.GetGuestWebContents(ctx, call.Argument(0).ToInteger())
		}),
		"createFunctionWithReturnValue": func(call goja.FunctionCall) goja.Value {
			return b.CreateFunctionWithReturnValue(call.Argument(0))
		},
		"release": func(call goja.FunctionCall) goja.Value {
			if err := b.Release(call.Argument(0)); err != nil {
				b.throw(err)
			}
			return goja.Undefined()
		},
	}
	for name, fn := range methods {
		if err := remote.Set(name, fn); err != nil {
			return nil, err
		}
	}

	lazy := func(name string, fetch func(context.Context) (goja.Value, error)) error {
		getter := b.rt.ToValue(func(goja.FunctionCall) goja.Value {
			v, err := fetch(b.ctx)
			if err != nil {
				b.throw(err)
			}
			return v
		})
		return remote.DefineAccessorProperty(name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}

	if err := lazy("process", b.Process); err != nil {
		return nil, err
	}
	for _, name := range b.opts.Builtins {
		builtin := name
		if err := lazy(builtin, func(ctx context.Context) (goja.Value, error) {
			return b.GetBuiltin(ctx, builtin)
		}); err != nil {
			return nil, err
		}
	}

	if err := target.Set("remote", remote); err != nil {
		return nil, err
	}
	return remote, nil
}

func (b *Bridge) scriptFetch(fetch func(context.Context, goja.FunctionCall) (goja.Value, error)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		v, err := fetch(b.ctx, call)
		if err != nil {
			b.throw(err)
		}
		return v
	}
}
