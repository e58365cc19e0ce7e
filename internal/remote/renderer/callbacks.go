package renderer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
)

// onCallback runs a local function the owner invoked. Failures stay local:
// they are logged and reported to OnCallbackError.
func (b *Bridge) onCallback(ctx context.Context, args ipc.Args) {
	var (
		cid int64
		raw json.RawMessage
	)
	if err := args.Decode(&cid, &raw); err != nil {
		b.callbackFailed(cid, err)
		return
	}

	list, err := descriptor.UnmarshalList(raw, b.opts.Limits)
	if err != nil {
		b.callbackFailed(cid, err)
		return
	}

	prev := b.enter(ctx)
	defer b.leave(prev)

	values, err := b.UnwrapList(list)
	if err != nil {
		b.callbackFailed(cid, err)
		return
	}
	if _, err := b.callbacks.Apply(cid, goja.Undefined(), values...); err != nil {
		b.callbackFailed(cid, err)
	}
}

// onReleaseCallback drops references the owner held on a local function.
// The count is optional and defaults to one.
func (b *Bridge) onReleaseCallback(_ context.Context, args ipc.Args) {
	items, err := args.Items()
	if err == nil && len(items) == 0 {
		err = ipc.ErrBadArgs
	}
	var cid int64
	if err == nil {
		err = sonic.Unmarshal(items[0], &cid)
	}
	n := 1
	if err == nil && len(items) > 1 {
		err = sonic.Unmarshal(items[1], &n)
	}
	if err != nil {
		b.logger.Warn("Malformed callback release", zap.Error(err))
		return
	}

	if b.callbacks.Release(cid, n) {
		b.metrics.SetCallbacks(b.callbacks.Len())
	}
}

func (b *Bridge) callbackFailed(cid int64, err error) {
	b.metrics.IncCallbackErrors()
	b.logger.Error("Callback failed",
		zap.Int64("callback_id", cid),
		zap.String("location", b.callbacks.Location(cid)),
		zap.Error(err))
	if b.opts.OnCallbackError != nil {
		b.opts.OnCallbackError(cid, fmt.Errorf("callback %d: %w", cid, err))
	}
}
