package renderer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/callback"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/renderer"
)

func TestCallbackAppliesUnwrappedArgs(t *testing.T) {
	b, transport := newFakeBridge(t, renderer.Options{})
	rt := b.Runtime()

	fn, err := rt.RunString(`var got = []; (function () { got.push(Array.prototype.slice.call(arguments)); })`)
	require.NoError(t, err)
	d, err := b.Wrap(fn)
	require.NoError(t, err)

	args := []*descriptor.Descriptor{descriptor.Scalar(3), descriptor.Scalar("pong")}
	transport.deliver(t, ipc.ChannelCallback, d.ID, args)

	got, err := rt.RunString(`JSON.stringify(got)`)
	require.NoError(t, err)
	assert.Equal(t, `[[3,"pong"]]`, got.String())
}

func TestCallbackFailuresAreReported(t *testing.T) {
	var reported []error
	b, transport := newFakeBridge(t, renderer.Options{
		OnCallbackError: func(_ int64, err error) {
			reported = append(reported, err)
		},
	})

	fn, err := b.Runtime().RunString(`(function () { throw new Error("callback broke"); })`)
	require.NoError(t, err)
	d, err := b.Wrap(fn)
	require.NoError(t, err)

	transport.deliver(t, ipc.ChannelCallback, d.ID, []*descriptor.Descriptor{})
	transport.deliver(t, ipc.ChannelCallback, int64(999), []*descriptor.Descriptor{})

	require.Len(t, reported, 2)
	assert.Contains(t, reported[0].Error(), "callback broke")
	assert.ErrorIs(t, reported[1], callback.ErrUnknownCallback)
	assert.ErrorIs(t, reported[1], descriptor.ErrProtocol)
}

func TestReleaseCallbackCountsReferences(t *testing.T) {
	b, transport := newFakeBridge(t, renderer.Options{})

	fn, err := b.Runtime().RunString(`(function () {})`)
	require.NoError(t, err)
	d, err := b.Wrap(fn)
	require.NoError(t, err)
	_, err = b.Wrap(fn)
	require.NoError(t, err)

	transport.deliver(t, ipc.ChannelReleaseCallback, d.ID, 1)
	assert.Equal(t, 1, b.Stats().Callbacks)

	transport.deliver(t, ipc.ChannelReleaseCallback, d.ID)
	assert.Equal(t, 0, b.Stats().Callbacks)

	transport.deliver(t, ipc.ChannelReleaseCallback, d.ID, 1)
	assert.Equal(t, 0, b.Stats().Callbacks)
}
