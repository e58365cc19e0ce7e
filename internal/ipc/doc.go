// Package ipc carries bridge messages between a renderer and its owner.
//
// An Endpoint offers the two primitives the bridge is built on: Send, an
// ordered fire-and-forget notification, and SendSync, a request that blocks
// the calling script thread until the peer replies. Messages carry a channel
// name and a positional JSON argument array, for example
//
//	ep.SendSync(ctx, ipc.ChannelRequire, "electron")
//
// Conns are pluggable: Pipe connects two endpoints in memory and the
// websocket subpackage carries frames over a network connection.
package ipc
