// Package descriptor defines the wire grammar of the remote object bridge.
//
// A Descriptor is a tagged, JSON-encoded tree describing one value. Scalars,
// arrays, buffers, dates and plain snapshots travel by value; objects and
// functions that must stay where they live travel as integer ids, optionally
// with the shape needed to build a proxy on the receiving side.
//
// Inbound trees are validated against Limits before any proxy is built, and
// every violation wraps ErrProtocol.
package descriptor
