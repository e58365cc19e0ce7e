// Package owner implements the side of the remote object bridge that holds
// the real objects.
//
// A Session answers a renderer's requests against one goja runtime: it
// resolves names through a Host, pins every object it sends by reference in
// an ObjectRegistry until the renderer dereferences it, and turns renderer
// functions into local functions that post callback messages. Script
// exceptions raised while serving a request travel back as exception
// descriptors; malformed requests fail with protocol errors.
package owner
