// Package renderer implements the referencing half of the remote object
// bridge.
//
// A Bridge owns a goja runtime's view of objects living in the owner
// process. Values handed to the owner are wrapped into descriptors, local
// functions among them registered as callbacks. Descriptors coming back are
// unwrapped into proxies whose calls, constructions and property accesses
// become synchronous requests. A proxy is cached by remote id for as long as
// a script can reach it; once collected, or released explicitly, the owner
// is told to drop the references it accounted for.
package renderer
