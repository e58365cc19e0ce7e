package owner

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// SimpleHost is implemented by hosts that want some of their objects sent
// as snapshots instead of references. NewSession marks them.
type SimpleHost interface {
	SimpleObjects() []*goja.Object
}

// ScriptHost serves the globals a host script defines:
//
//	modules             name → exports, served by require
//	builtins            name → value, served by getBuiltin
//	currentWindow       served by getCurrentWindow
//	currentWebContents  served by getCurrentWebContents
//	guests              id → webContents, served by getGuestWebContents
//
// Module exports objects travel as snapshots, the way a module namespace
// would.
type ScriptHost struct {
	StaticHost
	simple []*goja.Object
}

var _ SimpleHost = (*ScriptHost)(nil)

// LoadScriptHost runs src in rt and collects the host globals.
func LoadScriptHost(rt *goja.Runtime, name, src string) (*ScriptHost, error) {
	if _, err := rt.RunScript(name, src); err != nil {
		return nil, fmt.Errorf("failed to run host script %s: %w", name, err)
	}

	h := &ScriptHost{
		StaticHost: StaticHost{
			Modules:  make(map[string]goja.Value),
			Builtins: make(map[string]goja.Value),
			Guests:   make(map[int64]goja.Value),
		},
	}

	each(rt, "modules", func(key string, v goja.Value) {
		h.Modules[key] = v
		if obj, ok := v.(*goja.Object); ok {
			h.simple = append(h.simple, obj)
		}
	})
	each(rt, "builtins", func(key string, v goja.Value) {
		h.Builtins[key] = v
	})

	var bad error
	each(rt, "guests", func(key string, v goja.Value) {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			bad = fmt.Errorf("guest id %q is not an integer", key)
			return
		}
		h.Guests[id] = v
	})
	if bad != nil {
		return nil, bad
	}

	h.Window = global(rt, "currentWindow")
	h.WebContents = global(rt, "currentWebContents")
	return h, nil
}

// SimpleObjects returns the module exports objects.
func (h *ScriptHost) SimpleObjects() []*goja.Object {
	return h.simple
}

func global(rt *goja.Runtime, name string) goja.Value {
	v := rt.GlobalObject().Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	return v
}

func each(rt *goja.Runtime, name string, fn func(key string, v goja.Value)) {
	v := global(rt, name)
	obj, ok := v.(*goja.Object)
	if !ok {
		return
	}
	for _, key := range obj.Keys() {
		fn(key, obj.Get(key))
	}
}
