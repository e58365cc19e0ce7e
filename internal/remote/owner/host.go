package owner

import (
	"fmt"

	"github.com/dop251/goja"
)

// Host supplies the objects a renderer can reach by name. Values must belong
// to the runtime of the session they are served from. Errors are delivered
// to the renderer as exceptions.
type Host interface {
	Require(module string) (goja.Value, error)
	Builtin(name string) (goja.Value, error)
	CurrentWindow() (goja.Value, error)
	CurrentWebContents() (goja.Value, error)
	GuestWebContents(guestID int64) (goja.Value, error)
}

// StaticHost serves fixed values.
type StaticHost struct {
	Modules     map[string]goja.Value
	Builtins    map[string]goja.Value
	Window      goja.Value
	WebContents goja.Value
	Guests      map[int64]goja.Value
}

func (h *StaticHost) Require(module string) (goja.Value, error) {
	if v, ok := h.Modules[module]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("Cannot find module '%s'", module)
}

func (h *StaticHost) Builtin(name string) (goja.Value, error) {
	if v, ok := h.Builtins[name]; ok {
		return v, nil
	}
	return goja.Undefined(), nil
}

func (h *StaticHost) CurrentWindow() (goja.Value, error) {
	if h.Window == nil {
		return goja.Null(), nil
	}
	return h.Window, nil
}

func (h *StaticHost) CurrentWebContents() (goja.Value, error) {
	if h.WebContents == nil {
		return goja.Null(), nil
	}
	return h.WebContents, nil
}

func (h *StaticHost) GuestWebContents(guestID int64) (goja.Value, error) {
	if v, ok := h.Guests[guestID]; ok {
		return v, nil
	}
	return goja.Null(), nil
}
