package jsutil

import (
	"errors"

	"github.com/dop251/goja"
)

// NewError creates an Error carrying message and, when set, stack.
func (h *Helpers) NewError(message, stack string) *goja.Object {
	obj, err := h.rt.New(h.errorCtor, h.rt.ToValue(message))
	if err != nil {
		return h.rt.NewGoError(errors.New(message))
	}
	if stack != "" {
		_ = obj.Set("stack", stack)
	}
	return obj
}

// Throw raises v as a script exception. It must be called from a Go function
// invoked by the runtime.
func Throw(v goja.Value) {
	panic(v)
}

// ErrorDetails extracts message and stack from an error object.
func ErrorDetails(obj *goja.Object) (message, stack string) {
	if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
		message = m.String()
	} else {
		message = obj.String()
	}
	if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) {
		stack = s.String()
	}
	return message, stack
}

// ExceptionDetails extracts message and stack from an error returned by the
// runtime. Thrown non-error values are stringified.
func ExceptionDetails(err error) (message, stack string) {
	var exc *goja.Exception
	if !errors.As(err, &exc) {
		return err.Error(), ""
	}

	if obj, ok := exc.Value().(*goja.Object); ok {
		message, stack = ErrorDetails(obj)
	} else if exc.Value() != nil {
		message = exc.Value().String()
	}
	if stack == "" {
		stack = exc.String()
	}
	return message, stack
}

// Location returns the position of the innermost script frame of the current
// call stack, or "" outside script code.
func (h *Helpers) Location() string {
	frames := h.rt.CaptureCallStack(4, nil)
	for _, f := range frames {
		if name := f.SrcName(); name == "" || name == "<native>" {
			continue
		}
		pos := f.Position()
		return pos.String()
	}
	return ""
}
