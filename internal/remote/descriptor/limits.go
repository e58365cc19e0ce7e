package descriptor

import "fmt"

// Limits bounds inbound descriptor trees.
type Limits struct {
	MaxDepth int
	MaxNodes int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxDepth: 64, MaxNodes: 100000}
}

// Validate walks d and checks the type tags, the per-variant required fields
// and the limits. It never allocates proxies or touches a runtime.
func Validate(d *Descriptor, limits Limits) error {
	if limits.MaxDepth <= 0 || limits.MaxNodes <= 0 {
		limits = DefaultLimits()
	}
	v := validator{limits: limits}
	return v.descriptor(d, 1)
}

type validator struct {
	limits Limits
	nodes  int
}

func (v *validator) visit(depth int) error {
	if depth > v.limits.MaxDepth {
		return fmt.Errorf("%w: depth %d exceeds %d", ErrTooDeep, depth, v.limits.MaxDepth)
	}
	v.nodes++
	if v.nodes > v.limits.MaxNodes {
		return fmt.Errorf("%w: more than %d nodes", ErrTooLarge, v.limits.MaxNodes)
	}
	return nil
}

func (v *validator) descriptor(d *Descriptor, depth int) error {
	if d == nil {
		return fmt.Errorf("%w: missing descriptor", ErrMalformed)
	}
	if err := v.visit(depth); err != nil {
		return err
	}

	switch d.Type {
	case TypeValue:
		switch d.Value.(type) {
		case nil, bool, string, float64, int, int64, float32, int32, uint64:
		default:
			return fmt.Errorf("%w: value of type %T is not a scalar", ErrMalformed, d.Value)
		}
	case TypeDate:
		switch d.Value.(type) {
		case float64, int64, int, nil:
		default:
			return fmt.Errorf("%w: date timestamp is not a number", ErrMalformed)
		}
	case TypeBuffer, TypeException:
	case TypeArray:
		for _, item := range d.Items {
			if err := v.descriptor(item, depth+1); err != nil {
				return err
			}
		}
	case TypePromise:
		if d.Then == nil || d.Then.Type != TypeFunction {
			return fmt.Errorf("%w: promise without then function", ErrMalformed)
		}
		return v.descriptor(d.Then, depth+1)
	case TypeFunctionWithReturnValue:
		if d.Return == nil {
			return fmt.Errorf("%w: function-with-return-value without return", ErrMalformed)
		}
		return v.descriptor(d.Return, depth+1)
	case TypeRemoteObject, TypeFunction:
		if d.ID <= 0 {
			return fmt.Errorf("%w: %s without id", ErrMalformed, d.Type)
		}
		if err := v.members(d.Members, depth); err != nil {
			return err
		}
		return v.shape(d.Proto, depth+1)
	case TypeObject, TypeError:
		return v.members(d.Members, depth)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, d.Type)
	}
	return nil
}

func (v *validator) members(members []Member, depth int) error {
	for i := range members {
		m := &members[i]
		if m.Name == "" {
			return fmt.Errorf("%w: member without name", ErrMalformed)
		}
		switch m.Type {
		case "", MemberMethod, MemberGet:
		default:
			return fmt.Errorf("%w: unknown member type %q", ErrMalformed, m.Type)
		}
		if m.Value != nil {
			if err := v.descriptor(m.Value, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *validator) shape(s *Shape, depth int) error {
	for ; s != nil; s = s.Proto {
		if err := v.visit(depth); err != nil {
			return err
		}
		if err := v.members(s.Members, depth); err != nil {
			return err
		}
		depth++
	}
	return nil
}
