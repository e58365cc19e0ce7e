package descriptor

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Type tags one Descriptor variant on the wire.
type Type string

const (
	TypeValue                   Type = "value"
	TypeArray                   Type = "array"
	TypeBuffer                  Type = "buffer"
	TypeDate                    Type = "date"
	TypePromise                 Type = "promise"
	TypeRemoteObject            Type = "remote-object"
	TypeObject                  Type = "object"
	TypeFunction                Type = "function"
	TypeFunctionWithReturnValue Type = "function-with-return-value"
	TypeError                   Type = "error"
	TypeException               Type = "exception"
)

// Valid reports whether t is part of the grammar.
func (t Type) Valid() bool {
	switch t {
	case TypeValue, TypeArray, TypeBuffer, TypeDate, TypePromise,
		TypeRemoteObject, TypeObject, TypeFunction,
		TypeFunctionWithReturnValue, TypeError, TypeException:
		return true
	}
	return false
}

// MemberType distinguishes callable members from accessors on remote objects.
// Snapshot fields of an "object" descriptor leave it empty.
type MemberType string

const (
	MemberMethod MemberType = "method"
	MemberGet    MemberType = "get"
)

// Descriptor is the wire representation of one marshaled value.
//
// Only the fields relevant to Type are populated. Value is deliberately not
// omitempty: false, 0 and "" are legitimate scalars.
type Descriptor struct {
	Type     Type          `json:"type"`
	Value    any           `json:"value"`
	Items    []*Descriptor `json:"items,omitempty"`
	Bytes    []byte        `json:"bytes,omitempty"`
	Then     *Descriptor   `json:"then,omitempty"`
	Return   *Descriptor   `json:"return,omitempty"`
	ID       int64         `json:"id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Location string        `json:"location,omitempty"`
	Members  []Member      `json:"members,omitempty"`
	Proto    *Shape        `json:"proto,omitempty"`
	Message  string        `json:"message,omitempty"`
	Stack    string        `json:"stack,omitempty"`
}

// Member is one named slot of an object snapshot or a remote object.
type Member struct {
	Name       string      `json:"name"`
	Type       MemberType  `json:"type,omitempty"`
	Writable   bool        `json:"writable,omitempty"`
	Enumerable bool        `json:"enumerable,omitempty"`
	Value      *Descriptor `json:"value,omitempty"`
}

// Shape describes one level of a remote prototype chain.
type Shape struct {
	Members []Member `json:"members,omitempty"`
	Proto   *Shape   `json:"proto,omitempty"`
}

// Flatten resolves the chain into a single member table. The nearest
// definition of a name wins, so a member redefined lower in the chain shadows
// its ancestors exactly like property lookup would.
func (s *Shape) Flatten() []Member {
	var out []Member
	seen := make(map[string]struct{})
	for level := s; level != nil; level = level.Proto {
		for _, m := range level.Members {
			if _, ok := seen[m.Name]; ok {
				continue
			}
			seen[m.Name] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// HasShape reports whether a remote descriptor carries enough metadata to
// build a proxy without asking the owner.
func (d *Descriptor) HasShape() bool {
	return d.Name != "" || len(d.Members) > 0 || d.Proto != nil
}

// IsRemote reports whether d refers to an object owned by the sender.
func (d *Descriptor) IsRemote() bool {
	return d.Type == TypeRemoteObject || d.Type == TypeFunction
}

// Scalar builds a "value" descriptor.
func Scalar(v any) *Descriptor {
	return &Descriptor{Type: TypeValue, Value: v}
}

// Null is the descriptor sent for null, undefined and nulled-out cycles.
func Null() *Descriptor {
	return Scalar(nil)
}

// Remote builds a bare "remote-object" reference.
func Remote(id int64) *Descriptor {
	return &Descriptor{Type: TypeRemoteObject, ID: id}
}

// Exception builds a descriptor that must be re-thrown by the receiver.
func Exception(message, stack string) *Descriptor {
	return &Descriptor{Type: TypeException, Message: message, Stack: stack}
}

// Marshal encodes d as JSON.
func Marshal(d *Descriptor) ([]byte, error) {
	return sonic.Marshal(d)
}

// Unmarshal decodes one descriptor and validates it against limits.
func Unmarshal(data []byte, limits Limits) (*Descriptor, error) {
	var d Descriptor
	if err := sonic.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := Validate(&d, limits); err != nil {
		return nil, err
	}
	return &d, nil
}

// UnmarshalList decodes a JSON array of descriptors, validating each.
func UnmarshalList(data json.RawMessage, limits Limits) ([]*Descriptor, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var list []*Descriptor
	if err := sonic.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, d := range list {
		if err := Validate(d, limits); err != nil {
			return nil, err
		}
	}
	return list, nil
}
