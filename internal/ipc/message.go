package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Kind distinguishes the three message shapes on the wire.
type Kind string

const (
	KindSend  Kind = "send"
	KindSync  Kind = "sync"
	KindReply Kind = "reply"
)

// Message is one transport frame. Args is a JSON array of positional
// arguments; Result and Error are only set on replies.
type Message struct {
	Kind    Kind            `json:"kind"`
	Seq     int64           `json:"seq,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Encode serializes a message.
func Encode(msg *Message) ([]byte, error) {
	return sonic.Marshal(msg)
}

// Decode parses a message and checks its kind.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	switch msg.Kind {
	case KindSend, KindSync:
		if msg.Channel == "" {
			return nil, fmt.Errorf("%w: %s without channel", ErrBadMessage, msg.Kind)
		}
	case KindReply:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadMessage, msg.Kind)
	}
	return &msg, nil
}

// Args is the positional argument array of a message.
type Args json.RawMessage

// EncodeArgs builds an argument array from values.
func EncodeArgs(values ...any) (Args, error) {
	if values == nil {
		values = []any{}
	}
	data, err := sonic.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	return Args(data), nil
}

// Items splits the array into its raw elements.
func (a Args) Items() ([]json.RawMessage, error) {
	if len(a) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := sonic.Unmarshal(a, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return items, nil
}

// Decode unmarshals the leading elements into targets, in order. Missing
// elements are an error; extra elements are ignored.
func (a Args) Decode(targets ...any) error {
	items, err := a.Items()
	if err != nil {
		return err
	}
	if len(items) < len(targets) {
		return fmt.Errorf("%w: want %d arguments, got %d", ErrBadArgs, len(targets), len(items))
	}
	for i, target := range targets {
		if err := sonic.Unmarshal(items[i], target); err != nil {
			return fmt.Errorf("%w: argument %d: %v", ErrBadArgs, i, err)
		}
	}
	return nil
}
