package ipc

import (
	"context"
	"io"
	"sync"
)

// Conn carries messages between two peers. Send may be called from several
// goroutines and gives up when ctx ends; Recv is called from one.
type Conn interface {
	Send(ctx context.Context, msg *Message) error
	Recv() (*Message, error)
	Close() error
}

const pipeBuffer = 1024

type pipeConn struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected in-memory conns. Messages are serialized on
// the way through so both ends see exactly what a real transport carries.
// Closing either end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	closed := make(chan struct{})
	once := &sync.Once{}

	a := &pipeConn{in: ba, out: ab, closed: closed, once: once}
	b := &pipeConn{in: ab, out: ba, closed: closed, once: once}
	return a, b
}

func (p *pipeConn) Send(ctx context.Context, msg *Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.out <- data:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Recv() (*Message, error) {
	select {
	case data := <-p.in:
		return Decode(data)
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
