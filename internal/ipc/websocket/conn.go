// Package websocket carries bridge messages over a WebSocket connection.
//
// Messages are JSON text frames. Frames larger than the compression threshold
// are zstd-compressed and sent as binary frames instead.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
)

// Options configures framing.
type Options struct {
	// CompressThreshold is the encoded size above which frames are
	// compressed. Zero disables compression.
	CompressThreshold int
	// ReadLimit caps a single frame, compressed or not.
	ReadLimit    int64
	WriteTimeout time.Duration
}

// OptionsFromConfig builds framing options from the transport configuration.
func OptionsFromConfig(cfg config.TransportConfig) Options {
	return Options{
		CompressThreshold: cfg.CompressThreshold,
		ReadLimit:         cfg.ReadLimit,
		WriteTimeout:      10 * time.Second,
	}
}

// Conn implements ipc.Conn on a gorilla WebSocket.
type Conn struct {
	ws   *gorilla.Conn
	opts Options
	enc  *zstd.Encoder
	dec  *zstd.Decoder

	wmu       sync.Mutex
	closeOnce sync.Once
}

var _ ipc.Conn = (*Conn)(nil)

// NewConn wraps an established WebSocket.
func NewConn(ws *gorilla.Conn, opts Options) (*Conn, error) {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32 << 20
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(opts.ReadLimit)))
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	ws.SetReadLimit(opts.ReadLimit)
	return &Conn{ws: ws, opts: opts, enc: enc, dec: dec}, nil
}

// Dial connects to a bridge host.
func Dial(ctx context.Context, url string, header http.Header, opts Options) (*Conn, error) {
	ws, _, err := gorilla.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	conn, err := NewConn(ws, opts)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return conn, nil
}

// Send writes one message, compressing it when it is large. The write
// deadline is the earlier of the write timeout and ctx's deadline.
func (c *Conn) Send(ctx context.Context, msg *ipc.Message) error {
	data, err := ipc.Encode(msg)
	if err != nil {
		return err
	}

	frameType := gorilla.TextMessage
	if c.opts.CompressThreshold > 0 && len(data) > c.opts.CompressThreshold {
		data = c.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
		frameType = gorilla.BinaryMessage
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(frameType, data)
}

// Recv reads one message.
func (c *Conn) Recv() (*ipc.Message, error) {
	frameType, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	switch frameType {
	case gorilla.TextMessage:
	case gorilla.BinaryMessage:
		data, err = c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ipc.ErrBadMessage, err)
		}
		if int64(len(data)) > c.opts.ReadLimit {
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", ipc.ErrBadMessage, c.opts.ReadLimit)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected frame type %d", ipc.ErrBadMessage, frameType)
	}
	return ipc.Decode(data)
}

// Close sends a close frame and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.ws.WriteControl(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()

		err = c.ws.Close()
		c.dec.Close()
	})
	return err
}
