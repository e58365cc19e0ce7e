package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
)

var (
	ErrPoolClosed     = errors.New("sandbox pool is closed")
	ErrAcquireTimeout = errors.New("sandbox acquisition timeout")
)

const acquireTimeout = 5 * time.Second

// Pool manages a pool of reusable sandboxes
type Pool struct {
	config    Config
	logger    *zap.Logger
	sandboxes chan *Runtime
	size      int
	mu        sync.RWMutex
	closed    bool
}

// NewPool creates a sandbox pool
func NewPool(config Config, size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config:    config,
		logger:    logging.OrNop(logger),
		sandboxes: make(chan *Runtime, size),
		size:      size,
	}

	// Pre-create sandboxes
	for i := 0; i < size; i++ {
		sandbox, err := New(config, pool.logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.sandboxes <- sandbox
	}

	return pool, nil
}

// Acquire gets a sandbox from pool with timeout
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	sandboxes := p.sandboxes
	p.mu.RUnlock()

	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()

	select {
	case sandbox, ok := <-sandboxes:
		if !ok {
			return nil, ErrPoolClosed
		}
		return sandbox, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrAcquireTimeout
	}
}

// Release resets the sandbox and returns it to the pool
func (p *Pool) Release(sandbox *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return sandbox.Close()
	}

	if err := sandbox.Reset(); err != nil {
		p.logger.Warn("Sandbox reset failed, replacing", zap.Error(err))
		sandbox.Close()
		fresh, nerr := New(p.config, p.logger)
		if nerr != nil {
			return nerr
		}
		sandbox = fresh
	}

	select {
	case p.sandboxes <- sandbox:
		return nil
	default:
		// Pool full, close sandbox
		return sandbox.Close()
	}
}

// Execute runs script using pool
func (p *Pool) Execute(ctx context.Context, script string) (*Result, error) {
	sandbox, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(sandbox)

	return sandbox.Execute(ctx, script)
}

// Close closes pool and all sandboxes
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.sandboxes)

	for sandbox := range p.sandboxes {
		sandbox.Close()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:      p.size,
		Available: len(p.sandboxes),
		InUse:     p.size - len(p.sandboxes),
		Closed:    p.closed,
	}
}
