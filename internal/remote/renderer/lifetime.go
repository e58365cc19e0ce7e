package renderer

import (
	"context"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/hidden"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/idweak"
)

const dereferenceTimeout = 5 * time.Second

// handle identifies one cache entry for its cleanup.
type handle struct {
	id    int64
	token uint64
}

// releaser returns owner references. Cleanups run on the runtime's cleanup
// goroutine, so it holds nothing that reaches a proxy or the script runtime.
type releaser struct {
	cache     *idweak.Map[goja.Object]
	transport Transport
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// collected runs after a proxy became unreachable.
func (r *releaser) collected(h handle) {
	refs, ok := r.cache.Take(h.id, h.token)
	if !ok {
		return
	}
	r.metrics.AddProxies(-1)
	r.metrics.IncDereference("collected")
	r.send(h.id, refs)
}

// unread runs after a snapshot whose remote fields were never read became
// unreachable.
func (r *releaser) unread(p *pendingRefs) {
	p.mu.Lock()
	ids := make([]int64, 0, len(p.ids))
	for _, id := range p.ids {
		ids = append(ids, id)
	}
	p.ids = nil
	p.mu.Unlock()

	for _, id := range ids {
		r.metrics.IncDereference("unread")
		r.send(id, 1)
	}
}

func (r *releaser) dereference(id int64, refs int) {
	r.metrics.IncDereference("discarded")
	r.send(id, refs)
}

func (r *releaser) send(id int64, refs int) {
	if refs <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dereferenceTimeout)
	defer cancel()
	if err := r.transport.Send(ctx, ipc.ChannelDereference, id, refs); err != nil {
		// The owner reclaims everything on teardown.
		r.logger.Debug("Dereference not delivered",
			zap.Int64("id", id),
			zap.Int("refs", refs),
			zap.Error(err))
	}
}

// Release drops the proxy v now instead of waiting for it to be collected.
// The owner is told to drop every reference this proxy absorbed. Later
// descriptors for the same id build a fresh proxy.
func (b *Bridge) Release(v goja.Value) error {
	obj, ok := v.(*goja.Object)
	if !ok {
		return ErrNotProxy
	}
	id, ok := b.hidden.Int(obj, hidden.RemoteID)
	if !ok {
		return ErrNotProxy
	}
	refs, ok := b.rel.cache.TakeValue(id, obj)
	if !ok {
		return nil
	}
	b.metrics.AddProxies(-1)
	b.metrics.IncDereference("released")
	b.rel.send(id, refs)
	return nil
}

// Close releases every live proxy and forgets every callback. The bridge
// must not be used afterwards.
func (b *Bridge) Close() {
	for id, refs := range b.rel.cache.Drain() {
		b.metrics.AddProxies(-1)
		b.metrics.IncDereference("closed")
		b.rel.send(id, refs)
	}
	b.callbacks.Clear()
	b.metrics.SetCallbacks(0)
}
