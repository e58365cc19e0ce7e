package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExecute(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2, nil)
	require.NoError(t, err)
	defer pool.Close()

	result, err := pool.Execute(context.Background(), "'pooled'")
	require.NoError(t, err)
	assert.Equal(t, "pooled", result.Value)
	assert.Equal(t, PoolStats{Size: 2, Available: 2}, pool.Stats())
}

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1, nil)
	require.NoError(t, err)
	defer pool.Close()

	sb, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stats().InUse)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = sb.Execute(context.Background(), "var dirty = true")
	require.NoError(t, err)
	require.NoError(t, pool.Release(sb))

	sb, err = pool.Acquire(context.Background())
	require.NoError(t, err)
	result, err := sb.Execute(context.Background(), "typeof dirty")
	require.NoError(t, err)
	assert.Equal(t, "undefined", result.Value)
	require.NoError(t, pool.Release(sb))
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, pool.Stats().Closed)
}
