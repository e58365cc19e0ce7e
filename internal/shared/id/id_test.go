package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		name   string
		prefix string
	}{
		{name: "peer", prefix: PeerPrefix},
		{name: "session", prefix: SessionPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gen.GenerateWithPrefix(tt.prefix)
			assert.True(t, strings.HasPrefix(got, tt.prefix+"_"))
			assert.Len(t, got, len(tt.prefix)+1+26)
		})
	}
}

func TestTypedIDGeneration(t *testing.T) {
	peer := NewPeerID()
	sess := NewSessionID()

	assert.True(t, strings.HasPrefix(peer.String(), "peer_"))
	assert.True(t, strings.HasPrefix(sess.String(), "sess_"))
	assert.NotEqual(t, NewPeerID(), peer)
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	sess := NewSessionID()

	ts, err := Timestamp(sess.String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("sess_not-a-ulid")
	assert.Error(t, err)
}

func TestMonotonicOrdering(t *testing.T) {
	gen := NewGenerator()

	prev := gen.Generate().String()
	for i := 0; i < 1000; i++ {
		next := gen.Generate().String()
		require.Less(t, prev, next)
		prev = next
	}
}

func TestSequence(t *testing.T) {
	var seq Sequence

	assert.Equal(t, int64(0), seq.Last())
	assert.Equal(t, int64(1), seq.Next())
	assert.Equal(t, int64(2), seq.Next())
	assert.Equal(t, int64(2), seq.Last())
}

func TestSequenceConcurrent(t *testing.T) {
	var seq Sequence
	const workers, perWorker = 8, 500

	results := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results <- seq.Next()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for v := range results {
		assert.False(t, seen[v], "duplicate id %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), seq.Last())
}
