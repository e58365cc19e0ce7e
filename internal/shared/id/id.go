// Package id provides identifier generation for the bridge.
//
// Two kinds of identifiers exist:
//   - ULIDs with a type prefix for things that show up in logs (peers, sessions)
//   - Sequences for integers on the wire (remote ids, callback ids, message
//     sequence numbers) that are allocated monotonically and never reused
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// PeerID identifies one end of a bridge connection
type PeerID string

// SessionID identifies an owner-side session serving one renderer
type SessionID string

const (
	PeerPrefix    = "peer"
	SessionPrefix = "sess"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator whose ULIDs increase within a millisecond.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewPeerID generates a new peer ID
func NewPeerID() PeerID {
	return PeerID(Default().GenerateWithPrefix(PeerPrefix))
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

func (id PeerID) String() string    { return string(id) }
func (id SessionID) String() string { return string(id) }

// Timestamp extracts the creation time from a prefixed or bare ULID.
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// Sequence allocates positive integers in increasing order. The zero value
// is ready to use and first returns 1.
type Sequence struct {
	last atomic.Int64
}

// Next returns the next identifier.
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// Last returns the most recently allocated identifier, or 0.
func (s *Sequence) Last() int64 {
	return s.last.Load()
}
