// Package id generates the prefixed, time-sortable identifiers used for
// consumer connections.
//
// IDs have the form prefix_ULID, so they sort by creation time and the prefix
// tells at a glance what kind of object a log line refers to.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ConnID identifies one consumer connection to the host
type ConnID string

// String returns the ID as a plain string
func (id ConnID) String() string { return string(id) }

// ConnPrefix tags connection IDs
const ConnPrefix = "conn"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
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

// NewGenerator creates a generator whose IDs increase strictly even within
// one millisecond
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// NewConnID generates a new connection ID
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

// ParseConnID validates s and returns it as a ConnID
func ParseConnID(s string) (ConnID, error) {
	prefix, raw, ok := strings.Cut(s, "_")
	if !ok || prefix != ConnPrefix {
		return "", fmt.Errorf("connection id %q: missing %s_ prefix", s, ConnPrefix)
	}
	if _, err := ulid.Parse(raw); err != nil {
		return "", fmt.Errorf("connection id %q: %w", s, err)
	}
	return ConnID(s), nil
}

// Timestamp extracts the creation time from a prefixed or bare ULID
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
