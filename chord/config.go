package chord

import (
	"crypto/sha1"
	"errors"
	"hash"
	"time"

	"golang.org/x/xerrors"
)

// Configuration defaults
const (
	DefaultBits          = 32  // Number of bits in the identifier space (M)
	MaxBits              = 64  // Identifiers are carried in a uint64
	DefaultMaxLookupHops = 512 // Hops a single findPredecessor walk may take
	DefaultMaxUpdateHops = 512 // Hops a single finger-table repair wave may take
)

// Common errors
var (
	ErrInvalidIdentifier   = errors.New("identifier outside the ring")
	ErrInvalidFingerIndex  = xerrors.Errorf("finger index out of range: %w", ErrInvalidIdentifier)
	ErrInvalidAddress      = errors.New("invalid node address")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrRemoteUnavailable   = errors.New("remote node unavailable")
	ErrIdentifierCollision = errors.New("identifier collision")
	ErrLookupExhausted     = errors.New("lookup made no progress")
	ErrPropagationLimit    = errors.New("finger update propagated too far")
	ErrJoinInProgress      = errors.New("join already in progress")
	ErrJoinFailed          = errors.New("previous join failed")
)

// Config holds the settings every node of one ring must agree on, plus a few
// local knobs. All nodes in a ring need the same Bits and HashFunc.
type Config struct {
	// Bits is M, the width of the identifier space. Identifiers live in [0, 2^Bits).
	Bits int

	// HashFunc derives a node identifier from its address.
	// Default: sha1.New
	HashFunc func() hash.Hash

	// MaxLookupHops bounds the number of hops a findPredecessor walk may take.
	MaxLookupHops int

	// MaxUpdateHops bounds how far an update-finger-table wave may travel
	// along predecessor pointers.
	MaxUpdateHops int

	// Timeout is the per-call limit the process passes to NewHTTPTransport and
	// NewHeartbeatManager. Node does not read it. 0 means wait forever.
	Timeout time.Duration

	// MonitorInterval is the period of the liveness monitor. 0 disables it.
	MonitorInterval time.Duration
}

// DefaultConfig returns the default configuration of a node
func DefaultConfig() *Config {
	return &Config{
		Bits:          DefaultBits,
		HashFunc:      sha1.New,
		MaxLookupHops: DefaultMaxLookupHops,
		MaxUpdateHops: DefaultMaxUpdateHops,
	}
}

// Validate checks the configuration and fills in missing defaults.
func (c *Config) Validate() error {
	if c.Bits < 1 || c.Bits > MaxBits {
		return xerrors.Errorf("bits must be in [1, %d], got %d: %w", MaxBits, c.Bits, ErrInvalidConfig)
	}
	if c.HashFunc == nil {
		c.HashFunc = sha1.New
	}
	if c.MaxLookupHops <= 0 {
		c.MaxLookupHops = DefaultMaxLookupHops
	}
	if c.MaxUpdateHops <= 0 {
		c.MaxUpdateHops = DefaultMaxUpdateHops
	}
	if c.Timeout < 0 || c.MonitorInterval < 0 {
		return xerrors.Errorf("durations must not be negative: %w", ErrInvalidConfig)
	}
	return nil
}
