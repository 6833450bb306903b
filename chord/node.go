package chord

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// State is the join progress of a node.
type State int

const (
	Unjoined State = iota
	Joining
	Joined
	// Failed marks a node whose join stopped partway. Its routing state may
	// be half spliced into the ring; no rollback is attempted.
	Failed
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Node represents a node in the Chord ring
type Node struct {
	ring      *Ring
	conf      *Config
	address   string
	id        ID
	bootstrap string
	transport Transport
	logger    zerolog.Logger

	// mu guards predecessor, fingers and state. It is never held across a
	// remote call, so inbound RPCs can be served while a join is running.
	mu          sync.Mutex
	predecessor string
	fingers     *FingerTable
	state       State
}

// NewNode creates a node at address. With an empty bootstrap, or a bootstrap
// equal to address, the node is the first member and is joined from the
// start; otherwise it waits for Join.
func NewNode(address, bootstrap string, transport Transport, conf *Config) (*Node, error) {
	if err := validAddress(address); err != nil {
		return nil, err
	}
	if conf == nil {
		conf = DefaultConfig()
	}
	ring, err := NewRing(conf)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = &BlackholeTransport{}
	}

	id := ring.IDOf(address)
	n := &Node{
		ring:        ring,
		conf:        conf,
		address:     address,
		id:          id,
		bootstrap:   bootstrap,
		transport:   transport,
		predecessor: address,
		fingers:     NewFingerTable(ring, address, id),
		state:       Unjoined,
	}
	if bootstrap == "" || bootstrap == address {
		n.bootstrap = ""
		n.state = Joined
	}
	n.logger = log.With().Str("node", address).Uint64("id", uint64(id)).Logger()
	n.logger.Info().Bool("first", n.bootstrap == "").Int("bits", ring.Bits()).Msg("node created")

	return n, nil
}

func validAddress(address string) error {
	if address == "" || strings.ContainsAny(address, " /") {
		return xerrors.Errorf("address %q: %w", address, ErrInvalidAddress)
	}
	return nil
}

// Address returns the node's address.
func (n *Node) Address() string {
	return n.address
}

// ID returns the node's identifier.
func (n *Node) ID() ID {
	return n.id
}

// Ring returns the identifier space the node lives in.
func (n *Node) Ring() *Ring {
	return n.ring
}

// Bootstrap returns the address used to join, empty for the first node.
func (n *Node) Bootstrap() string {
	return n.bootstrap
}

// State returns the join progress.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Joined reports whether the node is a full ring member.
func (n *Node) Joined() bool {
	return n.State() == Joined
}

func (n *Node) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Successor returns finger 0.
func (n *Node) Successor() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fingers.NodeAddress(0)
}

// Predecessor returns the address of the node immediately before this one.
func (n *Node) Predecessor() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.predecessor
}

// SetPredecessor overwrites the predecessor pointer.
func (n *Node) SetPredecessor(address string) error {
	if err := validAddress(address); err != nil {
		return err
	}
	n.mu.Lock()
	old := n.predecessor
	n.predecessor = address
	n.mu.Unlock()

	n.logger.Debug().Str("old", old).Str("new", address).Msg("predecessor set")
	return nil
}

// Fingers returns a snapshot of the finger table.
func (n *Node) Fingers() []FingerEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fingers.Entries()
}

func (n *Node) setFinger(i int, address string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fingers.SetNode(i, address)
}

// Info returns a description of the node's routing state.
func (n *Node) Info() NodeInfo {
	n.mu.Lock()
	succ := n.fingers.NodeAddress(0)
	pred := n.predecessor
	state := n.state
	n.mu.Unlock()

	return NodeInfo{
		Address:     n.address,
		ID:          n.id,
		Bits:        n.ring.Bits(),
		Successor:   n.ring.remote(succ),
		Predecessor: n.ring.remote(pred),
		State:       state.String(),
	}
}

func (n *Node) checkID(id ID) error {
	if !n.ring.Valid(id) {
		return xerrors.Errorf("id %d with %d bits: %w", id, n.ring.Bits(), ErrInvalidIdentifier)
	}
	return nil
}
