package chord

import (
	"golang.org/x/xerrors"
)

// FingerEntry is one row of a finger table. Start is fixed when the table is
// built; NodeAddress and NodeID follow repairs.
type FingerEntry struct {
	Start       ID     `json:"start"`
	NodeAddress string `json:"address"`
	NodeID      ID     `json:"id"`
}

// FingerTable holds M entries. Entry i caches the node answering for
// (owner + 2^i) mod 2^M; entry 0 is therefore the owner's successor.
//
// FingerTable is not safe for concurrent use; Node serializes access.
type FingerTable struct {
	ring    *Ring
	entries []FingerEntry
}

// NewFingerTable builds a table for the node at (address, id) with every entry
// pointing back at the owner, which makes a lone node a complete ring.
func NewFingerTable(ring *Ring, address string, id ID) *FingerTable {
	entries := make([]FingerEntry, ring.Bits())
	for i := range entries {
		entries[i] = FingerEntry{
			Start:       ring.Offset(id, i),
			NodeAddress: address,
			NodeID:      id,
		}
	}
	return &FingerTable{ring: ring, entries: entries}
}

// Len returns M.
func (ft *FingerTable) Len() int {
	return len(ft.entries)
}

// Start returns the ring position entry i answers for.
func (ft *FingerTable) Start(i int) ID {
	return ft.entries[i].Start
}

// NodeAddress returns the address cached in entry i.
func (ft *FingerTable) NodeAddress(i int) string {
	return ft.entries[i].NodeAddress
}

// NodeID returns the identifier cached in entry i.
func (ft *FingerTable) NodeID(i int) ID {
	return ft.entries[i].NodeID
}

// SetNode points entry i at address, recomputing the cached identifier.
func (ft *FingerTable) SetNode(i int, address string) error {
	if i < 0 || i >= len(ft.entries) {
		return xerrors.Errorf("set finger %d of %d: %w", i, len(ft.entries), ErrInvalidFingerIndex)
	}
	if address == "" {
		return xerrors.Errorf("set finger %d: empty address: %w", i, ErrInvalidAddress)
	}
	ft.entries[i].NodeAddress = address
	ft.entries[i].NodeID = ft.ring.IDOf(address)
	return nil
}

// Entries returns a copy of every entry.
func (ft *FingerTable) Entries() []FingerEntry {
	res := make([]FingerEntry, len(ft.entries))
	copy(res, ft.entries)
	return res
}
