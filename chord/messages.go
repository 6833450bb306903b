package chord

// Wire records, one per operation. Addresses are host:port strings and
// identifiers are already reduced mod 2^M.

// AddressReply answers GetSuccessor, GetPredecessor, ClosestPrecedingFinger
// and FindSuccessor.
type AddressReply struct {
	Address string `json:"address"`
}

// SetPredecessorRequest overwrites the predecessor of the receiving node.
type SetPredecessorRequest struct {
	Predecessor string `json:"predecessor"`
}

// UpdateFingerTableRequest asks the receiver to consider Sender for its
// finger Index. Origin is the node whose join started the repair wave and
// Hops counts how many predecessors the wave has already visited.
type UpdateFingerTableRequest struct {
	Sender string `json:"sender"`
	Index  int    `json:"index"`
	Origin string `json:"origin"`
	Hops   int    `json:"hops"`
}

// UpdateFingerTableReply reports whether the wave reached its origin.
type UpdateFingerTableReply struct {
	Done bool `json:"done"`
}

// LookupReply answers a key lookup.
type LookupReply struct {
	Key     string `json:"key"`
	ID      ID     `json:"id"`
	Address string `json:"address"`
}

// NodeInfo describes a node's routing state.
type NodeInfo struct {
	Address     string     `json:"address"`
	ID          ID         `json:"id"`
	Bits        int        `json:"bits"`
	Successor   RemoteNode `json:"successor"`
	Predecessor RemoteNode `json:"predecessor"`
	State       string     `json:"state"`
}

// PingReply answers a liveness probe.
type PingReply struct {
	Status string `json:"status"`
	NodeID ID     `json:"nodeId"`
}

// ErrorReply carries the message of a failed operation. Kind names the
// sentinel error behind it so the caller can match on it.
type ErrorReply struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
