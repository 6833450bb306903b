package chord

import (
	"context"
)

// Transport issues node operations against the peer listening on address.
// Every call blocks until the peer replies or ctx is done.
type Transport interface {
	GetSuccessor(ctx context.Context, address string) (string, error)
	GetPredecessor(ctx context.Context, address string) (string, error)
	SetPredecessor(ctx context.Context, address, predecessor string) error
	ClosestPrecedingFinger(ctx context.Context, address string, id ID) (string, error)
	FindSuccessor(ctx context.Context, address string, id ID) (string, error)
	UpdateFingerTable(ctx context.Context, address string, req UpdateFingerTableRequest) (bool, error)
	Ping(ctx context.Context, address string) error
}

// RemoteNode is a reference to a ring member.
type RemoteNode struct {
	Address string `json:"address"`
	ID      ID     `json:"id"`
}

func (r *Ring) remote(address string) RemoteNode {
	return RemoteNode{Address: address, ID: r.IDOf(address)}
}
