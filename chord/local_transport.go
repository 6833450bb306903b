package chord

import (
	"context"
	"sync"

	"golang.org/x/xerrors"
)

// LocalTransport routes calls to nodes running in this process with direct
// method calls. Calls for any other address go to the wrapped transport.
type LocalTransport struct {
	remote Transport
	lock   sync.RWMutex
	local  map[string]*Node
}

// NewLocalTransport wraps remote. A nil remote is replaced by a black hole.
func NewLocalTransport(remote Transport) *LocalTransport {
	if remote == nil {
		remote = &BlackholeTransport{}
	}
	return &LocalTransport{remote: remote, local: make(map[string]*Node)}
}

// Register makes n reachable at its address.
func (lt *LocalTransport) Register(n *Node) {
	lt.lock.Lock()
	lt.local[n.Address()] = n
	lt.lock.Unlock()
}

// Deregister removes the node at address.
func (lt *LocalTransport) Deregister(address string) {
	lt.lock.Lock()
	delete(lt.local, address)
	lt.lock.Unlock()
}

func (lt *LocalTransport) get(address string) (*Node, bool) {
	lt.lock.RLock()
	defer lt.lock.RUnlock()
	n, ok := lt.local[address]
	return n, ok
}

func (lt *LocalTransport) GetSuccessor(ctx context.Context, address string) (string, error) {
	if n, ok := lt.get(address); ok {
		return n.Successor(), nil
	}
	return lt.remote.GetSuccessor(ctx, address)
}

func (lt *LocalTransport) GetPredecessor(ctx context.Context, address string) (string, error) {
	if n, ok := lt.get(address); ok {
		return n.Predecessor(), nil
	}
	return lt.remote.GetPredecessor(ctx, address)
}

func (lt *LocalTransport) SetPredecessor(ctx context.Context, address, predecessor string) error {
	if n, ok := lt.get(address); ok {
		return n.SetPredecessor(predecessor)
	}
	return lt.remote.SetPredecessor(ctx, address, predecessor)
}

func (lt *LocalTransport) ClosestPrecedingFinger(ctx context.Context, address string, id ID) (string, error) {
	if n, ok := lt.get(address); ok {
		return n.ClosestPrecedingFinger(id)
	}
	return lt.remote.ClosestPrecedingFinger(ctx, address, id)
}

func (lt *LocalTransport) FindSuccessor(ctx context.Context, address string, id ID) (string, error) {
	if n, ok := lt.get(address); ok {
		return n.FindSuccessor(ctx, id)
	}
	return lt.remote.FindSuccessor(ctx, address, id)
}

func (lt *LocalTransport) UpdateFingerTable(ctx context.Context, address string, req UpdateFingerTableRequest) (bool, error) {
	if n, ok := lt.get(address); ok {
		return n.UpdateFingerTable(ctx, req)
	}
	return lt.remote.UpdateFingerTable(ctx, address, req)
}

func (lt *LocalTransport) Ping(ctx context.Context, address string) error {
	if _, ok := lt.get(address); ok {
		return nil
	}
	return lt.remote.Ping(ctx, address)
}

// BlackholeTransport fails every call.
type BlackholeTransport struct{}

var errNoRoute = xerrors.New("no route to node")

func (*BlackholeTransport) GetSuccessor(ctx context.Context, address string) (string, error) {
	return "", remoteErr("get successor", address, errNoRoute)
}

func (*BlackholeTransport) GetPredecessor(ctx context.Context, address string) (string, error) {
	return "", remoteErr("get predecessor", address, errNoRoute)
}

func (*BlackholeTransport) SetPredecessor(ctx context.Context, address, predecessor string) error {
	return remoteErr("set predecessor", address, errNoRoute)
}

func (*BlackholeTransport) ClosestPrecedingFinger(ctx context.Context, address string, id ID) (string, error) {
	return "", remoteErr("closest preceding finger", address, errNoRoute)
}

func (*BlackholeTransport) FindSuccessor(ctx context.Context, address string, id ID) (string, error) {
	return "", remoteErr("find successor", address, errNoRoute)
}

func (*BlackholeTransport) UpdateFingerTable(ctx context.Context, address string, req UpdateFingerTableRequest) (bool, error) {
	return false, remoteErr("update finger table", address, errNoRoute)
}

func (*BlackholeTransport) Ping(ctx context.Context, address string) error {
	return remoteErr("ping", address, errNoRoute)
}
