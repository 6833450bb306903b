package chord

import (
	"context"

	"golang.org/x/xerrors"
)

/*
FindSuccessor method:
Returns the address of the node responsible for id, the first node whose
identifier is at or after id on the ring.
Finds the predecessor of id first and then asks it for its successor.
*/
func (n *Node) FindSuccessor(ctx context.Context, id ID) (string, error) {
	if err := n.checkID(id); err != nil {
		return "", err
	}
	pred, err := n.findPredecessor(ctx, id)
	if err != nil {
		return "", err
	}
	succ, err := n.successorOf(ctx, pred)
	if err != nil {
		return "", xerrors.Errorf("successor of %s: %w", pred, err)
	}
	return succ, nil
}

// FindPredecessor returns the address of the node that immediately precedes id.
func (n *Node) FindPredecessor(ctx context.Context, id ID) (string, error) {
	if err := n.checkID(id); err != nil {
		return "", err
	}
	return n.findPredecessor(ctx, id)
}

/*
findPredecessor walks the ring starting at this node.
While id is not in (cur, successor(cur)] the walk moves to cur's closest
preceding finger for id. Every hop is served locally when cur is this node.
*/
func (n *Node) findPredecessor(ctx context.Context, id ID) (string, error) {
	cur := n.address
	curID := n.id
	succ, err := n.successorOf(ctx, cur)
	if err != nil {
		return "", err
	}

	for hops := 0; !n.ring.In(id, curID, n.ring.IDOf(succ), false, true); hops++ {
		if hops >= n.conf.MaxLookupHops {
			return "", xerrors.Errorf("find predecessor of %d after %d hops: %w", id, hops, ErrLookupExhausted)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		next, err := n.closestPrecedingFingerOf(ctx, cur, id)
		if err != nil {
			return "", xerrors.Errorf("closest preceding finger of %s: %w", cur, err)
		}
		if next == cur {
			// cur has no finger between itself and id but its successor does
			// not cover id either, so its routing state is inconsistent.
			return "", xerrors.Errorf("find predecessor of %d stuck at %s: %w", id, cur, ErrLookupExhausted)
		}

		cur = next
		curID = n.ring.IDOf(cur)
		succ, err = n.successorOf(ctx, cur)
		if err != nil {
			return "", xerrors.Errorf("successor of %s: %w", cur, err)
		}
		n.logger.Trace().Uint64("target", uint64(id)).Str("hop", cur).Int("hops", hops+1).Msg("lookup hop")
	}

	return cur, nil
}

// ClosestPrecedingFinger returns the finger with the highest index whose node
// lies strictly between this node and id, or this node if there is none.
func (n *Node) ClosestPrecedingFinger(id ID) (string, error) {
	if err := n.checkID(id); err != nil {
		return "", err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for i := n.fingers.Len() - 1; i >= 0; i-- {
		if n.ring.In(n.fingers.NodeID(i), n.id, id, false, false) && n.fingers.NodeID(i) != n.id {
			return n.fingers.NodeAddress(i), nil
		}
	}
	return n.address, nil
}

// Local-or-remote dispatch. Calls addressed to this node never leave the
// process.

func (n *Node) successorOf(ctx context.Context, address string) (string, error) {
	if address == n.address {
		return n.Successor(), nil
	}
	return n.transport.GetSuccessor(ctx, address)
}

func (n *Node) predecessorOf(ctx context.Context, address string) (string, error) {
	if address == n.address {
		return n.Predecessor(), nil
	}
	return n.transport.GetPredecessor(ctx, address)
}

func (n *Node) setPredecessorOf(ctx context.Context, address, predecessor string) error {
	if address == n.address {
		return n.SetPredecessor(predecessor)
	}
	return n.transport.SetPredecessor(ctx, address, predecessor)
}

func (n *Node) closestPrecedingFingerOf(ctx context.Context, address string, id ID) (string, error) {
	if address == n.address {
		return n.ClosestPrecedingFinger(id)
	}
	return n.transport.ClosestPrecedingFinger(ctx, address, id)
}

func (n *Node) updateFingerTableOf(ctx context.Context, address string, req UpdateFingerTableRequest) (bool, error) {
	if address == n.address {
		return n.UpdateFingerTable(ctx, req)
	}
	return n.transport.UpdateFingerTable(ctx, address, req)
}
