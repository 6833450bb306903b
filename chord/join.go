package chord

import (
	"context"

	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

/*
Join method:
Splices the node into the ring known to the bootstrap node.
Initializes the finger table through the bootstrap node, then asks every
node that may need this node as a finger to repair its table.
Join runs at most once. Calling it again on a joined node does nothing.
*/
func (n *Node) Join(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case Joined:
		n.mu.Unlock()
		return nil
	case Joining:
		n.mu.Unlock()
		return ErrJoinInProgress
	case Failed:
		n.mu.Unlock()
		return ErrJoinFailed
	}
	n.state = Joining
	n.mu.Unlock()

	logger := n.logger.With().Str("join", xid.New().String()).Str("bootstrap", n.bootstrap).Logger()
	logger.Info().Msg("joining ring")

	if err := n.initFingerTable(ctx); err != nil {
		n.setState(Failed)
		logger.Error().Err(err).Msg("init finger table failed")
		return xerrors.Errorf("join via %s: %w", n.bootstrap, err)
	}
	logger.Debug().Str("successor", n.Successor()).Str("predecessor", n.Predecessor()).Msg("finger table initialized")

	if err := n.updateOthers(ctx); err != nil {
		// The ring already points at this node; other fingers are left stale.
		n.setState(Failed)
		logger.Error().Err(err).Msg("update others failed, ring partially repaired")
		return xerrors.Errorf("join via %s: %w", n.bootstrap, err)
	}

	n.setState(Joined)
	logger.Info().Str("successor", n.Successor()).Str("predecessor", n.Predecessor()).Msg("joined ring")
	return nil
}

func (n *Node) initFingerTable(ctx context.Context) error {
	bits := n.ring.Bits()

	n.mu.Lock()
	start0 := n.fingers.Start(0)
	n.mu.Unlock()

	succ, err := n.transport.FindSuccessor(ctx, n.bootstrap, start0)
	if err != nil {
		return xerrors.Errorf("find successor of %d: %w", start0, err)
	}
	if succ != n.address && n.ring.IDOf(succ) == n.id {
		return xerrors.Errorf("%s and %s share id %d: %w", n.address, succ, n.id, ErrIdentifierCollision)
	}
	if err := n.setFinger(0, succ); err != nil {
		return err
	}

	pred, err := n.transport.GetPredecessor(ctx, succ)
	if err != nil {
		return xerrors.Errorf("predecessor of %s: %w", succ, err)
	}
	if err := n.SetPredecessor(pred); err != nil {
		return err
	}
	if err := n.transport.SetPredecessor(ctx, succ, n.address); err != nil {
		return xerrors.Errorf("set predecessor of %s: %w", succ, err)
	}

	for i := 0; i < bits-1; i++ {
		n.mu.Lock()
		next := n.fingers.Start(i + 1)
		prevAddr := n.fingers.NodeAddress(i)
		prevID := n.fingers.NodeID(i)
		n.mu.Unlock()

		addr := prevAddr
		if !n.ring.In(next, n.id, prevID, true, false) {
			addr, err = n.transport.FindSuccessor(ctx, n.bootstrap, next)
			if err != nil {
				return xerrors.Errorf("find successor of %d: %w", next, err)
			}
		}
		if err := n.setFinger(i+1, addr); err != nil {
			return err
		}
	}
	return nil
}

/*
updateOthers walks back 2^i for every finger index and asks the node preceding
that position to consider this node as its i-th finger. The target is shifted
by one so that a node sitting exactly at id - 2^i is included.
*/
func (n *Node) updateOthers(ctx context.Context) error {
	for i := 0; i < n.ring.Bits(); i++ {
		target := n.ring.Add(n.ring.Back(n.id, i), 1)
		p, err := n.findPredecessor(ctx, target)
		if err != nil {
			return xerrors.Errorf("predecessor of %d: %w", target, err)
		}

		req := UpdateFingerTableRequest{Sender: n.address, Index: i, Origin: n.address}
		if p == n.address {
			if _, err := n.UpdateFingerTable(ctx, req); err != nil {
				return err
			}
			continue
		}

		done, err := n.transport.UpdateFingerTable(ctx, p, req)
		if err != nil {
			return xerrors.Errorf("update finger %d of %s: %w", i, p, err)
		}
		if done {
			// The wave came back around to this node.
			if _, err := n.applyUpdate(req.Sender, i); err != nil {
				return err
			}
		}
	}
	return nil
}

/*
UpdateFingerTable method:
Replaces finger Index with Sender if Sender lies in (n, finger[Index]].
A replaced entry means the predecessor may need the same repair, so the
request is forwarded backwards until it reaches the predecessor of Origin.
Returns true when the wave has come back to Origin.
*/
func (n *Node) UpdateFingerTable(ctx context.Context, req UpdateFingerTableRequest) (bool, error) {
	if req.Index < 0 || req.Index >= n.ring.Bits() {
		return false, xerrors.Errorf("update finger %d: %w", req.Index, ErrInvalidFingerIndex)
	}
	if err := validAddress(req.Sender); err != nil {
		return false, err
	}
	if req.Hops > n.conf.MaxUpdateHops {
		return false, xerrors.Errorf("update finger %d from %s after %d hops: %w", req.Index, req.Sender, req.Hops, ErrPropagationLimit)
	}

	updated, err := n.applyUpdate(req.Sender, req.Index)
	if err != nil || !updated {
		return false, err
	}

	pred := n.Predecessor()
	switch pred {
	case req.Origin:
		return true, nil
	case n.address:
		n.logger.Warn().Str("sender", req.Sender).Int("index", req.Index).Msg("update wave reached a node that is its own predecessor")
		return false, nil
	}

	fwd := req
	fwd.Hops++
	return n.updateFingerTableOf(ctx, pred, fwd)
}

// applyUpdate sets finger i to sender when sender lies in (n, finger[i]].
// It reports whether the entry changed and never forwards.
func (n *Node) applyUpdate(sender string, i int) (bool, error) {
	sid := n.ring.IDOf(sender)

	n.mu.Lock()
	defer n.mu.Unlock()

	if sender == n.fingers.NodeAddress(i) || !n.ring.In(sid, n.id, n.fingers.NodeID(i), false, true) {
		return false, nil
	}
	if err := n.fingers.SetNode(i, sender); err != nil {
		return false, err
	}
	n.logger.Debug().Str("sender", sender).Int("index", i).Msg("finger updated")
	return true, nil
}
