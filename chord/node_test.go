package chord

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestNode_New(t *testing.T) {
	n, err := NewNode(addr(7), "", nil, testConfig(4))
	require.NoError(t, err)
	require.Equal(t, ID(7), n.ID())
	require.Equal(t, Joined, n.State())
	require.Equal(t, "", n.Bootstrap())

	n, err = NewNode(addr(7), addr(7), nil, testConfig(4))
	require.NoError(t, err)
	require.True(t, n.Joined())

	n, err = NewNode(addr(7), addr(3), nil, testConfig(4))
	require.NoError(t, err)
	require.Equal(t, Unjoined, n.State())

	_, err = NewNode("", "", nil, testConfig(4))
	require.True(t, xerrors.Is(err, ErrInvalidAddress))

	_, err = NewNode(addr(7), "", nil, testConfig(0))
	require.True(t, xerrors.Is(err, ErrInvalidConfig))
}

func TestNode_SingleNodeRing(t *testing.T) {
	_, nodes := buildRing(t, 4, 9)
	n := nodes[0]

	require.Equal(t, addr(9), n.Successor())
	require.Equal(t, addr(9), n.Predecessor())

	for id := ID(0); id < 16; id++ {
		succ, err := n.FindSuccessor(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, addr(9), succ)

		finger, err := n.ClosestPrecedingFinger(id)
		require.NoError(t, err)
		require.Equal(t, addr(9), finger)
	}

	info := n.Info()
	require.Equal(t, addr(9), info.Successor.Address)
	require.Equal(t, ID(9), info.Predecessor.ID)
	require.Equal(t, "joined", info.State)
}

func TestNode_TwoNodeRing(t *testing.T) {
	_, nodes := buildRing(t, 6, 10, 40)
	a, b := nodes[0], nodes[1]

	require.Equal(t, addr(40), a.Successor())
	require.Equal(t, addr(10), b.Successor())
	require.Equal(t, addr(40), a.Predecessor())
	require.Equal(t, addr(10), b.Predecessor())
}

func TestNode_LookupCorrectness(t *testing.T) {
	rings := map[string][]uint64{
		"ascending":  {5, 17, 30, 44, 58},
		"descending": {60, 48, 33, 20, 2},
		"adjacent":   {0, 1, 2, 63, 62},
		"mixed":      {31, 7, 50, 12, 40, 3, 26, 61},
		"bootstrap":  {63, 0},
	}

	for name, ids := range rings {
		ids := ids
		t.Run(name, func(t *testing.T) {
			_, nodes := buildRing(t, 6, ids...)

			for _, n := range nodes {
				for id := uint64(0); id < 64; id++ {
					got, err := n.FindSuccessor(context.Background(), ID(id))
					require.NoError(t, err)
					require.Equal(t, owner(ids, id), got, "lookup of %d from %s", id, n.Address())
				}
			}
		})
	}
}

func TestNode_RingInvariant(t *testing.T) {
	ids := []uint64{31, 7, 50, 12, 40, 3, 26, 61}
	_, nodes := buildRing(t, 6, ids...)

	byAddr := make(map[string]*Node)
	for _, n := range nodes {
		byAddr[n.Address()] = n
	}

	for _, start := range nodes {
		seen := make(map[string]bool)
		cur := start
		for {
			require.False(t, seen[cur.Address()], "revisited %s", cur.Address())
			seen[cur.Address()] = true

			next := byAddr[cur.Successor()]
			require.NotNil(t, next)
			require.Equal(t, cur.Address(), next.Predecessor())
			require.Equal(t, owner(ids, uint64(cur.ID()+1)%64), next.Address())

			cur = next
			if cur == start {
				break
			}
		}
		require.Len(t, seen, len(ids))
	}
}

func TestNode_FingerStartsNeverChange(t *testing.T) {
	ids := []uint64{31, 7, 50, 12, 40, 3}
	_, nodes := buildRing(t, 6, ids...)

	members := make(map[string]bool)
	for _, id := range ids {
		members[addr(id)] = true
	}

	for _, n := range nodes {
		fingers := n.Fingers()
		require.Len(t, fingers, 6)
		for i, f := range fingers {
			require.Equal(t, n.Ring().Offset(n.ID(), i), f.Start)
			require.True(t, members[f.NodeAddress], "finger %d of %s points at %s", i, n.Address(), f.NodeAddress)
			require.Equal(t, n.Ring().IDOf(f.NodeAddress), f.NodeID)
		}
	}
}

func TestNode_InvalidInput(t *testing.T) {
	n, err := NewNode(addr(3), "", nil, testConfig(4))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = n.FindSuccessor(ctx, 16)
	require.True(t, xerrors.Is(err, ErrInvalidIdentifier))
	_, err = n.FindPredecessor(ctx, 1000)
	require.True(t, xerrors.Is(err, ErrInvalidIdentifier))
	_, err = n.ClosestPrecedingFinger(ID(1) << 40)
	require.True(t, xerrors.Is(err, ErrInvalidIdentifier))

	_, err = n.UpdateFingerTable(ctx, UpdateFingerTableRequest{Sender: addr(5), Index: 4, Origin: addr(5)})
	require.True(t, xerrors.Is(err, ErrInvalidFingerIndex))
	// A finger index is an identifier-class input error too.
	require.True(t, xerrors.Is(err, ErrInvalidIdentifier))
	_, err = n.UpdateFingerTable(ctx, UpdateFingerTableRequest{Sender: addr(5), Index: -1, Origin: addr(5)})
	require.True(t, xerrors.Is(err, ErrInvalidFingerIndex))
	_, err = n.UpdateFingerTable(ctx, UpdateFingerTableRequest{Sender: "", Index: 0, Origin: addr(5)})
	require.True(t, xerrors.Is(err, ErrInvalidAddress))

	require.True(t, xerrors.Is(n.SetPredecessor(""), ErrInvalidAddress))
	require.Equal(t, addr(3), n.Predecessor())
}

// joinScript sets up the calls node:2 makes when joining the one-node ring
// node:0 with M = 3.
func joinScript(mt *MockTransport) {
	boot := addr(0)
	self := addr(2)

	mt.On("FindSuccessor", mock.Anything, boot, ID(3)).Return(boot, nil).Once()
	mt.On("GetPredecessor", mock.Anything, boot).Return(boot, nil).Once()
	mt.On("SetPredecessor", mock.Anything, boot, self).Return(nil).Once()

	// Before node:0 learns about node:2 it is still its own successor.
	mt.On("GetSuccessor", mock.Anything, boot).Return(boot, nil).Once()
	mt.On("UpdateFingerTable", mock.Anything, boot,
		UpdateFingerTableRequest{Sender: self, Index: 0, Origin: self}).Return(true, nil).Once()

	mt.On("GetSuccessor", mock.Anything, boot).Return(self, nil).Once()
	mt.On("UpdateFingerTable", mock.Anything, boot,
		UpdateFingerTableRequest{Sender: self, Index: 1, Origin: self}).Return(true, nil).Once()
}

func TestNode_JoinCalls(t *testing.T) {
	mt := &MockTransport{}
	joinScript(mt)

	n, err := NewNode(addr(2), addr(0), mt, testConfig(3))
	require.NoError(t, err)
	require.NoError(t, n.Join(context.Background()))

	mt.AssertExpectations(t)
	require.Equal(t, Joined, n.State())
	require.Equal(t, addr(0), n.Successor())
	require.Equal(t, addr(0), n.Predecessor())
	for _, f := range n.Fingers() {
		require.Equal(t, addr(0), f.NodeAddress)
	}
}

func TestNode_JoinIsIdempotent(t *testing.T) {
	mt := &MockTransport{}
	joinScript(mt)

	n, err := NewNode(addr(2), addr(0), mt, testConfig(3))
	require.NoError(t, err)
	require.NoError(t, n.Join(context.Background()))

	calls := len(mt.Calls)
	before := n.Info()
	fingers := n.Fingers()

	require.NoError(t, n.Join(context.Background()))
	require.Len(t, mt.Calls, calls)
	require.Equal(t, before, n.Info())
	require.Equal(t, fingers, n.Fingers())

	// The first node of a ring never talks to anyone.
	first := &MockTransport{}
	n, err = NewNode(addr(0), "", first, testConfig(3))
	require.NoError(t, err)
	require.NoError(t, n.Join(context.Background()))
	first.AssertNotCalled(t, "FindSuccessor", mock.Anything, mock.Anything, mock.Anything)
	require.Empty(t, first.Calls)
}

func TestNode_JoinCollision(t *testing.T) {
	mt := &MockTransport{}
	mt.On("FindSuccessor", mock.Anything, addr(0), ID(3)).Return("other:2", nil).Once()

	n, err := NewNode(addr(2), addr(0), mt, testConfig(3))
	require.NoError(t, err)

	err = n.Join(context.Background())
	require.True(t, xerrors.Is(err, ErrIdentifierCollision))
	require.Equal(t, Failed, n.State())

	err = n.Join(context.Background())
	require.True(t, xerrors.Is(err, ErrJoinFailed))
	mt.AssertExpectations(t)
}

func TestNode_JoinUnreachableBootstrap(t *testing.T) {
	n, err := NewNode(addr(2), addr(0), &BlackholeTransport{}, testConfig(3))
	require.NoError(t, err)

	err = n.Join(context.Background())
	require.True(t, xerrors.Is(err, ErrRemoteUnavailable))

	var re *RemoteError
	require.True(t, xerrors.As(err, &re))
	require.Equal(t, addr(0), re.Address)
	require.True(t, re.Temporary())
	require.Equal(t, Failed, n.State())
}

func TestNode_LookupExhausted(t *testing.T) {
	mt := &MockTransport{}
	n, err := NewNode(addr(10), "", mt, testConfig(6))
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, n.setFinger(i, addr(20)))
	}

	// node:20 claims node:30 as successor yet has no finger past itself.
	mt.On("GetSuccessor", mock.Anything, addr(20)).Return(addr(30), nil)
	mt.On("ClosestPrecedingFinger", mock.Anything, addr(20), ID(50)).Return(addr(20), nil)

	_, err = n.FindSuccessor(context.Background(), 50)
	require.True(t, xerrors.Is(err, ErrLookupExhausted))
}

func TestNode_LookupHopLimit(t *testing.T) {
	mt := &MockTransport{}
	conf := testConfig(6)
	conf.MaxLookupHops = 2
	n, err := NewNode(addr(0), "", mt, conf)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, n.setFinger(i, addr(1)))
	}

	// Every hop moves one position forward.
	for i := uint64(1); i < 60; i++ {
		mt.On("GetSuccessor", mock.Anything, addr(i)).Return(addr(i+1), nil).Maybe()
		mt.On("ClosestPrecedingFinger", mock.Anything, addr(i), ID(60)).Return(addr(i+1), nil).Maybe()
	}

	_, err = n.FindSuccessor(context.Background(), 60)
	require.True(t, xerrors.Is(err, ErrLookupExhausted))
}

func TestNode_UpdateFingerTable(t *testing.T) {
	ctx := context.Background()

	t.Run("stops when the entry is already closer", func(t *testing.T) {
		_, nodes := buildRing(t, 6, 10, 20, 30, 40)
		// Finger 0 of node:30 is node:40; node:45 is further away.
		done, err := nodes[2].UpdateFingerTable(ctx, UpdateFingerTableRequest{Sender: addr(45), Index: 0, Origin: addr(45)})
		require.NoError(t, err)
		require.False(t, done)
		require.Equal(t, addr(40), nodes[2].Successor())
	})

	t.Run("returns true at the origin", func(t *testing.T) {
		_, nodes := buildRing(t, 6, 10, 20, 30, 40)
		done, err := nodes[2].UpdateFingerTable(ctx, UpdateFingerTableRequest{Sender: addr(35), Index: 0, Origin: addr(20)})
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, addr(35), nodes[2].Successor())
	})

	t.Run("forwards to the predecessor", func(t *testing.T) {
		_, nodes := buildRing(t, 6, 10, 20, 30, 40)
		// Finger 5 of node:20, 30 and 40 points at node:10 and node:5 sits
		// just before it. The wave stops at node:20 whose predecessor is the
		// origin.
		done, err := nodes[3].UpdateFingerTable(ctx, UpdateFingerTableRequest{Sender: addr(5), Index: 5, Origin: addr(10)})
		require.NoError(t, err)
		require.True(t, done)
		for _, n := range nodes[1:] {
			require.Equal(t, addr(5), n.Fingers()[5].NodeAddress, n.Address())
		}
		require.Equal(t, addr(10), nodes[0].Fingers()[5].NodeAddress)
	})

	t.Run("terminates without reaching the origin", func(t *testing.T) {
		_, nodes := buildRing(t, 6, 10, 20, 30, 40)
		done, err := nodes[3].UpdateFingerTable(ctx, UpdateFingerTableRequest{Sender: addr(5), Index: 5, Origin: addr(5)})
		require.NoError(t, err)
		require.False(t, done)
	})

	t.Run("hop limit", func(t *testing.T) {
		_, nodes := buildRing(t, 6, 10, 20)
		_, err := nodes[0].UpdateFingerTable(ctx, UpdateFingerTableRequest{Sender: addr(15), Index: 0, Origin: addr(15), Hops: DefaultMaxUpdateHops + 1})
		require.True(t, xerrors.Is(err, ErrPropagationLimit))
	})
}

func TestNode_ConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	lt := NewLocalTransport(nil)

	boot, err := NewNode(addr(0), "", lt, testConfig(8))
	require.NoError(t, err)
	lt.Register(boot)

	var nodes []*Node
	for _, id := range []uint64{17, 42, 77, 101, 140, 163, 200, 233} {
		n, err := NewNode(addr(id), addr(0), lt, testConfig(8))
		require.NoError(t, err)
		lt.Register(n)
		nodes = append(nodes, n)
	}

	stop := make(chan struct{})
	var lookups sync.WaitGroup
	for g := 0; g < 4; g++ {
		lookups.Add(1)
		go func(g int) {
			defer lookups.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				succ, err := boot.FindSuccessor(ctx, ID((g*61+i*13)%256))
				if err != nil {
					assert.True(t, typedErr(err), "lookup: %v", err)
					continue
				}
				assert.NotEmpty(t, succ)
			}
		}(g)
	}

	errs := make([]error, len(nodes))
	var joins sync.WaitGroup
	for i, n := range nodes {
		joins.Add(1)
		go func(i int, n *Node) {
			defer joins.Done()
			errs[i] = n.Join(ctx)
		}(i, n)
	}
	joins.Wait()
	close(stop)
	lookups.Wait()

	for i, n := range nodes {
		if errs[i] == nil {
			require.Equal(t, Joined, n.State(), n.Address())
			continue
		}
		require.True(t, typedErr(errs[i]), "join of %s: %v", n.Address(), errs[i])
		require.Equal(t, Failed, n.State(), n.Address())
	}
}

func TestNode_RequestsDuringJoin(t *testing.T) {
	ctx := context.Background()
	lt, _ := buildRing(t, 8, 0, 64, 128, 192)

	joiner, err := NewNode(addr(100), addr(0), lt, testConfig(8))
	require.NoError(t, err)
	lt.Register(joiner)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < 50; i++ {
				switch (g + i) % 3 {
				case 0:
					assert.NoError(t, lt.SetPredecessor(ctx, joiner.Address(), addr(64)))
				case 1:
					req := UpdateFingerTableRequest{Sender: addr(128), Index: i % 8, Origin: addr(128)}
					if _, err := lt.UpdateFingerTable(ctx, joiner.Address(), req); err != nil {
						assert.True(t, typedErr(err), "update: %v", err)
					}
				default:
					if _, err := lt.FindSuccessor(ctx, joiner.Address(), ID(i*5)); err != nil {
						assert.True(t, typedErr(err), "lookup: %v", err)
					}
				}
			}
		}(g)
	}

	joined := make(chan error, 1)
	go func() {
		<-start
		joined <- joiner.Join(ctx)
	}()
	close(start)
	wg.Wait()

	if err := <-joined; err != nil {
		require.True(t, typedErr(err), "join: %v", err)
		require.Equal(t, Failed, joiner.State())
	} else {
		require.Equal(t, Joined, joiner.State())
	}
}

func TestLocalTransport_Deregister(t *testing.T) {
	lt, nodes := buildRing(t, 6, 10, 20)
	ctx := context.Background()

	require.NoError(t, lt.Ping(ctx, addr(20)))
	lt.Deregister(addr(20))

	err := lt.Ping(ctx, addr(20))
	require.True(t, xerrors.Is(err, ErrRemoteUnavailable))

	_, err = nodes[0].FindSuccessor(ctx, 25)
	require.True(t, xerrors.Is(err, ErrRemoteUnavailable))
}
