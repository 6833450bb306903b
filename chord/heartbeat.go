package chord

import (
	"context"
	"sync"
	"time"
)

// HeartbeatManager periodically pings the successor and predecessor of a
// node and logs the ones that do not answer. It never changes routing state.
type HeartbeatManager struct {
	node     *Node
	interval time.Duration
	timeout  time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.Mutex
	unreachable map[string]time.Time
}

// NewHeartbeatManager initializes a new HeartbeatManager for the given node.
// Each ping gives up after timeout, or after interval if timeout is zero.
func NewHeartbeatManager(node *Node, interval, timeout time.Duration) *HeartbeatManager {
	if timeout <= 0 {
		timeout = interval
	}
	return &HeartbeatManager{
		node:        node,
		interval:    interval,
		timeout:     timeout,
		stopChan:    make(chan struct{}),
		unreachable: make(map[string]time.Time),
	}
}

// Start begins the periodic heartbeat checks.
func (hm *HeartbeatManager) Start() {
	hm.wg.Add(1)
	go func() {
		defer hm.wg.Done()
		ticker := time.NewTicker(hm.interval)
		defer ticker.Stop()

		for {
			select {
			case <-hm.stopChan:
				hm.node.logger.Debug().Msg("heartbeat stopped")
				return
			case <-ticker.C:
				hm.Check(context.Background())
			}
		}
	}()
}

// Stop halts the heartbeat checks. It may be called more than once.
func (hm *HeartbeatManager) Stop() {
	hm.stopOnce.Do(func() { close(hm.stopChan) })
	hm.wg.Wait()
}

// Check pings the successor and predecessor once.
func (hm *HeartbeatManager) Check(ctx context.Context) {
	for _, peer := range []struct{ role, address string }{
		{"successor", hm.node.Successor()},
		{"predecessor", hm.node.Predecessor()},
	} {
		if peer.address == hm.node.Address() {
			continue
		}
		hm.ping(ctx, peer.role, peer.address)
	}
}

func (hm *HeartbeatManager) ping(ctx context.Context, role, address string) {
	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	err := hm.node.transport.Ping(ctx, address)

	hm.mu.Lock()
	defer hm.mu.Unlock()

	if err != nil {
		if _, seen := hm.unreachable[address]; !seen {
			hm.unreachable[address] = time.Now()
		}
		hm.node.logger.Warn().Err(err).Str("peer", address).Str("role", role).Msg("peer is unresponsive")
		return
	}
	if since, seen := hm.unreachable[address]; seen {
		delete(hm.unreachable, address)
		hm.node.logger.Info().Str("peer", address).Str("role", role).Dur("down", time.Since(since)).Msg("peer is back")
	}
}

// Unreachable returns the peers that failed their last ping and when they
// were first seen failing.
func (hm *HeartbeatManager) Unreachable() map[string]time.Time {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	res := make(map[string]time.Time, len(hm.unreachable))
	for addr, since := range hm.unreachable {
		res[addr] = since
	}
	return res
}
