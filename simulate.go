package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"chord_ring/chord"
	"chord_ring/keys"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Domains looked up concurrently once the ring is built.
var simulationDomains = []string{
	"google.com", "googleapis.com", "facebook.com", "googletagmanager.com",
	"youtube.com", "instagram.com", "twitter.com", "amazon.com",
	"wikipedia.org", "openai.com", "cloudflare.com", "github.com",
	"microsoft.com", "apple.com", "reddit.com", "linkedin.com",
	"netflix.com", "yahoo.com",
}

type ChordNode struct {
	node   *chord.Node
	server *chord.HTTPNodeServer
}

type simulation struct {
	conf     *chord.Config
	trans    *chord.HTTPTransport
	nodes    []ChordNode
	owners   map[chord.ID]string
	failures int
	requests int
}

// runSimulation starts numNodes HTTP nodes on consecutive ports of this host,
// joins them one after the other and checks the resulting ring.
func runSimulation(ctx context.Context, numNodes, basePort, concurrentRequests int, conf *chord.Config) error {
	if numNodes < 1 {
		return xerrors.Errorf("need at least one node, got %d", numNodes)
	}
	sim := &simulation{
		conf:     conf,
		trans:    chord.NewHTTPTransport(conf.Timeout),
		owners:   make(map[chord.ID]string),
		requests: concurrentRequests,
	}
	defer sim.shutdown()

	printSeparator("Starting Nodes")
	bootstrap := ""
	for i := 0; i < numNodes; i++ {
		addr := fmt.Sprintf(":%d", basePort+i)
		node, server, err := createNode(addr, bootstrap, sim.trans, conf)
		if err != nil {
			return err
		}
		if prev, ok := sim.owners[node.ID()]; ok {
			return xerrors.Errorf("%s and %s share id %d: %w", prev, addr, node.ID(), chord.ErrIdentifierCollision)
		}
		if err := server.Start(addr); err != nil {
			return err
		}
		sim.nodes = append(sim.nodes, ChordNode{node: node, server: server})
		sim.owners[node.ID()] = addr
		if i == 0 {
			bootstrap = addr
		}
	}

	printSeparator("Testing Node Connectivity")
	sim.testPing(ctx)

	printSeparator("Testing Node Joining")
	if err := sim.testNodeJoining(ctx); err != nil {
		return err
	}

	printSeparator("Testing Ring Invariant")
	sim.testRing(ctx)

	printSeparator("Testing Lookups")
	sim.testLookups(ctx)

	printSeparator(fmt.Sprintf("Running %d Concurrent Lookup Requests", sim.requests))
	sim.testConcurrentLookups(ctx)

	printSeparator("Testing Finger Tables")
	sim.testFingerTables(ctx)

	first := sim.nodes[0].node
	color.Yellow("\n%s\n", fingerTree(first.Info(), first.Fingers()))

	if sim.failures > 0 {
		return xerrors.Errorf("simulation finished with %d failed checks", sim.failures)
	}
	color.HiGreen("\nAll checks passed.\n")
	return nil
}

func (sim *simulation) fail(format string, args ...interface{}) {
	sim.failures++
	color.Red(format, args...)
}

func (sim *simulation) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, n := range sim.nodes {
		if err := n.server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Str("node", n.node.Address()).Msg("shutdown failed")
		}
	}
}

func (sim *simulation) testPing(ctx context.Context) {
	for i, n := range sim.nodes {
		if err := sim.trans.Ping(ctx, n.node.Address()); err != nil {
			sim.fail("Failed to ping node %d at %s: %v\n", i+1, n.node.Address(), err)
			continue
		}
		fmt.Printf("Successfully pinged node %d at %s\n", i+1, n.node.Address())
	}
}

func (sim *simulation) testNodeJoining(ctx context.Context) error {
	for i, n := range sim.nodes[1:] {
		start := time.Now()
		if err := n.node.Join(ctx); err != nil {
			return xerrors.Errorf("node %d failed to join: %w", i+2, err)
		}
		fmt.Printf("Node %d (%s, id %d) joined in %s\n", i+2, n.node.Address(), n.node.ID(), time.Since(start))
	}
	return nil
}

// testRing walks successor pointers from the first node and expects to see
// every node exactly once, each one the predecessor of the next.
func (sim *simulation) testRing(ctx context.Context) {
	start := sim.nodes[0].node.Address()
	seen := make(map[string]bool)
	cur := start

	for {
		info, err := sim.trans.Info(ctx, cur)
		if err != nil {
			sim.fail("Failed to read %s: %v\n", cur, err)
			return
		}
		if seen[cur] {
			sim.fail("Successor walk revisited %s before returning to %s\n", cur, start)
			return
		}
		seen[cur] = true
		fmt.Printf("%s (id %d) -> %s\n", cur, info.ID, info.Successor.Address)

		succ, err := sim.trans.Info(ctx, info.Successor.Address)
		if err != nil {
			sim.fail("Failed to read %s: %v\n", info.Successor.Address, err)
			return
		}
		if succ.Predecessor.Address != cur {
			sim.fail("Predecessor of %s is %s, expected %s\n", succ.Address, succ.Predecessor.Address, cur)
		}

		cur = info.Successor.Address
		if cur == start {
			break
		}
	}

	if len(seen) != len(sim.nodes) {
		sim.fail("Successor walk visited %d of %d nodes\n", len(seen), len(sim.nodes))
		return
	}
	color.Green("Ring visits all %d nodes exactly once\n", len(seen))
}

func (sim *simulation) sampleIDs() []chord.ID {
	const samples = 256
	size := uint64(1) << uint(sim.conf.Bits)
	if sim.conf.Bits < chord.MaxBits && size <= samples {
		ids := make([]chord.ID, size)
		for i := range ids {
			ids[i] = chord.ID(i)
		}
		return ids
	}

	ids := make([]chord.ID, 0, samples+len(sim.owners))
	for id := range sim.owners {
		ids = append(ids, id)
	}
	mask := ^uint64(0)
	if sim.conf.Bits < chord.MaxBits {
		mask = size - 1
	}
	for i := 0; i < samples; i++ {
		ids = append(ids, chord.ID(rand.Uint64()&mask))
	}
	return ids
}

func (sim *simulation) testLookups(ctx context.Context) {
	ids := sim.sampleIDs()
	wrong := 0
	for _, id := range ids {
		from := sim.nodes[rand.Intn(len(sim.nodes))].node.Address()
		got, err := sim.trans.FindSuccessor(ctx, from, id)
		if err != nil {
			sim.fail("Lookup of %d through %s failed: %v\n", id, from, err)
			continue
		}
		if want := expectedOwner(sim.owners, id); got != want {
			wrong++
			sim.fail("Lookup of %d through %s returned %s, expected %s\n", id, from, got, want)
		}
	}
	fmt.Printf("Checked %d lookups, %d wrong\n", len(ids), wrong)
}

func (sim *simulation) testConcurrentLookups(ctx context.Context) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(sim.requests)

	for i := 0; i < sim.requests; i++ {
		go func(requestID int) {
			defer wg.Done()

			domain := simulationDomains[rand.Intn(len(simulationDomains))]
			from := sim.nodes[rand.Intn(len(sim.nodes))].node.Address()

			startTime := time.Now()
			reply, err := sim.trans.Lookup(ctx, from, keys.FromName(domain))
			elapsedTime := time.Since(startTime)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				sim.fail("[Request %d] Failed to look up '%s': %v\n", requestID, domain, err)
				return
			}
			if want := expectedOwner(sim.owners, reply.ID); reply.Address != want {
				sim.fail("[Request %d] '%s' resolved to %s, expected %s\n", requestID, domain, reply.Address, want)
				return
			}
			fmt.Printf("[Request %d] '%s' (id %d) is served by %s (Time: %s)\n", requestID, domain, reply.ID, reply.Address, elapsedTime)
		}(i)
	}
	wg.Wait()
}

// testFingerTables reports how many fingers point at the true successor of
// their start. Join-time repair does not guarantee every entry, so this is
// informational only.
func (sim *simulation) testFingerTables(ctx context.Context) {
	total, correct := 0, 0
	for _, n := range sim.nodes {
		fingers, err := sim.trans.Fingers(ctx, n.node.Address())
		if err != nil {
			sim.fail("Failed to read fingers of %s: %v\n", n.node.Address(), err)
			continue
		}
		for _, f := range fingers {
			total++
			if f.NodeAddress == expectedOwner(sim.owners, f.Start) {
				correct++
			}
		}
	}
	if total == 0 {
		return
	}
	fmt.Printf("Total Entries: %d\n", total)
	fmt.Printf("Incorrect Entries: %d\n", total-correct)
	fmt.Printf("Accuracy: %.2f%%\n", 100.0*float64(correct)/float64(total))
}
