package main

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"chord_ring/chord"

	"github.com/disiqueira/gotree"
	"github.com/fatih/color"
	"golang.org/x/xerrors"
)

func createNode(addr, bootstrap string, trans chord.Transport, conf *chord.Config) (*chord.Node, *chord.HTTPNodeServer, error) {
	node, err := chord.NewNode(addr, bootstrap, trans, conf)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to create node at %s: %w", addr, err)
	}
	return node, chord.NewHTTPNodeServer(node), nil
}

func printSeparator(title string) {
	color.HiYellow("\n=== %s ===\n\n", title)
}

// fingerTree renders the routing state of a node as a tree.
func fingerTree(info chord.NodeInfo, fingers []chord.FingerEntry) string {
	root := gotree.New(fmt.Sprintf("%s (id %d, %s)", info.Address, info.ID, info.State))
	root.Add(fmt.Sprintf("predecessor: %s (id %d)", info.Predecessor.Address, info.Predecessor.ID))
	root.Add(fmt.Sprintf("successor: %s (id %d)", info.Successor.Address, info.Successor.ID))

	table := root.Add("fingers")
	for i, f := range fingers {
		table.Add(fmt.Sprintf("%d: start %d -> %s (id %d)", i, f.Start, f.NodeAddress, f.NodeID))
	}
	return root.Print()
}

// expectedOwner returns the address of the first node at or after id.
func expectedOwner(ids map[chord.ID]string, id chord.ID) string {
	sorted := make([]chord.ID, 0, len(ids))
	for nid := range ids {
		sorted = append(sorted, nid)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, nid := range sorted {
		if nid >= id {
			return ids[nid]
		}
	}
	return ids[sorted[0]]
}

// checkAddresses rejects malformed -addr, -listen and -bootstrap values before
// any node is created. An empty bootstrap starts a new ring.
func checkAddresses(addr, listen, bootstrap string) error {
	for _, a := range []struct{ flag, value string }{
		{"addr", addr}, {"listen", listen}, {"bootstrap", bootstrap},
	} {
		if a.value == "" && a.flag == "bootstrap" {
			continue
		}
		if err := addressValidator(a.value); err != nil {
			return xerrors.Errorf("-%s: %w", a.flag, err)
		}
	}
	return nil
}

func addressValidator(val interface{}) error {
	s, ok := val.(string)
	if !ok {
		return xerrors.Errorf("invalid type %T", val)
	}
	_, port, err := net.SplitHostPort(s)
	if err != nil {
		return xerrors.Errorf("invalid address %q: %v", s, err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return xerrors.Errorf("invalid port in %q", s)
	}
	return nil
}
