package state

import (
	"fmt"
	"slices"
)

// NeighbourTable lists the routers directly adjacent to us. It is populated once before the
// protocol starts and is read-only afterwards, so it can be shared between goroutines freely.
type NeighbourTable struct {
	tab []OverlayAddr
}

func NewNeighbourTable(neighs ...OverlayAddr) (*NeighbourTable, error) {
	if len(neighs) > MaxNeighbours {
		return nil, fmt.Errorf("too many neighbours: %d > %d", len(neighs), MaxNeighbours)
	}
	nt := &NeighbourTable{tab: make([]OverlayAddr, 0, len(neighs))}
	for _, n := range neighs {
		if !n.IsValid() {
			return nil, fmt.Errorf("neighbour %s has no valid locator", n.Id)
		}
		if _, ok := nt.Get(n.Id); ok {
			return nil, fmt.Errorf("duplicate neighbour %s", n.Id)
		}
		nt.tab = append(nt.tab, n)
	}
	return nt, nil
}

// Get resolves a neighbour id to its overlay address.
func (n *NeighbourTable) Get(id RouterId) (OverlayAddr, bool) {
	idx := slices.IndexFunc(n.tab, func(addr OverlayAddr) bool {
		return addr.Id == id
	})
	if idx == -1 {
		return OverlayAddr{}, false
	}
	return n.tab[idx], true
}

func (n *NeighbourTable) Len() int {
	return len(n.tab)
}

// Snapshot returns the neighbours in configuration order.
func (n *NeighbourTable) Snapshot() []OverlayAddr {
	return slices.Clone(n.tab)
}
