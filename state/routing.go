package state

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Route is a routing table entry. Dest is the key.
type Route struct {
	Dest    RouterId
	Nh      OverlayAddr
	Metric  uint16
	Updated time.Time
}

func (r Route) String() string {
	return fmt.Sprintf("(nh: %s, metric: %d)", r.Nh.Id, r.Metric)
}

// RouteChange describes the outcome of RouteTable.Upsert.
type RouteChange int

const (
	RouteUnchanged RouteChange = iota
	RouteAdded
	RouteImproved
	RouteRefreshed
	RouteWorsened
	// RouteRejected is returned when a new destination does not fit in the table.
	RouteRejected
	// RouteDropped is never returned by Upsert, it reports a route removed by AgeOut.
	RouteDropped
)

func (c RouteChange) String() string {
	switch c {
	case RouteUnchanged:
		return "UNCHANGED"
	case RouteAdded:
		return "ADDED"
	case RouteImproved:
		return "IMPROVED"
	case RouteRefreshed:
		return "REFRESHED"
	case RouteWorsened:
		return "WORSENED"
	case RouteRejected:
		return "REJECTED"
	case RouteDropped:
		return "DROPPED"
	}
	return fmt.Sprintf("RouteChange(%d)", int(c))
}

// Modified reports whether the entry was written.
func (c RouteChange) Modified() bool {
	return c != RouteUnchanged && c != RouteRejected && c != RouteDropped
}

// RouteTable holds one entry per known destination. The first entry is always the route to
// ourselves; it has metric 0, is never overwritten and never ages out.
//
// RouteTable is safe for concurrent use.
type RouteTable struct {
	mu     sync.RWMutex
	self   OverlayAddr
	routes []Route
	// Clock timestamps refreshed routes. It must be set before the table is shared.
	Clock func() time.Time
}

func NewRouteTable(self OverlayAddr) *RouteTable {
	t := &RouteTable{
		self:  self,
		Clock: time.Now,
	}
	t.routes = append(make([]Route, 0, MaxRoutes), Route{
		Dest:    self.Id,
		Nh:      self,
		Metric:  SelfMetric,
		Updated: t.Clock(),
	})
	return t
}

func (t *RouteTable) indexOf(dest RouterId) int {
	return slices.IndexFunc(t.routes, func(r Route) bool {
		return r.Dest == dest
	})
}

// Lookup returns the entry for dest.
func (t *RouteTable) Lookup(dest RouterId) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := t.indexOf(dest)
	if idx == -1 {
		return Route{}, false
	}
	return t.routes[idx], true
}

// Upsert offers the route (dest via nh at metric) to the table.
//
// A missing destination is inserted. An existing entry is replaced only if the offered metric is
// strictly better, or if the offer comes from the next hop the entry already uses: that router
// is authoritative for the route, so its offer is taken even when it is worse.
func (t *RouteTable) Upsert(dest RouterId, nh OverlayAddr, metric uint16) RouteChange {
	_, change := t.offer(dest, nh, metric, true)
	return change
}

// Offer is Upsert for an advertised route. An offer at or above infinity for a destination that
// is not in the table is ignored. The entry as stored after the offer is returned.
func (t *RouteTable) Offer(dest RouterId, nh OverlayAddr, metric, infinity uint16) (Route, RouteChange) {
	return t.offer(dest, nh, metric, metric < infinity)
}

func (t *RouteTable) offer(dest RouterId, nh OverlayAddr, metric uint16, insert bool) (Route, RouteChange) {
	if dest == t.self.Id {
		return Route{}, RouteUnchanged
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOf(dest)
	if idx == -1 {
		if !insert {
			return Route{}, RouteUnchanged
		}
		if len(t.routes) >= MaxRoutes {
			return Route{}, RouteRejected
		}
		t.routes = append(t.routes, Route{
			Dest:    dest,
			Nh:      nh,
			Metric:  metric,
			Updated: t.Clock(),
		})
		return t.routes[len(t.routes)-1], RouteAdded
	}

	cur := &t.routes[idx]
	if cur.Metric <= metric && cur.Nh.Id != nh.Id {
		return *cur, RouteUnchanged
	}
	change := RouteRefreshed
	if metric < cur.Metric {
		change = RouteImproved
	} else if metric > cur.Metric {
		change = RouteWorsened
	}
	cur.Metric = metric
	cur.Nh = nh
	cur.Updated = t.Clock()
	return *cur, change
}

// AgeOut removes every route, other than the route to ourselves, that has not been refreshed
// for more than threshold or whose metric reached infinity. The removed routes are returned.
func (t *RouteTable) AgeOut(now time.Time, threshold time.Duration, infinity uint16) []Route {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Route
	n := 1
	for _, r := range t.routes[1:] {
		if now.Sub(r.Updated) > threshold || r.Metric >= infinity {
			removed = append(removed, r)
			continue
		}
		t.routes[n] = r
		n++
	}
	clear(t.routes[n:])
	t.routes = t.routes[:n]
	return removed
}

// Snapshot returns a copy of the table, in insertion order with the route to ourselves first.
func (t *RouteTable) Snapshot() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.routes)
}

func (t *RouteTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}
