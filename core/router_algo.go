package core

import (
	"time"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

// AddMetric adds two metrics, saturating at infinity
func AddMetric(a, b, infinity uint16) uint16 {
	return uint16(min(uint32(a)+uint32(b), uint32(infinity)))
}

// BuildAdvertisement builds the distance vector sent to neighbour `to` with split horizon: routes
// whose next hop is `to` are left out, as are unreachable routes. Advertising a route back to the
// neighbour it was learned from lets two routers count to infinity through each other.
func BuildAdvertisement(t *state.RouteTable, to state.RouterId, infinity uint16) []protocol.DVEntry {
	routes := t.Snapshot()
	dv := make([]protocol.DVEntry, 0, len(routes))
	for _, route := range routes {
		if route.Nh.Id == to || route.Metric >= infinity {
			continue
		}
		dv = append(dv, protocol.DVEntry{Dest: route.Dest, Metric: route.Metric})
	}
	return dv
}

// BuildFullAdvertisement builds the same distance vector for every neighbour: the whole table.
func BuildFullAdvertisement(t *state.RouteTable) []protocol.DVEntry {
	routes := t.Snapshot()
	dv := make([]protocol.DVEntry, 0, len(routes))
	for _, route := range routes {
		dv = append(dv, protocol.DVEntry{Dest: route.Dest, Metric: route.Metric})
	}
	return dv
}

// RouteUpdate records an entry of an advertisement that modified the table
type RouteUpdate struct {
	Dest    state.RouterId
	Nh      state.OverlayAddr
	Metric  uint16
	Updated time.Time
	Change  state.RouteChange
}

// ApplyAdvertisement relaxes the table against the distance vector received from sender
// (Bellman-Ford): each destination is offered at the advertised metric plus the cost of the link
// to sender. Entries are independent, so their order does not matter.
//
// An unreachable destination that we do not know about is ignored, there is nothing to retract.
func ApplyAdvertisement(t *state.RouteTable, sender state.OverlayAddr, entries []protocol.DVEntry, infinity uint16) []RouteUpdate {
	var updates []RouteUpdate
	for _, e := range entries {
		metric := AddMetric(e.Metric, state.HopCost, infinity)
		route, change := t.Offer(e.Dest, sender, metric, infinity)
		if change == state.RouteUnchanged {
			continue
		}
		updates = append(updates, RouteUpdate{
			Dest:    e.Dest,
			Nh:      sender,
			Metric:  metric,
			Updated: route.Updated,
			Change:  change,
		})
	}
	return updates
}
