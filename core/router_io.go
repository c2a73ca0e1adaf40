package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

// Advertisement builds the control packet sent to neighbour `to` this period
func (r *Router) Advertisement(to state.RouterId) *protocol.Ctrl {
	var entries []protocol.DVEntry
	if r.NoSplitHorizon {
		entries = BuildFullAdvertisement(r.Table)
	} else {
		entries = BuildAdvertisement(r.Table, to, r.Infinity)
	}
	return &protocol.Ctrl{
		Src:     r.Id,
		Entries: entries,
	}
}

// Broadcast sends every neighbour its advertisement. A failed send only affects that neighbour;
// the pass is aborted only once the socket has been closed.
func (r *Router) Broadcast() error {
	for _, neigh := range r.Neighbours.Snapshot() {
		dv := r.Advertisement(neigh.Id)
		err := r.send(dv, neigh.Addr)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			perf.CtrlSendErrors.Add(1)
			r.Log(SendFailed, "failed to send distance vector", "to", neigh, "err", err)
			continue
		}
		perf.CtrlSent.Add(1)
		r.Log(DVSent, "", "to", neigh.Id, "dv", dv.Entries)
	}
	return nil
}

// AgeRoutes drops the routes that have not been refreshed within the expiry threshold
func (r *Router) AgeRoutes(now time.Time) {
	for _, route := range r.Table.AgeOut(now, r.ExpiryThreshold(), r.Infinity) {
		perf.RoutesAged.Add(1)
		r.Log(StaleRouteDropped, "", "dest", route.Dest, "nh", route.Nh.Id, "metric", route.Metric, "age", now.Sub(route.Updated))
		r.publish(route, state.RouteDropped)
	}
}

// BroadcastLoop advertises our table once per broadcast period, aging routes after each wait.
func (r *Router) BroadcastLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.BroadcastPeriod)
	defer ticker.Stop()
	for {
		if err := r.Broadcast(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("broadcast: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		r.AgeRoutes(r.Table.Clock())
	}
}

// ReceiveLoop reads and dispatches one datagram at a time until the socket is closed.
func (r *Router) ReceiveLoop(ctx context.Context) error {
	buf := make([]byte, state.RecvBufferSize)
	for {
		n, from, err := r.Conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		perf.RecvBytesPerSecond.Add(float64(n))
		start := time.Now()
		r.Dispatch(buf[:n], from)
		elapsed := time.Since(start)
		perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
		if elapsed > time.Millisecond*4 {
			r.Env.Log.Warn("dispatch took a long time!", "from", from, "elapsed", elapsed)
		}
	}
}

// Dispatch handles a single datagram received from `from`. Malformed packets are dropped.
func (r *Router) Dispatch(b []byte, from netip.AddrPort) {
	pkt, err := protocol.Unmarshal(b)
	if err != nil {
		perf.MalformedRecv.Add(1)
		r.Log(MalformedPacket, "dropped datagram", "from", from, "len", len(b), "err", err)
		return
	}
	switch p := pkt.(type) {
	case *protocol.Ctrl:
		if r.Static() {
			r.Log(DVReceived, "ignored, routes are static", "from", from)
			return
		}
		r.handleCtrl(p, from)
	case *protocol.Data:
		r.handleData(p)
	}
}

// resolveSender maps the sender id carried by a control packet to a neighbour. Packets from
// routers that are not our neighbours are dropped, as are packets whose udp source is not the
// neighbour's locator, unless AllowSourceMismatch is set.
func (r *Router) resolveSender(id state.RouterId, from netip.AddrPort) (state.OverlayAddr, bool) {
	neigh, ok := r.Neighbours.Get(id)
	if !ok {
		r.Log(UnknownNeighbour, "dropped control packet", "src", id, "from", from)
		return state.OverlayAddr{}, false
	}
	if netip.AddrPortFrom(from.Addr().Unmap(), from.Port()) != neigh.Addr {
		if !r.AllowSourceMismatch {
			r.Log(SourceMismatch, "dropped control packet", "src", id, "from", from, "expected", neigh.Addr)
			return state.OverlayAddr{}, false
		}
		r.Log(SourceMismatch, "accepted control packet", "src", id, "from", from, "expected", neigh.Addr)
	}
	return neigh, true
}

func (r *Router) handleCtrl(p *protocol.Ctrl, from netip.AddrPort) {
	sender, ok := r.resolveSender(p.Src, from)
	if !ok {
		return
	}
	perf.CtrlRecv.Add(1)
	r.Log(DVReceived, "", "from", sender.Id, "dv", p.Entries)

	for _, u := range ApplyAdvertisement(r.Table, sender, p.Entries, r.Infinity) {
		if !u.Change.Modified() {
			r.Log(TableFull, "ignored destination", "dest", u.Dest, "nh", sender.Id, "max", state.MaxRoutes)
			continue
		}
		if u.Change != state.RouteRefreshed {
			r.Log(RouteChanged, u.Change.String(), "dest", u.Dest, "nh", sender.Id, "metric", u.Metric)
		}
		r.publish(state.Route{
			Dest:    u.Dest,
			Nh:      u.Nh,
			Metric:  u.Metric,
			Updated: u.Updated,
		}, u.Change)
	}
}

func (r *Router) handleData(p *protocol.Data) {
	if p.Dst == r.Id {
		perf.DataDelivered.Add(1)
		r.Log(DataDelivered, "", "pkt", p)
		r.deliver(p)
		return
	}
	if p.TTL <= 1 {
		perf.DataDropped.Add(1)
		r.Log(TTLExceeded, "", "pkt", p)
		r.ttlExceeded(p)
		return
	}
	p.TTL--
	if err := r.Forward(p); err != nil {
		perf.DataDropped.Add(1)
		r.Log(NoRoute, "dropped packet", "pkt", p, "err", err)
		return
	}
	perf.DataForwarded.Add(1)
}

// Forward sends pkt to the next hop toward its destination. ErrNoRoute is returned, and nothing
// is sent, if the destination is unreachable.
func (r *Router) Forward(pkt *protocol.Data) error {
	route, ok := r.Lookup(pkt.Dst)
	if !ok {
		return fmt.Errorf("%w to %s", ErrNoRoute, pkt.Dst)
	}
	if err := r.send(pkt, route.Nh.Addr); err != nil {
		return fmt.Errorf("failed to forward to %s: %w", route.Nh.Id, err)
	}
	return nil
}
