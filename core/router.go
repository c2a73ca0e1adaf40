package core

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/jellydator/ttlcache/v3"
)

// PacketConn is the datagram socket a router listens and sends on. *net.UDPConn implements it.
type PacketConn interface {
	ReadFromUDPAddrPort(b []byte) (n int, addr netip.AddrPort, err error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	Close() error
}

type Router struct {
	*state.Env
	Table      *state.RouteTable
	Neighbours *state.NeighbourTable
	Conn       PacketConn
	Trace      *RouteTrace

	// outstanding probes, indexed by sequence number
	probes     *ttlcache.Cache[uint32, chan *protocol.Data]
	seq        atomic.Uint32
	lastChange atomic.Int64 // unix nanoseconds of the last published route event
	closeOnce  sync.Once
}

func NewRouter(env *state.Env, neighs *state.NeighbourTable, conn PacketConn) *Router {
	return &Router{
		Env:        env,
		Table:      state.NewRouteTable(env.Self()),
		Neighbours: neighs,
		Conn:       conn,
		Trace:      NewRouteTrace(),
		probes: ttlcache.New[uint32, chan *protocol.Data](
			ttlcache.WithTTL[uint32, chan *protocol.Data](state.ProbeCacheTTL),
			ttlcache.WithDisableTouchOnHit[uint32, chan *protocol.Data](),
		),
	}
}

// Close releases the route trace. The socket is owned by the caller of Run.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		_ = r.Trace.Close()
	})
}

// Lookup returns the route to id, if the destination is reachable
func (r *Router) Lookup(id state.RouterId) (state.Route, bool) {
	route, ok := r.Table.Lookup(id)
	if !ok || route.Metric >= r.Infinity {
		return state.Route{}, false
	}
	return route, true
}

func (r *Router) Routes() []state.Route {
	return r.Table.Snapshot()
}

// LastChange returns when a route was last added, modified or dropped, or the zero time.
func (r *Router) LastChange() time.Time {
	ns := r.lastChange.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (r *Router) NeighbourList() []state.OverlayAddr {
	return r.Neighbours.Snapshot()
}

func (r *Router) send(pkt protocol.Packet, to netip.AddrPort) error {
	b, err := pkt.Marshal()
	if err != nil {
		return err
	}
	n, err := r.Conn.WriteToUDPAddrPort(b, to)
	if err != nil {
		return err
	}
	perf.SentBytesPerSecond.Add(float64(n))
	return nil
}

type RouterEvent int

// trace events

const (
	RouteChanged RouterEvent = iota
	StaleRouteDropped
	DVSent
	DVReceived
	DataDelivered
	NoRoute
	TTLExceeded
)

// warn events

const (
	UnknownNeighbour RouterEvent = iota + 1000
	SourceMismatch
	MalformedPacket
	SendFailed
	UnsolicitedReply
	TableFull
)

func (e RouterEvent) String() string {
	switch e {
	case RouteChanged:
		return "ROUTE_CHANGED"
	case StaleRouteDropped:
		return "STALE_ROUTE_DROPPED"
	case DVSent:
		return "DV_SENT"
	case DVReceived:
		return "DV_RECEIVED"
	case DataDelivered:
		return "DATA_DELIVERED"
	case NoRoute:
		return "NO_ROUTE"
	case TTLExceeded:
		return "TTL_EXCEEDED"
	case UnknownNeighbour:
		return "UNKNOWN_NEIGHBOUR"
	case SourceMismatch:
		return "SOURCE_MISMATCH"
	case MalformedPacket:
		return "MALFORMED_PACKET"
	case SendFailed:
		return "SEND_FAILED"
	case UnsolicitedReply:
		return "UNSOLICITED_REPLY"
	case TableFull:
		return "TABLE_FULL"
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

func (r *Router) Log(event RouterEvent, desc string, args ...any) {
	level := slog.LevelDebug
	if event >= UnknownNeighbour {
		level = slog.LevelWarn
	}
	r.Env.Log.Log(r.Context, level, fmt.Sprintf("%s %s", event.String(), desc), args...)
}
