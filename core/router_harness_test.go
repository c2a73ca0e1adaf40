package core

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/encodeous/tint"
	"github.com/stretchr/testify/require"
)

type SentPacket struct {
	To  netip.AddrPort
	Pkt protocol.Packet
}

type datagram struct {
	b    []byte
	from netip.AddrPort
	err  error
}

// ConnHarness is a PacketConn that records every packet the router sends and returns injected
// datagrams to the receive loop.
type ConnHarness struct {
	mu     sync.Mutex
	sent   []SentPacket
	failTo map[netip.AddrPort]error
	// OnSend, if set, is called for every successfully sent packet, outside the lock
	OnSend func(to netip.AddrPort, pkt protocol.Packet)

	in     chan datagram
	closed chan struct{}
	once   sync.Once
}

func NewConnHarness() *ConnHarness {
	return &ConnHarness{
		failTo: make(map[netip.AddrPort]error),
		in:     make(chan datagram, 64),
		closed: make(chan struct{}),
	}
}

func (h *ConnHarness) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	select {
	case d := <-h.in:
		if d.err != nil {
			return 0, netip.AddrPort{}, d.err
		}
		return copy(b, d.b), d.from, nil
	case <-h.closed:
		return 0, netip.AddrPort{}, net.ErrClosed
	}
}

func (h *ConnHarness) WriteToUDPAddrPort(b []byte, to netip.AddrPort) (int, error) {
	select {
	case <-h.closed:
		return 0, net.ErrClosed
	default:
	}
	pkt, err := protocol.Unmarshal(b)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	if err := h.failTo[to]; err != nil {
		h.mu.Unlock()
		return 0, err
	}
	h.sent = append(h.sent, SentPacket{To: to, Pkt: pkt})
	onSend := h.OnSend
	h.mu.Unlock()
	if onSend != nil {
		onSend(to, pkt)
	}
	return len(b), nil
}

func (h *ConnHarness) Close() error {
	h.once.Do(func() {
		close(h.closed)
	})
	return nil
}

func (h *ConnHarness) Closed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *ConnHarness) Inject(t *testing.T, pkt protocol.Packet, from netip.AddrPort) {
	b, err := pkt.Marshal()
	require.NoError(t, err)
	h.in <- datagram{b: b, from: from}
}

func (h *ConnHarness) InjectError(err error) {
	h.in <- datagram{err: err}
}

func (h *ConnHarness) Fail(to netip.AddrPort, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failTo[to] = err
}

func (h *ConnHarness) Sent() []SentPacket {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.sent)
}

// SentTo returns the packets sent to the given router, in order
func (h *ConnHarness) SentTo(to state.OverlayAddr) []protocol.Packet {
	var out []protocol.Packet
	for _, s := range h.Sent() {
		if s.To == to.Addr {
			out = append(out, s.Pkt)
		}
	}
	return out
}

func (h *ConnHarness) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = nil
}

type testOpt func(cfg *state.RouterCfg)

func withNoSplitHorizon(cfg *state.RouterCfg) {
	cfg.NoSplitHorizon = true
}

func withAllowSourceMismatch(cfg *state.RouterCfg) {
	cfg.AllowSourceMismatch = true
}

func withStaticRoutes(cfg *state.RouterCfg) {
	cfg.StaticRoutes = "routes.txt"
}

func withPeriod(period, grace time.Duration) testOpt {
	return func(cfg *state.RouterCfg) {
		cfg.BroadcastPeriod = period
		cfg.ExpiryGrace = grace
	}
}

func loc(id state.RouterId) state.OverlayAddr {
	return state.DefaultLocator().Resolve(id)
}

// newTestRouter builds router id with the given neighbours on top of a ConnHarness
func newTestRouter(t *testing.T, id state.RouterId, neighs []state.RouterId, opts ...testOpt) (*Router, *ConnHarness) {
	cfg := state.RouterCfg{
		Id:           id,
		Topology:     "topology.txt",
		ProbeTimeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	state.ExpandRouterConfig(&cfg)

	addrs := make([]state.OverlayAddr, 0, len(neighs))
	for _, n := range neighs {
		addrs = append(addrs, cfg.Locator().Resolve(n))
	}
	nt, err := state.NewNeighbourTable(addrs...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() {
		cancel(context.Canceled)
	})
	env := &state.Env{
		RouterCfg: cfg,
		Context:   ctx,
		Cancel:    cancel,
		Log: slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:        slog.LevelWarn,
			CustomPrefix: id.String(),
			TimeFormat:   "15:04:05",
		})),
	}
	h := NewConnHarness()
	r := NewRouter(env, nt, h)
	t.Cleanup(r.Close)
	return r, h
}

// dv is shorthand for a distance vector: dv(2, 0, 3, 1) advertises R2 at 0 and R3 at 1
func dv(pairs ...uint16) []protocol.DVEntry {
	entries := make([]protocol.DVEntry, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		entries = append(entries, protocol.DVEntry{Dest: state.RouterId(pairs[i]), Metric: pairs[i+1]})
	}
	return entries
}

// receiveDV feeds the distance vector of neighbour src to r, as if it arrived on the socket
func receiveDV(t *testing.T, r *Router, src state.RouterId, entries []protocol.DVEntry) {
	b, err := (&protocol.Ctrl{Src: src, Entries: entries}).Marshal()
	require.NoError(t, err)
	r.Dispatch(b, loc(src).Addr)
}

func dispatchData(t *testing.T, r *Router, pkt *protocol.Data, from state.RouterId) {
	b, err := pkt.Marshal()
	require.NoError(t, err)
	r.Dispatch(b, loc(from).Addr)
}

type routeView struct {
	Dest   state.RouterId
	Nh     state.RouterId
	Metric uint16
}

func viewRoutes(routes []state.Route) []routeView {
	out := make([]routeView, 0, len(routes))
	for _, r := range routes {
		out = append(out, routeView{Dest: r.Dest, Nh: r.Nh.Id, Metric: r.Metric})
	}
	return out
}
