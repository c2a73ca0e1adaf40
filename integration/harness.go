//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"runtime/pprof"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/encodeous/tint"
	"github.com/stretchr/testify/require"
)

type link = state.Pair[netip.AddrPort, netip.AddrPort]

type datagram struct {
	b    []byte
	from netip.AddrPort
}

// InMemoryNetwork delivers datagrams between VirtualConns. Datagrams to unbound addresses, over
// cut links or to a full receive queue are dropped, like UDP would.
type InMemoryNetwork struct {
	mu    sync.RWMutex
	conns map[netip.AddrPort]*VirtualConn
	cut   map[link]bool
}

func NewInMemoryNetwork() *InMemoryNetwork {
	return &InMemoryNetwork{
		conns: make(map[netip.AddrPort]*VirtualConn),
		cut:   make(map[link]bool),
	}
}

func (n *InMemoryNetwork) Bind(addr netip.AddrPort) (*VirtualConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.conns[addr]; ok {
		return nil, fmt.Errorf("address %s already in use", addr)
	}
	c := &VirtualConn{
		net:    n,
		addr:   addr,
		in:     make(chan datagram, 256),
		closed: make(chan struct{}),
	}
	n.conns[addr] = c
	return c, nil
}

// SetLink cuts or restores both directions between a and b
func (n *InMemoryNetwork) SetLink(a, b netip.AddrPort, up bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[link{V1: a, V2: b}] = !up
	n.cut[link{V1: b, V2: a}] = !up
}

func (n *InMemoryNetwork) deliver(from, to netip.AddrPort, b []byte) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.cut[link{V1: from, V2: to}] {
		return
	}
	dst, ok := n.conns[to]
	if !ok {
		return
	}
	select {
	case dst.in <- datagram{b: append([]byte(nil), b...), from: from}:
	default:
	}
}

func (n *InMemoryNetwork) unbind(addr netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.conns, addr)
}

type VirtualConn struct {
	net    *InMemoryNetwork
	addr   netip.AddrPort
	in     chan datagram
	closed chan struct{}
	once   sync.Once
}

func (c *VirtualConn) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	select {
	case d := <-c.in:
		return copy(b, d.b), d.from, nil
	case <-c.closed:
		return 0, netip.AddrPort{}, net.ErrClosed
	}
}

func (c *VirtualConn) WriteToUDPAddrPort(b []byte, to netip.AddrPort) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	c.net.deliver(c.addr, to, b)
	return len(b), nil
}

func (c *VirtualConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.net.unbind(c.addr)
	})
	return nil
}

// VirtualHarness runs one router per topology entry on an InMemoryNetwork
type VirtualHarness struct {
	t       *testing.T
	Net     *InMemoryNetwork
	Topo    state.Topology
	Routers map[state.RouterId]*core.Router
	wg      sync.WaitGroup
	errs    chan error
}

type Option func(cfg *state.RouterCfg)

func WithPeriod(period, grace time.Duration) Option {
	return func(cfg *state.RouterCfg) {
		cfg.BroadcastPeriod = period
		cfg.ExpiryGrace = grace
	}
}

func WithNoSplitHorizon() Option {
	return func(cfg *state.RouterCfg) {
		cfg.NoSplitHorizon = true
	}
}

func NewVirtualHarness(t *testing.T, topology string, opts ...Option) *VirtualHarness {
	topo, err := state.ParseTopology(strings.NewReader(topology))
	require.NoError(t, err)
	v := &VirtualHarness{
		t:       t,
		Net:     NewInMemoryNetwork(),
		Topo:    topo,
		Routers: make(map[state.RouterId]*core.Router),
		errs:    make(chan error, len(topo)),
	}
	for id := range topo {
		cfg := state.RouterCfg{
			Id:           id,
			Topology:     "virtual",
			ProbeTimeout: 500 * time.Millisecond,
		}
		for _, opt := range opts {
			opt(&cfg)
		}
		state.ExpandRouterConfig(&cfg)

		neighs, err := topo.Neighbours(id, cfg.Locator())
		require.NoError(t, err)
		conn, err := v.Net.Bind(cfg.Self().Addr)
		require.NoError(t, err)

		ctx, cancel := context.WithCancelCause(context.Background())
		env := &state.Env{
			RouterCfg: cfg,
			Context:   ctx,
			Cancel:    cancel,
			Log: slog.New(tint.NewHandler(os.Stderr, &tint.Options{
				Level:        slog.LevelInfo,
				CustomPrefix: id.String(),
				TimeFormat:   "15:04:05.000",
			})),
		}
		v.Routers[id] = core.NewRouter(env, neighs, conn)
	}
	return v
}

func (v *VirtualHarness) Start() <-chan error {
	for id, r := range v.Routers {
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			labels := pprof.Labels("dvr router", id.String())
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				if err := r.Run(); err != nil {
					v.errs <- fmt.Errorf("%s: %w", id, err)
				}
			})
		}()
	}
	return v.errs
}

func (v *VirtualHarness) Stop() {
	for _, r := range v.Routers {
		r.Cancel(errors.New("stopping harness"))
	}
	v.wg.Wait()
}

// Kill stops a single router, as if its process crashed
func (v *VirtualHarness) Kill(id state.RouterId) {
	v.Routers[id].Cancel(errors.New("killed"))
}

func (v *VirtualHarness) SetLink(a, b state.RouterId, up bool) {
	v.Net.SetLink(v.Routers[a].Self().Addr, v.Routers[b].Self().Addr, up)
}

// Metric returns the metric of the route from a to b, or INF if there is none
func (v *VirtualHarness) Metric(a, b state.RouterId) uint16 {
	route, ok := v.Routers[a].Lookup(b)
	if !ok {
		return state.INF
	}
	return route.Metric
}

func (v *VirtualHarness) NextHop(a, b state.RouterId) state.RouterId {
	route, _ := v.Routers[a].Lookup(b)
	return route.Nh.Id
}

// Converged reports whether every router knows a route to every other router
func (v *VirtualHarness) Converged() bool {
	for a := range v.Routers {
		for b := range v.Routers {
			if _, ok := v.Routers[a].Lookup(b); !ok {
				return false
			}
		}
	}
	return true
}

func (v *VirtualHarness) WaitFor(cond func() bool, timeout time.Duration, msg string) {
	v.t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case err := <-v.errs:
			v.t.Fatalf("router failed while waiting for %s: %v", msg, err)
		case <-deadline:
			v.t.Fatalf("timed out waiting for %s", msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
