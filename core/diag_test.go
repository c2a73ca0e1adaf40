package core

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(req *protocol.Data, from state.RouterId, subtype protocol.Subtype) *protocol.Data {
	return &protocol.Data{
		Subtype: subtype,
		Src:     from,
		Dst:     req.Src,
		TTL:     state.DefaultTTL,
		Seq:     req.Seq,
		Sent:    req.Sent,
	}
}

func TestPing(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	receiveDV(t, r, 2, dv(2, 0, 3, 1))
	h.OnSend = func(to netip.AddrPort, pkt protocol.Packet) {
		req, ok := pkt.(*protocol.Data)
		if !ok || req.Subtype != protocol.EchoRequest {
			return
		}
		assert.Equal(t, loc(2).Addr, to)
		dispatchData(t, r, answer(req, req.Dst, protocol.EchoReply), 2)
	}

	res, err := r.Ping(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, state.RouterId(3), res.From)
	assert.GreaterOrEqual(t, res.RTT, time.Duration(0))

	res2, err := r.Ping(context.Background(), 3)
	require.NoError(t, err)
	assert.NotEqual(t, res.Seq, res2.Seq)
}

func TestPing_NoRoute(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	_, err := r.Ping(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Empty(t, h.Sent())
}

func TestPing_Timeout(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	r.ProbeTimeout = 50 * time.Millisecond
	receiveDV(t, r, 2, dv(2, 0))

	_, err := r.Ping(context.Background(), 2)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, h.Sent(), 1)
}

func TestPing_Cancelled(t *testing.T) {
	r, _ := newTestRouter(t, 1, neighbours(2))
	receiveDV(t, r, 2, dv(2, 0))

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errors.New("interrupted by operator"))
	_, err := r.Ping(ctx, 2)
	assert.ErrorContains(t, err, "interrupted by operator")
}

// R1 - R2 - R3 - R4, we are R1
func lineNetwork(t *testing.T, r *Router, h *ConnHarness, silent ...uint8) {
	receiveDV(t, r, 2, dv(2, 0, 3, 1, 4, 2))
	h.OnSend = func(to netip.AddrPort, pkt protocol.Packet) {
		req, ok := pkt.(*protocol.Data)
		if !ok || req.Subtype != protocol.TraceRequest {
			return
		}
		for _, ttl := range silent {
			if req.TTL == ttl {
				return
			}
		}
		// the packet travels req.TTL hops from R1
		hop := state.RouterId(1 + req.TTL)
		if hop >= req.Dst {
			dispatchData(t, r, answer(req, req.Dst, protocol.TraceArrived), 2)
			return
		}
		dispatchData(t, r, answer(req, hop, protocol.TraceTimeExceeded), 2)
	}
}

func TestTraceroute(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	lineNetwork(t, r, h)

	var seen []Hop
	hops, err := r.Traceroute(context.Background(), 4, state.TraceMaxHops, func(hop Hop) {
		seen = append(seen, hop)
	})
	require.NoError(t, err)
	expected := []Hop{
		{TTL: 1, From: 2},
		{TTL: 2, From: 3},
		{TTL: 3, From: 4, Arrived: true},
	}
	if diff := cmp.Diff(expected, hops, cmpopts.IgnoreFields(Hop{}, "RTT")); diff != "" {
		t.Errorf("hops mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, hops, seen)
}

func TestTraceroute_SilentHop(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	r.ProbeTimeout = 50 * time.Millisecond
	lineNetwork(t, r, h, 2)

	hops, err := r.Traceroute(context.Background(), 4, state.TraceMaxHops, nil)
	require.NoError(t, err)
	require.Len(t, hops, 3)
	assert.ErrorIs(t, hops[1].Err, ErrTimeout)
	assert.True(t, hops[2].Arrived)
}

func TestTraceroute_MaxHops(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	lineNetwork(t, r, h)

	hops, err := r.Traceroute(context.Background(), 4, 2, nil)
	require.NoError(t, err)
	require.Len(t, hops, 2)
	assert.False(t, hops[1].Arrived)
}

func TestTraceroute_NoRoute(t *testing.T) {
	r, _ := newTestRouter(t, 1, neighbours(2))
	hops, err := r.Traceroute(context.Background(), 4, state.TraceMaxHops, nil)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Empty(t, hops)
}

func TestDeliver_TraceRequest(t *testing.T) {
	r, h := newTestRouter(t, 4, neighbours(3))
	receiveDV(t, r, 3, dv(3, 0, 1, 2))

	req := &protocol.Data{Subtype: protocol.TraceRequest, Src: 1, Dst: 4, TTL: 1, Seq: 3, Sent: 10}
	dispatchData(t, r, req, 3)
	assert.Equal(t, []SentPacket{{To: loc(3).Addr, Pkt: answer(req, 4, protocol.TraceArrived)}}, h.Sent())
}

func TestDeliver_UnsolicitedReply(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	receiveDV(t, r, 2, dv(2, 0))
	dispatchData(t, r, &protocol.Data{Subtype: protocol.EchoReply, Src: 2, Dst: 1, TTL: 3, Seq: 999}, 2)
	assert.Empty(t, h.Sent())
}
