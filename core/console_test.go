package core

import (
	"bytes"
	"context"
	"net/netip"
	"strings"
	"testing"

	"github.com/encodeous/dvr/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConsole(t *testing.T, r *Router, input string) (string, error) {
	var out bytes.Buffer
	err := r.RunConsole(context.Background(), strings.NewReader(input), &out)
	return out.String(), err
}

func TestConsole_ShowRoutes(t *testing.T) {
	r, _ := newTestRouter(t, 1, neighbours(2))
	receiveDV(t, r, 2, dv(2, 0, 3, 1))

	for _, cmd := range []string{"show ip route", "sh ip route", "  sh   ip route  "} {
		out, err := runConsole(t, r, cmd+"\n")
		require.NoError(t, err)
		assert.Contains(t, out, "routing table of R1, 3 entries")
		assert.Regexp(t, `R3\s+R2@127\.0\.0\.1:5557\s+2`, out)
	}
}

func TestConsole_ShowNeighbours(t *testing.T) {
	r, _ := newTestRouter(t, 1, neighbours(2, 4))
	receiveDV(t, r, 2, dv(2, 0))

	out, err := runConsole(t, r, "show ip neigh\n")
	require.NoError(t, err)
	assert.Contains(t, out, "neighbours of R1, 2 entries")
	assert.Regexp(t, `R2\s+127\.0\.0\.1:5557\s+yes`, out)
	assert.Regexp(t, `R4\s+127\.0\.0\.1:5559\s+no`, out)
}

func TestConsole_Ping(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	receiveDV(t, r, 2, dv(2, 0))
	h.OnSend = func(to netip.AddrPort, pkt protocol.Packet) {
		if req, ok := pkt.(*protocol.Data); ok && req.Subtype == protocol.EchoRequest {
			dispatchData(t, r, answer(req, 2, protocol.EchoReply), 2)
		}
	}

	out, err := runConsole(t, r, "ping 2\nping 9\n")
	require.NoError(t, err)
	assert.Contains(t, out, "reply from R2: seq=1")
	assert.Contains(t, out, "4 packets transmitted, 4 received")
	assert.Contains(t, out, "R9 is unreachable: no route")
}

func TestConsole_Traceroute(t *testing.T) {
	r, h := newTestRouter(t, 1, neighbours(2))
	lineNetwork(t, r, h)

	out, err := runConsole(t, r, "traceroute 4\ntraceroute 8\n")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^ 1  R2  `, out)
	assert.Regexp(t, `(?m)^ 3  R4  `, out)
	assert.NotContains(t, out, "R4 not reached")
	assert.Contains(t, out, "R8 is unreachable: no route")
}

func TestConsole_Usage(t *testing.T) {
	r, _ := newTestRouter(t, 1, neighbours(2))
	out, err := runConsole(t, r, "\nhelp\nfoo\nshow ip\nping\nping x\ntraceroute 1 2\n")
	require.NoError(t, err)
	assert.Contains(t, out, "show ip route")
	assert.Contains(t, out, `unknown command "foo"`)
	assert.Contains(t, out, "usage: show ip route | show ip neigh")
	assert.Contains(t, out, "usage: ping <id>")
	assert.Contains(t, out, `invalid router id "x"`)
	assert.Contains(t, out, "usage: traceroute <id>")
}

func TestConsole_Quit(t *testing.T) {
	r, _ := newTestRouter(t, 1, neighbours(2))
	for _, cmd := range []string{"quit", "exit"} {
		out, err := runConsole(t, r, cmd+"\nhelp\n")
		assert.ErrorIs(t, err, ErrQuit)
		assert.NotContains(t, out, "commands:")
	}
}

func TestConsole_Cancelled(t *testing.T) {
	r, _ := newTestRouter(t, 1, neighbours(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	assert.NoError(t, r.RunConsole(ctx, strings.NewReader("help\n"), &out))
}
