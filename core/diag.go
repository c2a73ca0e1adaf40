package core

import (
	"context"
	"errors"
	"time"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/jellydator/ttlcache/v3"
)

var (
	ErrNoRoute = errors.New("no route")
	ErrTimeout = errors.New("request timed out")
)

type PingResult struct {
	Seq  uint32
	From state.RouterId
	RTT  time.Duration
}

// Hop is one line of a traceroute. Err is set when the hop did not answer in time.
type Hop struct {
	TTL     uint8
	From    state.RouterId
	RTT     time.Duration
	Arrived bool
	Err     error
}

// probe originates a diagnostic packet and waits for the reply carrying the same sequence number.
func (r *Router) probe(ctx context.Context, dst state.RouterId, subtype protocol.Subtype, ttl uint8) (*protocol.Data, time.Duration, error) {
	seq := r.seq.Add(1)
	ch := make(chan *protocol.Data, 1)
	r.probes.Set(seq, ch, ttlcache.DefaultTTL)
	defer r.probes.Delete(seq)

	pkt := &protocol.Data{
		Subtype: subtype,
		Src:     r.Id,
		Dst:     dst,
		TTL:     ttl,
		Seq:     seq,
		Sent:    time.Now().UnixNano(),
	}
	if err := r.Forward(pkt); err != nil {
		return nil, 0, err
	}

	timer := time.NewTimer(r.ProbeTimeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, time.Since(time.Unix(0, reply.Sent)), nil
	case <-timer.C:
		return nil, 0, ErrTimeout
	case <-ctx.Done():
		return nil, 0, context.Cause(ctx)
	}
}

// Ping sends an echo request to dst and waits for the echo reply
func (r *Router) Ping(ctx context.Context, dst state.RouterId) (PingResult, error) {
	reply, rtt, err := r.probe(ctx, dst, protocol.EchoRequest, r.DefaultTTL)
	if err != nil {
		return PingResult{}, err
	}
	return PingResult{
		Seq:  reply.Seq,
		From: reply.Src,
		RTT:  rtt,
	}, nil
}

// Traceroute probes the path to dst with increasing TTLs, until dst answers or maxHops probes were
// sent. onHop, if not nil, is called as soon as each hop is known.
func (r *Router) Traceroute(ctx context.Context, dst state.RouterId, maxHops int, onHop func(Hop)) ([]Hop, error) {
	var hops []Hop
	for ttl := 1; ttl <= maxHops && ttl <= 255; ttl++ {
		hop := Hop{TTL: uint8(ttl)}
		reply, rtt, err := r.probe(ctx, dst, protocol.TraceRequest, uint8(ttl))
		if errors.Is(err, ErrTimeout) {
			hop.Err = err
		} else if err != nil {
			return hops, err
		} else {
			hop.From = reply.Src
			hop.RTT = rtt
			hop.Arrived = reply.Subtype == protocol.TraceArrived
		}
		hops = append(hops, hop)
		if onHop != nil {
			onHop(hop)
		}
		if hop.Arrived {
			break
		}
	}
	return hops, nil
}

// deliver handles a data packet addressed to us
func (r *Router) deliver(p *protocol.Data) {
	switch p.Subtype {
	case protocol.EchoRequest:
		r.reply(p, protocol.EchoReply)
	case protocol.TraceRequest:
		r.reply(p, protocol.TraceArrived)
	case protocol.EchoReply, protocol.TraceTimeExceeded, protocol.TraceArrived:
		r.completeProbe(p)
	default:
		r.Env.Log.Info("received data", "from", p.Src, "subtype", p.Subtype, "len", len(p.Payload))
	}
}

// ttlExceeded handles a transit packet whose TTL ran out here. Only trace requests are answered.
func (r *Router) ttlExceeded(p *protocol.Data) {
	if p.Subtype == protocol.TraceRequest {
		r.reply(p, protocol.TraceTimeExceeded)
	}
}

func (r *Router) reply(req *protocol.Data, subtype protocol.Subtype) {
	resp := &protocol.Data{
		Subtype: subtype,
		Src:     r.Id,
		Dst:     req.Src,
		TTL:     r.DefaultTTL,
		Seq:     req.Seq,
		Sent:    req.Sent,
	}
	if err := r.Forward(resp); err != nil {
		r.Log(NoRoute, "cannot reply", "pkt", resp, "err", err)
	}
}

func (r *Router) completeProbe(p *protocol.Data) {
	item := r.probes.Get(p.Seq)
	if item == nil {
		r.Log(UnsolicitedReply, "dropped reply", "pkt", p)
		return
	}
	select {
	case item.Value() <- p:
	default:
		r.Log(UnsolicitedReply, "duplicate reply", "pkt", p)
	}
}
