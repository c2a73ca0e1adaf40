package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run drives the router until its context is cancelled or one of its loops fails. The socket is
// closed before Run returns. A router on static routes only receives and forwards: it neither
// advertises nor ages its table.
func (r *Router) Run() error {
	defer r.Close()
	go r.probes.Start()
	defer r.probes.Stop()

	g, ctx := errgroup.WithContext(r.Context)
	g.Go(func() error {
		// unblocks the receive loop
		<-ctx.Done()
		return r.Conn.Close()
	})
	g.Go(func() error {
		return r.ReceiveLoop(ctx)
	})
	if !r.Static() {
		g.Go(func() error {
			return r.BroadcastLoop(ctx)
		})
	}

	r.Env.Log.Info("router started", "self", r.Self(), "neighbours", r.Neighbours.Len(), "split_horizon", !r.NoSplitHorizon, "static", r.Static())
	err := g.Wait()
	if err != nil {
		r.Cancel(err)
	}
	r.Env.Log.Info("router stopped", "reason", context.Cause(r.Context))
	return err
}
