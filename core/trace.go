package core

import (
	"github.com/dustin/go-broadcast"
	"github.com/encodeous/dvr/state"
)

// RouteEvent is published on the RouteTrace whenever a route is modified or aged out
type RouteEvent struct {
	state.Route
	Change state.RouteChange
}

type RouteTrace struct {
	broadcast.Broadcaster
}

func NewRouteTrace() *RouteTrace {
	return &RouteTrace{
		Broadcaster: broadcast.NewBroadcaster(state.TraceQueueSize),
	}
}

func (r *Router) publish(route state.Route, change state.RouteChange) {
	if change != state.RouteRefreshed {
		r.lastChange.Store(r.Table.Clock().UnixNano())
	}
	r.Trace.Submit(RouteEvent{
		Route:  route,
		Change: change,
	})
}
