package core

import (
	"fmt"

	"github.com/encodeous/dvr/state"
)

// LoadStaticRoutes fills the table with a fixed set of routes. Next hops are resolved with the
// router's locator and do not have to be neighbours.
func (r *Router) LoadStaticRoutes(routes []state.StaticRoute) error {
	loc := r.Locator()
	for _, sr := range routes {
		if sr.Dest == r.Id {
			return fmt.Errorf("static route to %s: destination is this router", sr.Dest)
		}
		if sr.Metric >= r.Infinity {
			return fmt.Errorf("static route to %s: metric %d is not below infinity %d", sr.Dest, sr.Metric, r.Infinity)
		}
		if err := loc.Check(sr.Nh); err != nil {
			return fmt.Errorf("static route to %s via %s: %w", sr.Dest, sr.Nh, err)
		}
		route, change := r.Table.Offer(sr.Dest, loc.Resolve(sr.Nh), sr.Metric, r.Infinity)
		switch change {
		case state.RouteAdded:
		case state.RouteRejected:
			return fmt.Errorf("static route to %s: at most %d routes are supported", sr.Dest, state.MaxRoutes)
		default:
			return fmt.Errorf("static route to %s is defined twice", sr.Dest)
		}
		r.Log(RouteChanged, "STATIC", "dest", sr.Dest, "nh", sr.Nh, "metric", sr.Metric)
		r.publish(route, change)
	}
	return nil
}
