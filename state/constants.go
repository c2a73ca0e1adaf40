package state

import "time"

const (
	// INF is the default metric at which a destination is considered unreachable (RIPv2).
	INF = uint16(16)

	// SelfMetric is the metric of the route to ourselves.
	SelfMetric = uint16(0)

	// HopCost is the cost of traversing the link to a neighbour.
	HopCost = uint16(1)

	// DefaultBasePort is added to a router id to obtain the port it listens on.
	DefaultBasePort = uint16(5555)

	// MaxNeighbours bounds the neighbour table.
	MaxNeighbours = 16

	// MaxRoutes bounds both the routing table and the number of entries in a single distance vector.
	MaxRoutes = 64

	// RecvBufferSize is large enough for any datagram we produce.
	RecvBufferSize = 1500
)

var (
	BroadcastPeriod = time.Second * 10
	// ExpiryGrace is added to BroadcastPeriod to obtain the aging threshold,
	// so a single late advertisement does not flap a route.
	ExpiryGrace = time.Second * 5

	DefaultTTL     = uint8(32)
	TraceMaxHops   = 16
	ProbeTimeout   = time.Second * 2
	ProbeCacheTTL  = time.Second * 30
	ConsolePrompt  = "> "
	TraceQueueSize = 1024
)
