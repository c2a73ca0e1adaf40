package state

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// RouterCfg represents the configuration of a single router process
type RouterCfg struct {
	Id                  RouterId      `yaml:"id"`
	Topology            string        `yaml:"topology,omitempty"`              // path to the topology file
	StaticRoutes        string        `yaml:"static_routes,omitempty"`         // if not empty, the table is loaded from this file and no distance vectors are exchanged
	Host                netip.Addr    `yaml:"host"`                            // host every router listens on, loopback by default
	BasePort            uint16        `yaml:"base_port,omitempty"`             // router i listens on base_port + i
	NoSplitHorizon      bool          `yaml:"no_split_horizon,omitempty"`      // advertise the full table to every neighbour
	AllowSourceMismatch bool          `yaml:"allow_source_mismatch,omitempty"` // accept control packets whose udp source is not the sender's locator
	BroadcastPeriod     time.Duration `yaml:"broadcast_period,omitempty"`
	ExpiryGrace         time.Duration `yaml:"expiry_grace,omitempty"` // added to broadcast_period to obtain the aging threshold
	Infinity            uint16        `yaml:"infinity,omitempty"`
	DefaultTTL          uint8         `yaml:"default_ttl,omitempty"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout,omitempty"`
	LogPath             string        `yaml:"log_path,omitempty"`   // if not empty, the router also logs to this file
	DebugAddr           string        `yaml:"debug_addr,omitempty"` // if not empty, serves /debug/metrics and /debug/vars
}

// ExpandRouterConfig fills in defaults for every unset field
func ExpandRouterConfig(cfg *RouterCfg) {
	if !cfg.Host.IsValid() {
		cfg.Host = DefaultLocator().Host
	}
	if cfg.BasePort == 0 {
		cfg.BasePort = DefaultBasePort
	}
	if cfg.BroadcastPeriod == 0 {
		cfg.BroadcastPeriod = BroadcastPeriod
	}
	if cfg.ExpiryGrace == 0 {
		cfg.ExpiryGrace = ExpiryGrace
	}
	if cfg.Infinity == 0 {
		cfg.Infinity = INF
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = ProbeTimeout
	}
}

func (cfg *RouterCfg) Locator() Locator {
	return Locator{
		Host:     cfg.Host,
		BasePort: cfg.BasePort,
	}
}

// Static reports whether the router forwards over a fixed table instead of running the protocol.
func (cfg *RouterCfg) Static() bool {
	return cfg.StaticRoutes != ""
}

func (cfg *RouterCfg) Self() OverlayAddr {
	return cfg.Locator().Resolve(cfg.Id)
}

// ExpiryThreshold is how long a route may go without a refresh before it is aged out.
func (cfg *RouterCfg) ExpiryThreshold() time.Duration {
	return cfg.BroadcastPeriod + cfg.ExpiryGrace
}

// Topology maps every router to the ids of its direct neighbours, in file order
type Topology map[RouterId][]RouterId

/*
ParseTopology reads the line-oriented topology format:

	# comment
	1 2 3   // router 1 is adjacent to routers 2 and 3
	2 1
	3 1

Blank lines are ignored.
*/
func ParseTopology(r io.Reader) (Topology, error) {
	topo := make(Topology)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		ids := make([]RouterId, 0, len(fields))
		for _, f := range fields {
			id, err := strconv.ParseUint(f, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid router id %q", lineNo, f)
			}
			ids = append(ids, RouterId(id))
		}
		rid, neighs := ids[0], ids[1:]
		if _, ok := topo[rid]; ok {
			return nil, fmt.Errorf("line %d: router %d is defined twice", lineNo, rid)
		}
		if slices.Contains(neighs, rid) {
			return nil, fmt.Errorf("line %d: router %d lists itself as a neighbour", lineNo, rid)
		}
		sorted := slices.Clone(neighs)
		slices.Sort(sorted)
		if len(slices.Compact(sorted)) != len(neighs) {
			return nil, fmt.Errorf("line %d: router %d lists a neighbour twice", lineNo, rid)
		}
		if len(neighs) > MaxNeighbours {
			return nil, fmt.Errorf("line %d: router %d has %d neighbours, at most %d are supported", lineNo, rid, len(neighs), MaxNeighbours)
		}
		topo[rid] = neighs
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return topo, nil
}

func ReadTopology(path string) (Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTopology(f)
}

// Neighbours builds the neighbour table of router id
func (t Topology) Neighbours(id RouterId, loc Locator) (*NeighbourTable, error) {
	neighs, ok := t[id]
	if !ok {
		return nil, fmt.Errorf("router %d is not defined in the topology", id)
	}
	addrs := make([]OverlayAddr, 0, len(neighs))
	for _, n := range neighs {
		if err := loc.Check(n); err != nil {
			return nil, fmt.Errorf("neighbour %s of %s: %w", n, id, err)
		}
		addrs = append(addrs, loc.Resolve(n))
	}
	return NewNeighbourTable(addrs...)
}

// Edges returns every adjacency once, as (lower id, higher id) pairs in sorted order
func (t Topology) Edges() []Pair[RouterId, RouterId] {
	edges := make([]Pair[RouterId, RouterId], 0)
	for _, a := range slices.Sorted(maps.Keys(t)) {
		for _, b := range t[a] {
			e := Pair[RouterId, RouterId]{V1: min(a, b), V2: max(a, b)}
			if !slices.Contains(edges, e) {
				edges = append(edges, e)
			}
		}
	}
	SortPairs(edges)
	return edges
}

// Asymmetric returns the adjacencies that are only declared by one side
func (t Topology) Asymmetric() []Pair[RouterId, RouterId] {
	out := make([]Pair[RouterId, RouterId], 0)
	for _, a := range slices.Sorted(maps.Keys(t)) {
		for _, b := range t[a] {
			if !slices.Contains(t[b], a) {
				out = append(out, Pair[RouterId, RouterId]{V1: a, V2: b})
			}
		}
	}
	return out
}
