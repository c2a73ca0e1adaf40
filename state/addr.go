package state

import (
	"fmt"
	"net/netip"
)

// RouterId identifies a router on the overlay.
type RouterId uint16

func (id RouterId) String() string {
	return fmt.Sprintf("R%d", uint16(id))
}

// OverlayAddr is a router's logical identity plus the UDP locator it listens on.
type OverlayAddr struct {
	Id   RouterId
	Addr netip.AddrPort
}

func (a OverlayAddr) String() string {
	return fmt.Sprintf("%s@%s", a.Id, a.Addr)
}

// IsValid reports whether the address carries a usable locator.
func (a OverlayAddr) IsValid() bool {
	return a.Addr.IsValid() && a.Addr.Port() != 0
}

// Locator derives overlay addresses from router ids: every router listens on host:basePort+id.
type Locator struct {
	Host     netip.Addr
	BasePort uint16
}

// DefaultLocator places every router on the loopback interface.
func DefaultLocator() Locator {
	return Locator{
		Host:     netip.AddrFrom4([4]byte{127, 0, 0, 1}),
		BasePort: DefaultBasePort,
	}
}

// Port returns the well-known port of router id.
func (l Locator) Port(id RouterId) uint16 {
	return l.BasePort + uint16(id)
}

// Check fails if the port of router id does not fit in the port range.
func (l Locator) Check(id RouterId) error {
	if uint32(l.BasePort)+uint32(id) > 0xffff {
		return fmt.Errorf("base port %d + id %d exceeds the port range", l.BasePort, uint16(id))
	}
	return nil
}

// Resolve returns the overlay address of router id.
func (l Locator) Resolve(id RouterId) OverlayAddr {
	return OverlayAddr{
		Id:   id,
		Addr: netip.AddrPortFrom(l.Host, l.Port(id)),
	}
}
