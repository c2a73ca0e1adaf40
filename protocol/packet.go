package protocol

import (
	"errors"
	"fmt"

	"github.com/encodeous/dvr/state"
)

// Kind is the first byte of every datagram
type Kind uint8

const (
	KindData Kind = 1
	KindCtrl Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindCtrl:
		return "CTRL"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Subtype distinguishes the diagnostic data packets
type Subtype uint8

const (
	EchoRequest Subtype = iota + 1
	EchoReply
	TraceRequest
	TraceTimeExceeded
	TraceArrived
)

func (s Subtype) String() string {
	switch s {
	case EchoRequest:
		return "ECHO_REQUEST"
	case EchoReply:
		return "ECHO_REPLY"
	case TraceRequest:
		return "TR_REQUEST"
	case TraceTimeExceeded:
		return "TR_TIME_EXCEEDED"
	case TraceArrived:
		return "TR_ARRIVED"
	}
	return fmt.Sprintf("Subtype(%d)", uint8(s))
}

// IsReply reports whether the subtype answers a probe
func (s Subtype) IsReply() bool {
	return s == EchoReply || s == TraceTimeExceeded || s == TraceArrived
}

var (
	ErrMalformed      = errors.New("malformed packet")
	ErrUnknownKind    = errors.New("unknown packet kind")
	ErrTooManyEntries = fmt.Errorf("distance vector holds more than %d entries", state.MaxRoutes)
)

type Packet interface {
	Kind() Kind
	Marshal() ([]byte, error)
}

type DVEntry struct {
	Dest   state.RouterId
	Metric uint16
}

func (e DVEntry) String() string {
	return fmt.Sprintf("%s:%d", e.Dest, e.Metric)
}

// Ctrl carries a distance vector from Src to one of its neighbours
type Ctrl struct {
	Src     state.RouterId
	Entries []DVEntry
}

func (c *Ctrl) Kind() Kind {
	return KindCtrl
}

// Data is an application packet routed hop by hop toward Dst
type Data struct {
	Subtype Subtype
	Src     state.RouterId
	Dst     state.RouterId
	TTL     uint8
	Seq     uint32
	// Sent is the origination time of the probe in unix nanoseconds, echoed back in replies.
	Sent    int64
	Payload []byte
}

func (d *Data) Kind() Kind {
	return KindData
}

func (d *Data) String() string {
	return fmt.Sprintf("%s %s->%s ttl=%d seq=%d", d.Subtype, d.Src, d.Dst, d.TTL, d.Seq)
}
