package protocol

import (
	"fmt"
	"math"

	"github.com/encodeous/dvr/state"
	"google.golang.org/protobuf/encoding/protowire"
)

// Datagram layout: one kind byte followed by a protobuf wire encoded body.
//
//	ctrl:  1 src, 2 count, 3 entry{1 dest, 2 metric} repeated
//	data:  1 subtype, 2 src, 3 dst, 4 ttl, 5 seq, 6 sent, 7 payload

const (
	ctrlSrc   protowire.Number = 1
	ctrlCount protowire.Number = 2
	ctrlEntry protowire.Number = 3

	entryDest   protowire.Number = 1
	entryMetric protowire.Number = 2

	dataSubtype protowire.Number = 1
	dataSrc     protowire.Number = 2
	dataDst     protowire.Number = 3
	dataTTL     protowire.Number = 4
	dataSeq     protowire.Number = 5
	dataSent    protowire.Number = 6
	dataPayload protowire.Number = 7
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func (c *Ctrl) Marshal() ([]byte, error) {
	if len(c.Entries) > state.MaxRoutes {
		return nil, ErrTooManyEntries
	}
	b := make([]byte, 0, 8+len(c.Entries)*8)
	b = append(b, byte(KindCtrl))
	b = appendVarint(b, ctrlSrc, uint64(c.Src))
	b = appendVarint(b, ctrlCount, uint64(len(c.Entries)))
	var entry []byte
	for _, e := range c.Entries {
		entry = entry[:0]
		entry = appendVarint(entry, entryDest, uint64(e.Dest))
		entry = appendVarint(entry, entryMetric, uint64(e.Metric))
		b = appendBytes(b, ctrlEntry, entry)
	}
	return b, nil
}

func (d *Data) Marshal() ([]byte, error) {
	b := make([]byte, 0, 32+len(d.Payload))
	b = append(b, byte(KindData))
	b = appendVarint(b, dataSubtype, uint64(d.Subtype))
	b = appendVarint(b, dataSrc, uint64(d.Src))
	b = appendVarint(b, dataDst, uint64(d.Dst))
	b = appendVarint(b, dataTTL, uint64(d.TTL))
	b = appendVarint(b, dataSeq, uint64(d.Seq))
	b = appendVarint(b, dataSent, uint64(d.Sent))
	if len(d.Payload) > 0 {
		b = appendBytes(b, dataPayload, d.Payload)
	}
	return b, nil
}

// walk calls fn for every varint and length-delimited field of b, skipping other wire types.
func walk(b []byte, fn func(num protowire.Number, v uint64, bytes []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			if err := fn(num, v, nil); err != nil {
				return err
			}
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			if err := fn(num, 0, v); err != nil {
				return err
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}

func bounded(num protowire.Number, v uint64, limit uint64) error {
	if v > limit {
		return fmt.Errorf("%w: field %d value %d out of range", ErrMalformed, num, v)
	}
	return nil
}

func unmarshalEntry(b []byte) (DVEntry, error) {
	var e DVEntry
	err := walk(b, func(num protowire.Number, v uint64, _ []byte) error {
		switch num {
		case entryDest:
			if err := bounded(num, v, math.MaxUint16); err != nil {
				return err
			}
			e.Dest = state.RouterId(v)
		case entryMetric:
			if err := bounded(num, v, math.MaxUint16); err != nil {
				return err
			}
			e.Metric = uint16(v)
		}
		return nil
	})
	return e, err
}

func unmarshalCtrl(b []byte) (*Ctrl, error) {
	c := &Ctrl{}
	count := -1
	err := walk(b, func(num protowire.Number, v uint64, bytes []byte) error {
		switch num {
		case ctrlSrc:
			if err := bounded(num, v, math.MaxUint16); err != nil {
				return err
			}
			c.Src = state.RouterId(v)
		case ctrlCount:
			if err := bounded(num, v, state.MaxRoutes); err != nil {
				return ErrTooManyEntries
			}
			count = int(v)
		case ctrlEntry:
			if len(c.Entries) == state.MaxRoutes {
				return ErrTooManyEntries
			}
			e, err := unmarshalEntry(bytes)
			if err != nil {
				return err
			}
			c.Entries = append(c.Entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if count != len(c.Entries) {
		return nil, fmt.Errorf("%w: count %d does not match %d entries", ErrMalformed, count, len(c.Entries))
	}
	return c, nil
}

func unmarshalData(b []byte) (*Data, error) {
	d := &Data{}
	err := walk(b, func(num protowire.Number, v uint64, bytes []byte) error {
		var err error
		switch num {
		case dataSubtype:
			if err = bounded(num, v, math.MaxUint8); err == nil {
				d.Subtype = Subtype(v)
			}
		case dataSrc:
			if err = bounded(num, v, math.MaxUint16); err == nil {
				d.Src = state.RouterId(v)
			}
		case dataDst:
			if err = bounded(num, v, math.MaxUint16); err == nil {
				d.Dst = state.RouterId(v)
			}
		case dataTTL:
			if err = bounded(num, v, math.MaxUint8); err == nil {
				d.TTL = uint8(v)
			}
		case dataSeq:
			if err = bounded(num, v, math.MaxUint32); err == nil {
				d.Seq = uint32(v)
			}
		case dataSent:
			d.Sent = int64(v)
		case dataPayload:
			d.Payload = append([]byte(nil), bytes...)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Unmarshal decodes a datagram into a *Ctrl or a *Data
func Unmarshal(b []byte) (Packet, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}
	switch Kind(b[0]) {
	case KindCtrl:
		return unmarshalCtrl(b[1:])
	case KindData:
		return unmarshalData(b[1:])
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, b[0])
}
