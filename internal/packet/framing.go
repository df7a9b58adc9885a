package packet

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pion/rtp"
)

// Framing names accepted by ParseFraming.
const (
	FramingNative = "native"
	FramingRTP    = "rtp"
)

// DynamicPayloadType is the RTP payload type used for the audio packets.
const DynamicPayloadType = 96

var ErrUnknownFraming = errors.New("packet: unknown framing")

// Framing puts packets into datagrams and takes them back out.
type Framing interface {
	Name() string
	Append(dst []byte, p *Packet) ([]byte, error)
	Decode(b []byte) (*Packet, error)
}

// ParseFraming resolves a configured framing name. ssrc only matters for RTP.
func ParseFraming(name string, ssrc uint32) (Framing, error) {
	switch name {
	case "", FramingNative:
		return Native{}, nil
	case FramingRTP:
		return &RTP{SSRC: ssrc, PayloadType: DynamicPayloadType}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFraming, name)
}

// Native sends the bare version 1 encoding.
type Native struct{}

func (Native) Name() string { return FramingNative }

func (Native) Append(dst []byte, p *Packet) ([]byte, error) {
	return AppendBinary(dst, p)
}

func (Native) Decode(b []byte) (*Packet, error) {
	return Decode(b)
}

// RTP wraps the version 1 encoding in an RTP packet so standard tooling can
// follow the stream. The RTP sequence number is the low 16 bits of Seq and
// the timestamp is the packet's frame position.
type RTP struct {
	SSRC        uint32
	PayloadType uint8
}

func (*RTP) Name() string { return FramingRTP }

func (f *RTP) Append(dst []byte, p *Packet) ([]byte, error) {
	hdr := rtp.Header{
		Version:        2,
		PayloadType:    f.PayloadType,
		SequenceNumber: uint16(p.Seq),
		Timestamp:      uint32(p.Position),
		SSRC:           f.SSRC,
	}

	start := len(dst)
	size := hdr.MarshalSize()
	dst = slices.Grow(dst, size)[:start+size]
	if _, err := hdr.MarshalTo(dst[start:]); err != nil {
		return dst[:start], fmt.Errorf("packet: rtp header: %w", err)
	}
	return AppendBinary(dst, p)
}

func (f *RTP) Decode(b []byte) (*Packet, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("packet: rtp: %w", err)
	}
	p, err := Decode(pkt.Payload)
	if err != nil {
		return nil, err
	}
	p.Position = uint64(pkt.Timestamp)
	return p, nil
}
