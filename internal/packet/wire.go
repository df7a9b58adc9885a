package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
)

// Wire layout, version 1. All integers and samples are big-endian.
//
//	offset size  field
//	0      2     magic "AU"
//	2      1     version (1)
//	3      1     flags (reserved, 0)
//	4      8     sequence number
//	12     2     channel count
//	14     4     frame count
//	18     1     source name length n
//	19     n     source name (UTF-8)
//	19+n   4*s   samples, s = frames*channels, IEEE-754 float32
//	...    4     CRC-32 (IEEE) of every preceding byte
const (
	Version    = 1
	headerSize = 19
	crcSize    = 4
	maxName    = math.MaxUint8
)

var magic = [2]byte{'A', 'U'}

var (
	ErrShortPacket        = errors.New("packet: truncated datagram")
	ErrBadMagic           = errors.New("packet: bad magic")
	ErrUnsupportedVersion = errors.New("packet: unsupported version")
	ErrChecksum           = errors.New("packet: checksum mismatch")
	ErrLength             = errors.New("packet: length does not match header")
	ErrNameTooLong        = errors.New("packet: source name too long")
	ErrTooManyChannels    = errors.New("packet: channel count exceeds wire limit")
)

// EncodedSize returns the number of bytes AppendBinary will add for p.
func EncodedSize(p *Packet) int {
	return headerSize + len(p.Source) + 4*p.SampleCount() + crcSize
}

// AppendBinary appends the version 1 encoding of p to dst.
func AppendBinary(dst []byte, p *Packet) ([]byte, error) {
	if len(p.Source) > maxName {
		return dst, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(p.Source))
	}
	if p.Channels > math.MaxUint16 {
		return dst, fmt.Errorf("%w: %d", ErrTooManyChannels, p.Channels)
	}
	if len(p.Samples) != p.SampleCount() {
		return dst, fmt.Errorf("%w: %d samples for %d frames x %d channels", ErrLength, len(p.Samples), p.Frames, p.Channels)
	}

	start := len(dst)
	dst = append(dst, magic[0], magic[1], Version, 0)
	dst = binary.BigEndian.AppendUint64(dst, p.Seq)
	dst = binary.BigEndian.AppendUint16(dst, uint16(p.Channels))
	dst = binary.BigEndian.AppendUint32(dst, uint32(p.Frames))
	dst = append(dst, byte(len(p.Source)))
	dst = append(dst, p.Source...)
	for _, s := range p.Samples {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return binary.BigEndian.AppendUint32(dst, crc32.ChecksumIEEE(dst[start:])), nil
}

// Decode parses a version 1 datagram into a new packet that does not belong
// to any pool.
func Decode(b []byte) (*Packet, error) {
	if len(b) < headerSize+crcSize {
		return nil, ErrShortPacket
	}
	if b[0] != magic[0] || b[1] != magic[1] {
		return nil, ErrBadMagic
	}
	if b[2] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[2])
	}

	body := b[:len(b)-crcSize]
	if want := binary.BigEndian.Uint32(b[len(b)-crcSize:]); crc32.ChecksumIEEE(body) != want {
		return nil, ErrChecksum
	}

	p := &Packet{
		Seq:      binary.BigEndian.Uint64(b[4:12]),
		Channels: int(binary.BigEndian.Uint16(b[12:14])),
		Frames:   int(binary.BigEndian.Uint32(b[14:18])),
	}
	nameLen := int(b[18])
	rest := body[headerSize:]
	if len(rest) < nameLen {
		return nil, ErrShortPacket
	}
	p.Source = string(rest[:nameLen])
	rest = rest[nameLen:]

	n := p.SampleCount()
	if len(rest) != 4*n {
		return nil, fmt.Errorf("%w: %d payload bytes for %d samples", ErrLength, len(rest), n)
	}
	p.Samples = make([]float32, n)
	for i := range p.Samples {
		p.Samples[i] = math.Float32frombits(binary.BigEndian.Uint32(rest[4*i:]))
	}
	p.refs.Store(1)
	return p, nil
}
