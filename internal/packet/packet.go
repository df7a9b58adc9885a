// Package packet turns extracted samples into sequenced, fixed-capacity
// audio packets and defines how they are framed on the wire.
package packet

import (
	"sync"
	"sync/atomic"
)

const (
	// NumBufferPackets is the number of most recent packets kept by a Window,
	// and the number of packets a Reorderer holds back for reordering.
	NumBufferPackets = 4

	// DefaultSamplesPerPacket keeps a float32 payload around 1KB, well under a
	// typical Ethernet MTU once headers are added.
	DefaultSamplesPerPacket = 256

	// MaxSamplesPerPacket keeps the largest float32 payload (32KiB) inside a
	// single UDP datagram.
	MaxSamplesPerPacket = 8192
)

// Packet is one sequenced slice of audio for a single source. Samples are
// interleaved, Frames*Channels long. A packet is never modified after the
// sequencer hands it out.
type Packet struct {
	Seq      uint64
	Source   string
	Frames   int
	Channels int
	Samples  []float32

	// Position is the number of frames emitted by the transmitter before this
	// packet. Only the RTP framing puts it on the wire.
	Position uint64

	refs atomic.Int32
	pool *Pool
}

// SampleCount returns Frames*Channels.
func (p *Packet) SampleCount() int {
	return p.Frames * p.Channels
}

// Retain adds a reference. Every Retain must be matched by a Release.
func (p *Packet) Retain() {
	p.refs.Add(1)
}

// Release drops a reference; the last release returns the packet to its pool.
// Packets that did not come from a pool are left to the garbage collector.
func (p *Packet) Release() {
	if p.refs.Add(-1) != 0 || p.pool == nil {
		return
	}
	p.pool.put(p)
}

// Pool recycles packets and their sample buffers so the push path does not
// churn the heap.
type Pool struct {
	pool      sync.Pool
	allocated atomic.Int64
}

// NewPool returns a pool whose fresh packets carry a sample buffer of
// capacity samples.
func NewPool(capacity int) *Pool {
	p := &Pool{}
	p.pool.New = func() any {
		p.allocated.Add(1)
		return &Packet{Samples: make([]float32, 0, capacity)}
	}
	return p
}

// Get returns a packet with one reference and room for at least n samples.
func (p *Pool) Get(n int) *Packet {
	pkt := p.pool.Get().(*Packet)
	if cap(pkt.Samples) < n {
		p.allocated.Add(1)
		pkt.Samples = make([]float32, 0, n)
	}
	pkt.Samples = pkt.Samples[:0]
	pkt.pool = p
	pkt.refs.Store(1)
	return pkt
}

// Allocated reports how many packet buffers the pool has had to create.
func (p *Pool) Allocated() int64 {
	return p.allocated.Load()
}

func (p *Pool) put(pkt *Packet) {
	pkt.Seq = 0
	pkt.Source = ""
	pkt.Frames = 0
	pkt.Channels = 0
	pkt.Position = 0
	pkt.Samples = pkt.Samples[:0]
	p.pool.Put(pkt)
}
