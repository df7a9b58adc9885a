package packet

import "sort"

// SeqLess compares sequence numbers modulo 2^64, so ordering survives a
// wrap from MaxUint64 back to 0.
func SeqLess(a, b uint64) bool {
	return int64(a-b) < 0
}

// Reorderer is the receiving side of a stream: it puts packets back in
// sequence order and holds back the newest NumBufferPackets so late
// arrivals can still be slotted in.
type Reorderer struct {
	packets  []*Packet
	released uint64
	started  bool

	Late     uint64 // arrived after their slot was released
	Resets   uint64 // channel layout changes
	Dropped  uint64 // duplicates
	Restarts uint64 // sender restarted its numbering
}

// ResyncDistance is how far behind the last released sequence number a
// packet may be before it is taken as a restarted sender rather than a late
// arrival.
const ResyncDistance = 256

// Push inserts p in sequence order. A duplicate sequence number replaces the
// held packet. A change of channel count discards everything held, since the
// old and new layouts cannot be joined. A packet more than ResyncDistance
// behind the last release starts the stream over.
func (r *Reorderer) Push(p *Packet) {
	if len(r.packets) > 0 && r.packets[len(r.packets)-1].Channels != p.Channels {
		r.packets = r.packets[:0]
		r.started = false
		r.Resets++
	}
	if r.started && !SeqLess(r.released, p.Seq) {
		if r.released-p.Seq <= ResyncDistance {
			r.Late++
			return
		}
		r.packets = r.packets[:0]
		r.started = false
		r.Restarts++
	}

	i := sort.Search(len(r.packets), func(i int) bool {
		return !SeqLess(r.packets[i].Seq, p.Seq)
	})
	if i < len(r.packets) && r.packets[i].Seq == p.Seq {
		r.packets[i] = p
		r.Dropped++
		return
	}
	r.packets = append(r.packets, nil)
	copy(r.packets[i+1:], r.packets[i:])
	r.packets[i] = p
}

// Len returns the number of held packets.
func (r *Reorderer) Len() int {
	return len(r.packets)
}

// Channels returns the channel count of the held packets, 0 when empty.
func (r *Reorderer) Channels() int {
	if len(r.packets) == 0 {
		return 0
	}
	return r.packets[0].Channels
}

// AvailableFrames is the number of frames Extract would return.
func (r *Reorderer) AvailableFrames() int {
	n := 0
	for _, p := range r.packets[:r.releasable()] {
		n += p.Frames
	}
	return n
}

// Extract releases every packet except the newest NumBufferPackets.
func (r *Reorderer) Extract() []*Packet {
	return r.drain(r.releasable())
}

// Consume releases everything held, trading reordering for latency.
func (r *Reorderer) Consume() []*Packet {
	return r.drain(len(r.packets))
}

func (r *Reorderer) releasable() int {
	return max(0, len(r.packets)-NumBufferPackets)
}

func (r *Reorderer) drain(n int) []*Packet {
	if n == 0 {
		return nil
	}
	out := make([]*Packet, n)
	copy(out, r.packets[:n])
	r.packets = append(r.packets[:0], r.packets[n:]...)

	r.released = out[n-1].Seq
	r.started = true
	return out
}

// Interleave concatenates the samples of packets sharing one channel layout.
func Interleave(packets []*Packet) []float32 {
	total := 0
	for _, p := range packets {
		total += len(p.Samples)
	}
	out := make([]float32, 0, total)
	for _, p := range packets {
		out = append(out, p.Samples...)
	}
	return out
}
