package packet

// Window is a fixed ring of the last NumBufferPackets packets, oldest first.
// It is not safe for concurrent use; the Sequencer guards it.
type Window struct {
	slots [NumBufferPackets]*Packet
	head  int // index of the oldest entry
	n     int
}

// Push appends p, taking over one reference. When the window is full the
// oldest packet is evicted and returned; the caller must Release it.
func (w *Window) Push(p *Packet) (evicted *Packet) {
	if w.n < len(w.slots) {
		w.slots[(w.head+w.n)%len(w.slots)] = p
		w.n++
		return nil
	}
	evicted = w.slots[w.head]
	w.slots[w.head] = p
	w.head = (w.head + 1) % len(w.slots)
	return evicted
}

// Len returns the number of packets held.
func (w *Window) Len() int {
	return w.n
}

// At returns the i-th oldest packet without taking a reference.
func (w *Window) At(i int) *Packet {
	if i < 0 || i >= w.n {
		return nil
	}
	return w.slots[(w.head+i)%len(w.slots)]
}

// Reset releases every held packet.
func (w *Window) Reset() {
	for i := 0; i < w.n; i++ {
		idx := (w.head + i) % len(w.slots)
		w.slots[idx].Release()
		w.slots[idx] = nil
	}
	w.head, w.n = 0, 0
}
