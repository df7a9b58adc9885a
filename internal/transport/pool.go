package transport

import "sync"

// datagram is a reusable encode buffer for one outgoing packet.
type datagram struct {
	b []byte
}

var datagramPool = sync.Pool{
	New: func() any {
		return &datagram{b: make([]byte, 0, 2048)}
	},
}

func getDatagram() *datagram {
	d := datagramPool.Get().(*datagram)
	d.b = d.b[:0]
	return d
}

func putDatagram(d *datagram) {
	if cap(d.b) > 64*1024 {
		return // don't pool oversized buffers
	}
	datagramPool.Put(d)
}
