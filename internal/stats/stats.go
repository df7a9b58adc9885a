package stats

import (
	"sync/atomic"
	"time"
)

// Counters tracks what a transmitter did with the audio it was handed.
// All methods are safe for concurrent use and never allocate, so they can
// sit on the push path.
type Counters struct {
	pushes          atomic.Uint64
	noSelection     atomic.Uint64
	otherSelection  atomic.Uint64
	invalid         atomic.Uint64
	framesAccepted  atomic.Uint64
	packetsBuilt    atomic.Uint64
	packetsSent     atomic.Uint64
	packetsDropped  atomic.Uint64
	packetsReplayed atomic.Uint64
	sendErrors      atomic.Uint64
	bytesSent       atomic.Uint64
	lastSendNanos   atomic.Int64
	startTime       time.Time
}

func New() *Counters {
	return &Counters{startTime: time.Now()}
}

func (c *Counters) RecordPush(frames int) {
	c.pushes.Add(1)
	c.framesAccepted.Add(uint64(frames))
}

func (c *Counters) RecordNoSelection() { c.noSelection.Add(1) }
func (c *Counters) RecordOtherSelection() { c.otherSelection.Add(1) }
func (c *Counters) RecordInvalid() { c.invalid.Add(1) }
func (c *Counters) RecordBuilt(n int) { c.packetsBuilt.Add(uint64(n)) }
func (c *Counters) RecordDrop() { c.packetsDropped.Add(1) }
func (c *Counters) RecordReplay(n int) { c.packetsReplayed.Add(uint64(n)) }
func (c *Counters) RecordSendError() { c.sendErrors.Add(1) }

func (c *Counters) RecordSend(size int, d time.Duration) {
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(size))
	c.lastSendNanos.Store(int64(d))
}

// Snapshot is a point-in-time copy of the counters for logging and the
// control stats reply.
type Snapshot struct {
	Pushes          uint64        `json:"pushes"`
	NoSelection     uint64        `json:"noSelection"`
	OtherSelection  uint64        `json:"otherSelection"`
	Invalid         uint64        `json:"invalid"`
	FramesAccepted  uint64        `json:"framesAccepted"`
	PacketsBuilt    uint64        `json:"packetsBuilt"`
	PacketsSent     uint64        `json:"packetsSent"`
	PacketsDropped  uint64        `json:"packetsDropped"`
	PacketsReplayed uint64        `json:"packetsReplayed"`
	SendErrors      uint64        `json:"sendErrors"`
	BytesSent       uint64        `json:"bytesSent"`
	LastSendMs      float64       `json:"lastSendMs"`
	BandwidthKBps   float64       `json:"bandwidthKBps"`
	Uptime          time.Duration `json:"uptime"`
}

func (c *Counters) Snapshot() Snapshot {
	uptime := time.Since(c.startTime)
	bytes := c.bytesSent.Load()
	bw := float64(0)
	if uptime.Seconds() > 0 {
		bw = float64(bytes) / uptime.Seconds() / 1024.0
	}

	return Snapshot{
		Pushes:          c.pushes.Load(),
		NoSelection:     c.noSelection.Load(),
		OtherSelection:  c.otherSelection.Load(),
		Invalid:         c.invalid.Load(),
		FramesAccepted:  c.framesAccepted.Load(),
		PacketsBuilt:    c.packetsBuilt.Load(),
		PacketsSent:     c.packetsSent.Load(),
		PacketsDropped:  c.packetsDropped.Load(),
		PacketsReplayed: c.packetsReplayed.Load(),
		SendErrors:      c.sendErrors.Load(),
		BytesSent:       bytes,
		LastSendMs:      float64(time.Duration(c.lastSendNanos.Load()).Microseconds()) / 1000.0,
		BandwidthKBps:   bw,
		Uptime:          uptime,
	}
}

// LogArgs flattens the snapshot into slog key/value pairs.
func (s Snapshot) LogArgs() []any {
	return []any{
		"pushes", s.Pushes,
		"noSelection", s.NoSelection,
		"otherSelection", s.OtherSelection,
		"invalid", s.Invalid,
		"packetsSent", s.PacketsSent,
		"packetsDropped", s.PacketsDropped,
		"sendErrors", s.SendErrors,
		"bandwidthKBps", s.BandwidthKBps,
	}
}
