package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/breeze-rmm/audlink/internal/health"
	"github.com/breeze-rmm/audlink/internal/logging"
	"github.com/breeze-rmm/audlink/internal/packet"
	"github.com/breeze-rmm/audlink/internal/ratelimit"
	"github.com/breeze-rmm/audlink/internal/stats"
	"github.com/breeze-rmm/audlink/internal/workerpool"
)

// Send modes.
const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

var ErrUnknownMode = errors.New("transport: unknown send mode")

// PacketWriter writes one packet as one datagram. *Adapter implements it.
type PacketWriter interface {
	Send(p *packet.Packet) (int, error)
}

// Sender is the packet.Emitter the sequencer hands packets to.
type Sender interface {
	packet.Emitter
	Close(ctx context.Context) error
}

// SenderOptions wires a sender to its writer and bookkeeping.
type SenderOptions struct {
	Mode      string
	QueueSize int
	Stats     *stats.Counters
	Health    *health.Monitor
	Logger    *slog.Logger
}

// NewSender builds the sender for opts.Mode ("" means async).
func NewSender(w PacketWriter, opts SenderOptions) (Sender, error) {
	switch opts.Mode {
	case "", ModeAsync:
		return NewAsyncSender(w, opts), nil
	case ModeSync:
		return NewSyncSender(w, opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
}

// SyncSender writes on the calling goroutine. Failures are counted, logged at
// most once a second, and returned to the caller.
type SyncSender struct {
	w        PacketWriter
	stats    *stats.Counters
	health   *health.Monitor
	log      *slog.Logger
	limiter  *ratelimit.Limiter
	degraded atomic.Bool
}

func NewSyncSender(w PacketWriter, opts SenderOptions) *SyncSender {
	s := &SyncSender{
		w:       w,
		stats:   opts.Stats,
		health:  opts.Health,
		log:     opts.Logger,
		limiter: ratelimit.New(1, time.Second),
	}
	if s.stats == nil {
		s.stats = stats.New()
	}
	if s.log == nil {
		s.log = log
	}
	return s
}

func (s *SyncSender) Emit(p *packet.Packet) error {
	defer p.Release()

	start := time.Now()
	n, err := s.w.Send(p)
	if err != nil {
		s.failed(p, err)
		return err
	}
	s.stats.RecordSend(n, time.Since(start))
	if s.degraded.Load() && s.degraded.Swap(false) && s.health != nil {
		s.health.Update(health.ComponentSender, health.Healthy, "")
	}
	return nil
}

func (s *SyncSender) failed(p *packet.Packet, err error) {
	s.stats.RecordSendError()
	if !s.degraded.Swap(true) && s.health != nil {
		s.health.Update(health.ComponentSender, health.Degraded, err.Error())
	}
	if s.limiter.Allow("send") {
		s.log.Warn("packet send failed",
			logging.KeySeq, p.Seq,
			logging.KeySource, p.Source,
			"sendErrors", s.stats.Snapshot().SendErrors,
			logging.KeyError, err,
		)
	}
}

func (s *SyncSender) Close(context.Context) error {
	return nil
}

// AsyncSender queues packets for a single background writer so the push
// path never waits on the socket. A full queue drops the packet.
type AsyncSender struct {
	core  *SyncSender
	pool  *workerpool.Pool[*packet.Packet]
	stats *stats.Counters
}

func NewAsyncSender(w PacketWriter, opts SenderOptions) *AsyncSender {
	core := NewSyncSender(w, opts)
	s := &AsyncSender{core: core, stats: core.stats}
	// One worker keeps datagrams in sequence order.
	s.pool = workerpool.New(1, opts.QueueSize, func(p *packet.Packet) {
		_ = core.Emit(p)
	})
	return s
}

// Emit queues p. A dropped packet is released and counted but not reported
// as an error.
func (s *AsyncSender) Emit(p *packet.Packet) error {
	if !s.pool.Submit(p) {
		p.Release()
		s.stats.RecordDrop()
	}
	return nil
}

// Pending returns the number of packets waiting for the writer.
func (s *AsyncSender) Pending() int {
	return s.pool.Pending()
}

// Close flushes queued packets, bounded by ctx.
func (s *AsyncSender) Close(ctx context.Context) error {
	s.pool.Shutdown(ctx)
	return ctx.Err()
}
