package packet

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEmpty is returned when there is nothing to packetize.
	ErrEmpty = errors.New("packet: no frames to enqueue")
	// ErrEmit wraps the first error an Emitter reported during Enqueue.
	ErrEmit = errors.New("packet: emit failed")
)

// Emitter receives packets in sequence order. Emit is called with the
// sequencer lock held, so it must not block for long; it owns one reference
// to p and must Release it when done, error or not.
type Emitter interface {
	Emit(p *Packet) error
}

// Sequencer stamps packets with a per-instance sequence number, keeps the
// most recent ones in a Window and hands them to an Emitter in order.
//
// Stamping, windowing and emitting happen under one lock, so emit order is
// always sequence order even with concurrent callers.
type Sequencer struct {
	mu       sync.Mutex
	seq      uint64
	position uint64
	window   Window
	pool     *Pool
	capacity int
}

// NewSequencer creates a sequencer that puts at most samplesPerPacket
// samples in a packet (but always at least one whole frame), capped at
// MaxSamplesPerPacket. maxChannels
// sizes the pooled buffers so a single frame of the widest source fits.
func NewSequencer(samplesPerPacket, maxChannels int) *Sequencer {
	if samplesPerPacket < 1 {
		samplesPerPacket = DefaultSamplesPerPacket
	}
	samplesPerPacket = min(samplesPerPacket, MaxSamplesPerPacket)
	return &Sequencer{
		pool:     NewPool(max(samplesPerPacket, maxChannels)),
		capacity: samplesPerPacket,
	}
}

// FramesPerPacket returns how many frames of a channels-wide stream fit in
// one packet.
func (s *Sequencer) FramesPerPacket(channels int) int {
	if channels < 1 {
		return 0
	}
	return max(1, s.capacity/channels)
}

// Enqueue slices interleaved samples (frames*channels long) into packets on
// whole-frame boundaries and emits each one. It returns the first and last
// sequence numbers used. An emit failure does not stop the remaining slices;
// the first one is returned wrapped in ErrEmit.
func (s *Sequencer) Enqueue(source string, samples []float32, frames, channels int, out Emitter) (first, last uint64, err error) {
	if frames < 1 || channels < 1 {
		return 0, 0, ErrEmpty
	}
	if frames > len(samples)/channels {
		return 0, 0, fmt.Errorf("%w: %d samples for %d frames x %d channels", ErrLength, len(samples), frames, channels)
	}

	per := s.FramesPerPacket(channels)
	var emitErr error

	s.mu.Lock()
	defer s.mu.Unlock()

	for done := 0; done < frames; {
		n := min(per, frames-done)

		p := s.pool.Get(n * channels)
		p.Samples = append(p.Samples, samples[done*channels:(done+n)*channels]...)
		p.Source = source
		p.Frames = n
		p.Channels = channels
		p.Position = s.position

		// Wraps at 2^64; receivers compare sequence numbers modulo 2^64.
		s.seq++
		p.Seq = s.seq
		s.position += uint64(n)

		if done == 0 {
			first = p.Seq
		}
		last = p.Seq

		p.Retain() // one for the window, one for the emitter
		if old := s.window.Push(p); old != nil {
			old.Release()
		}
		if err := out.Emit(p); err != nil && emitErr == nil {
			emitErr = err
		}

		done += n
	}
	if emitErr != nil {
		return first, last, fmt.Errorf("%w: %w", ErrEmit, emitErr)
	}
	return first, last, nil
}

// Replay re-emits the windowed packets that belong to source, oldest first,
// and returns how many were emitted without error. The packets keep their original
// sequence numbers.
func (s *Sequencer) Replay(source string, out Emitter) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := 0; i < s.window.Len(); i++ {
		p := s.window.At(i)
		if p.Source != source {
			continue
		}
		p.Retain()
		if err := out.Emit(p); err == nil {
			n++
		}
	}
	return n
}

// LastSeq returns the most recently assigned sequence number (0 before the
// first packet).
func (s *Sequencer) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// WindowSeqs returns the sequence numbers currently held in the window,
// oldest first.
func (s *Sequencer) WindowSeqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint64, s.window.Len())
	for i := range out {
		out[i] = s.window.At(i).Seq
	}
	return out
}

// Pool exposes the packet pool, mainly for allocation accounting.
func (s *Sequencer) Pool() *Pool {
	return s.pool
}

// Reset releases the window. Sequence numbering continues where it was.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.Reset()
}
