// Package audlink is the embedding surface of the transmitter. Transmitters
// are addressed by opaque handles so callers never hold a pointer that can
// dangle after Destroy.
package audlink

import (
	"context"
	"sync"
	"time"

	"github.com/breeze-rmm/audlink/internal/audio"
	"github.com/breeze-rmm/audlink/internal/logging"
	"github.com/breeze-rmm/audlink/internal/selection"
	"github.com/breeze-rmm/audlink/internal/transmitter"
)

var log = logging.L("audlink")

// Source names an audio input and its channel count.
type Source = audio.Source

// Result is the outcome code of every call.
type Result = transmitter.Result

const (
	NoError                    = transmitter.NoError
	AudioPushed                = transmitter.AudioPushed
	NoSourceCurrentlySelected  = transmitter.NoSourceCurrentlySelected
	OtherSourceSelected        = transmitter.OtherSourceSelected
	FailedToConnectToSocket    = transmitter.FailedToConnectToSocket
	FailedToParseInputSocket   = transmitter.FailedToParseInputSocket
	FailedToParseOutputAddress = transmitter.FailedToParseOutputAddress
	InvalidSourcePointer       = transmitter.InvalidSourcePointer
	FailedToParseAudioSource   = transmitter.FailedToParseAudioSource
	InvalidTransmitterPointer  = transmitter.InvalidTransmitterPointer
	TransportSendFailed        = transmitter.TransportSendFailed
)

// Handle identifies a live transmitter. Zero is never a valid handle.
type Handle uint64

// Option adjusts a transmitter before it is created.
type Option func(*transmitter.Options)

func WithFraming(name string) Option {
	return func(o *transmitter.Options) { o.Framing = name }
}

func WithSendMode(mode string, strict bool) Option {
	return func(o *transmitter.Options) {
		o.SendMode = mode
		o.StrictSend = strict
	}
}

func WithPacketSamples(n int) Option {
	return func(o *transmitter.Options) { o.PacketSamples = n }
}

func WithControlWebSocket(url, token string) Option {
	return func(o *transmitter.Options) {
		o.ControlURL = url
		o.ControlToken = token
	}
}

// DestroyTimeout bounds how long Destroy waits for queued packets.
var DestroyTimeout = 2 * time.Second

type entry struct {
	tx       *transmitter.Transmitter
	inflight sync.WaitGroup
}

// Table owns a set of transmitters. The zero value is ready to use.
type Table struct {
	mu      sync.RWMutex
	last    Handle
	entries map[Handle]*entry
}

// Create opens a transmitter and returns its handle. A nil source list is
// InvalidSourcePointer; every other failure is the construction's Result and
// a zero handle.
func (t *Table) Create(input, output string, sources []Source, opts ...Option) (Handle, Result) {
	if sources == nil {
		return 0, InvalidSourcePointer
	}
	o := transmitter.Options{
		InputSocket:  input,
		OutputSocket: output,
		Sources:      sources,
	}
	for _, opt := range opts {
		opt(&o)
	}

	tx, err := transmitter.New(context.Background(), o)
	if err != nil {
		return 0, transmitter.ResultOf(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries == nil {
		t.entries = make(map[Handle]*entry)
	}
	t.last++
	h := t.last
	t.entries[h] = &entry{tx: tx}
	return h, NoError
}

// acquire pins the entry so Destroy waits for the caller to release it.
func (t *Table) acquire(h Handle) (*entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[h]
	if ok {
		e.inflight.Add(1)
	}
	return e, ok
}

// Push forwards one interleaved buffer. Unknown or destroyed handles report
// InvalidTransmitterPointer.
func (t *Table) Push(h Handle, source string, buf []float32, frames, channels int) Result {
	e, ok := t.acquire(h)
	if !ok {
		return InvalidTransmitterPointer
	}
	defer e.inflight.Done()
	return e.tx.Push(source, buf, frames, channels)
}

// Select chooses the source to forward, as a remote request would. channels
// of zero selects every registered channel.
func (t *Table) Select(h Handle, source string, channels int) Result {
	e, ok := t.acquire(h)
	if !ok {
		return InvalidTransmitterPointer
	}
	defer e.inflight.Done()
	if err := e.tx.Select(selection.Selection{Source: source, Channels: channels}); err != nil {
		return FailedToParseAudioSource
	}
	return NoError
}

func (t *Table) Deselect(h Handle) Result {
	e, ok := t.acquire(h)
	if !ok {
		return InvalidTransmitterPointer
	}
	defer e.inflight.Done()
	e.tx.Deselect()
	return NoError
}

// Destroy invalidates h, waits for pushes already running on it and closes
// the transmitter. Destroying twice reports InvalidTransmitterPointer.
func (t *Table) Destroy(h Handle) Result {
	t.mu.Lock()
	e, ok := t.entries[h]
	delete(t.entries, h)
	t.mu.Unlock()
	if !ok {
		return InvalidTransmitterPointer
	}

	e.inflight.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), DestroyTimeout)
	defer cancel()
	if err := e.tx.Close(ctx); err != nil {
		log.Warn("transmitter close incomplete", "handle", uint64(h), logging.KeyError, err)
	}
	return NoError
}

// Len reports the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

var defaultTable Table

func Create(input, output string, sources []Source, opts ...Option) (Handle, Result) {
	return defaultTable.Create(input, output, sources, opts...)
}

func Push(h Handle, source string, buf []float32, frames, channels int) Result {
	return defaultTable.Push(h, source, buf, frames, channels)
}

func Select(h Handle, source string, channels int) Result {
	return defaultTable.Select(h, source, channels)
}

func Deselect(h Handle) Result {
	return defaultTable.Deselect(h)
}

func Destroy(h Handle) Result {
	return defaultTable.Destroy(h)
}
