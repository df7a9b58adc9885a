// Package transmitter forwards the audio of the remotely selected source.
//
// Pushes arrive from audio callbacks on any number of goroutines. A push for
// a source nobody selected returns right away without allocating, logging or
// touching the network. A push for the selected source is reduced to the
// wanted channels, cut into sequenced packets and handed to the sender.
package transmitter

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/breeze-rmm/audlink/internal/audio"
	"github.com/breeze-rmm/audlink/internal/control"
	"github.com/breeze-rmm/audlink/internal/health"
	"github.com/breeze-rmm/audlink/internal/logging"
	"github.com/breeze-rmm/audlink/internal/packet"
	"github.com/breeze-rmm/audlink/internal/selection"
	"github.com/breeze-rmm/audlink/internal/stats"
	"github.com/breeze-rmm/audlink/internal/transport"
)

// Options configures a Transmitter.
type Options struct {
	InputSocket  string
	OutputSocket string
	Sources      []audio.Source

	PacketSamples int
	SendMode      string
	QueueSize     int
	StrictSend    bool
	WriteTimeout  time.Duration
	Framing       string
	MulticastTTL  int
	DSCP          int
	SendBuffer    int

	// ControlURL, when set, also takes control requests over a WebSocket.
	ControlURL   string
	ControlToken string

	// Sender replaces the socket sender. The sockets are still opened.
	Sender transport.Sender
	Health *health.Monitor
}

// Transmitter is safe for concurrent use: Push from any number of
// goroutines, control requests from the listener. Configure must not race
// with Push.
type Transmitter struct {
	id        uuid.UUID
	log       *slog.Logger
	registry  *audio.Registry
	selection selection.State
	seq       *packet.Sequencer
	adapter   *transport.Adapter
	sender    transport.Sender
	strict    bool
	stats     *stats.Counters
	health    *health.Monitor
	scratch   sync.Pool

	cancel   context.CancelFunc
	serving  sync.WaitGroup
	wsClient *control.WSClient
	closed   atomic.Bool
}

var _ control.Handler = (*Transmitter)(nil)

// New validates the sources, opens both endpoints and starts answering
// control requests. Every failure is an *Error; nothing stays open.
func New(ctx context.Context, opts Options) (*Transmitter, error) {
	id := uuid.New()
	l := logging.WithTransmitter(logging.L("transmitter"), id.String())

	registry := audio.NewRegistry()
	if err := registry.Configure(opts.Sources); err != nil {
		return nil, &Error{Result: FailedToParseAudioSource, Err: err}
	}

	framing, err := packet.ParseFraming(opts.Framing, binary.BigEndian.Uint32(id[:4]))
	if err != nil {
		return nil, &Error{Result: FailedToConnectToSocket, Err: err}
	}

	mon := opts.Health
	if mon == nil {
		mon = health.NewMonitor()
	}

	adapter, err := transport.Open(ctx, transport.Options{
		InputSocket:  opts.InputSocket,
		OutputSocket: opts.OutputSocket,
		Framing:      framing,
		MulticastTTL: opts.MulticastTTL,
		DSCP:         opts.DSCP,
		SendBuffer:   opts.SendBuffer,
		WriteTimeout: opts.WriteTimeout,
		Health:       mon,
		Logger:       l,
	})
	if err != nil {
		return nil, classify(err)
	}

	counters := stats.New()
	sender := opts.Sender
	if sender == nil {
		sender, err = transport.NewSender(adapter, transport.SenderOptions{
			Mode:      opts.SendMode,
			QueueSize: opts.QueueSize,
			Stats:     counters,
			Health:    mon,
			Logger:    l,
		})
		if err != nil {
			adapter.Close()
			return nil, &Error{Result: FailedToConnectToSocket, Err: err}
		}
	}

	t := &Transmitter{
		id:       id,
		log:      l,
		registry: registry,
		seq:      packet.NewSequencer(opts.PacketSamples, registry.Snapshot().MaxChannels()),
		adapter:  adapter,
		sender:   sender,
		strict:   opts.StrictSend,
		stats:    counters,
		health:   mon,
	}
	t.scratch.New = func() any {
		b := make([]float32, 0, 4096)
		return &b
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	listener := control.NewListener(adapter.ControlConn(), t, control.WithLogger(l))
	t.serving.Add(1)
	go func() {
		defer t.serving.Done()
		if err := listener.Serve(serveCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.Warn("control listener stopped", logging.KeyError, err)
		}
	}()

	if opts.ControlURL != "" {
		t.wsClient = control.NewWSClient(control.WSConfig{
			URL:           opts.ControlURL,
			TransmitterID: id.String(),
			Token:         opts.ControlToken,
			Health:        mon,
		}, t)
		t.serving.Add(1)
		go func() {
			defer t.serving.Done()
			t.wsClient.Run()
		}()
	}

	l.Info("transmitter ready",
		"sources", registry.Snapshot().Len(),
		"packetSamples", opts.PacketSamples,
		"sendMode", opts.SendMode,
		"strictSend", opts.StrictSend,
	)
	return t, nil
}

// Push forwards one interleaved buffer of frames*channels samples from the
// named source. See Result for the outcomes; a failed push leaves the
// registry, the selection and the packet window as they were.
func (t *Transmitter) Push(source string, buf []float32, frames, channels int) Result {
	if t.closed.Load() {
		return InvalidTransmitterPointer
	}
	if audio.ValidateName(source) != nil {
		t.stats.RecordInvalid()
		return InvalidSourcePointer
	}

	sel := t.selection.Current()
	if sel == nil {
		t.stats.RecordNoSelection()
		return NoSourceCurrentlySelected
	}
	if sel.Source != source {
		t.stats.RecordOtherSelection()
		return OtherSourceSelected
	}

	src, ok := t.registry.Lookup(source)
	if !ok || frames < 1 {
		t.stats.RecordInvalid()
		return FailedToParseAudioSource
	}

	scratch := t.scratch.Get().(*[]float32)
	defer t.scratch.Put(scratch)

	wanted := sel.Wanted(src)
	out, err := audio.ExtractSource((*scratch)[:0], src, buf, frames, channels, wanted)
	*scratch = out[:0]
	if err != nil {
		t.stats.RecordInvalid()
		return FailedToParseAudioSource
	}

	first, last, err := t.seq.Enqueue(source, out, frames, wanted, t.sender)
	if err != nil && !errors.Is(err, packet.ErrEmit) {
		t.stats.RecordInvalid()
		return FailedToParseAudioSource
	}
	t.stats.RecordPush(frames)
	t.stats.RecordBuilt(int(last - first + 1))

	if err != nil && t.strict {
		return TransportSendFailed
	}
	return AudioPushed
}

// Configure replaces the whole source set. It must not run concurrently
// with Push. On error the previous sources stay.
func (t *Transmitter) Configure(sources []audio.Source) error {
	if t.closed.Load() {
		return &Error{Result: InvalidTransmitterPointer, Err: ErrClosed}
	}
	if err := t.registry.Configure(sources); err != nil {
		return &Error{Result: FailedToParseAudioSource, Err: err}
	}
	t.log.Info("sources configured", "sources", t.registry.Snapshot().Len())
	return nil
}

// Select makes sel the active selection. Unknown sources are rejected and
// the previous selection stays.
func (t *Transmitter) Select(sel selection.Selection) error {
	if err := t.selection.Select(sel, t.registry.Snapshot()); err != nil {
		return err
	}
	t.log.Info("source selected", logging.KeySource, sel.Source, "channels", sel.Channels)
	return nil
}

// Deselect clears the selection.
func (t *Transmitter) Deselect() {
	if prev := t.selection.Clear(); prev != nil {
		t.log.Info("source deselected", logging.KeySource, prev.Source)
	}
}

// Selected returns the active selection or nil.
func (t *Transmitter) Selected() *selection.Selection {
	return t.selection.Current()
}

// Sources lists the configured sources.
func (t *Transmitter) Sources() []audio.Source {
	return t.registry.Snapshot().Sources()
}

// Replay resends the windowed packets of the selected source with their
// original sequence numbers.
func (t *Transmitter) Replay() (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	sel := t.selection.Current()
	if sel == nil {
		return 0, ErrNoSelection
	}
	n := t.seq.Replay(sel.Source, t.sender)
	t.stats.RecordReplay(n)
	return n, nil
}

// Status is the stats reply of the control protocol.
type Status struct {
	ID       string         `json:"id"`
	Selected string         `json:"selected,omitempty"`
	Channels int            `json:"channels,omitempty"`
	Sources  []audio.Source `json:"sources"`
	LastSeq  uint64         `json:"lastSeq"`
	Window   []uint64       `json:"window"`
	Counters stats.Snapshot `json:"counters"`
	Health   map[string]any `json:"health"`
}

// Status gathers the current state for reporting.
func (t *Transmitter) Status() Status {
	st := Status{
		ID:       t.id.String(),
		Sources:  t.Sources(),
		LastSeq:  t.seq.LastSeq(),
		Window:   t.seq.WindowSeqs(),
		Counters: t.stats.Snapshot(),
		Health:   t.health.Summary(),
	}
	if sel := t.selection.Current(); sel != nil {
		st.Selected = sel.Source
		st.Channels = sel.Channels
	}
	return st
}

// Stats implements control.Handler.
func (t *Transmitter) Stats() any {
	return t.Status()
}

// Counters returns a snapshot of the push and send counters.
func (t *Transmitter) Counters() stats.Snapshot {
	return t.stats.Snapshot()
}

func (t *Transmitter) ID() string {
	return t.id.String()
}

// ControlAddr is the bound control endpoint.
func (t *Transmitter) ControlAddr() *net.UDPAddr {
	return t.adapter.ControlAddr()
}

func (t *Transmitter) Health() *health.Monitor {
	return t.health
}

// Close stops the control paths, flushes the sender within ctx and closes
// the sockets. The caller must ensure no Push is still running. A second
// Close reports InvalidTransmitterPointer.
func (t *Transmitter) Close(ctx context.Context) error {
	if t.closed.Swap(true) {
		return &Error{Result: InvalidTransmitterPointer, Err: ErrClosed}
	}

	t.cancel()
	if t.wsClient != nil {
		t.wsClient.Stop()
	}

	var errs []error
	if err := t.sender.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sender: %w", err))
	}
	if err := t.adapter.Close(); err != nil {
		errs = append(errs, err)
	}
	t.serving.Wait()
	t.seq.Reset()

	snap := t.stats.Snapshot()
	t.log.Info("transmitter closed", snap.LogArgs()...)
	return errors.Join(errs...)
}
