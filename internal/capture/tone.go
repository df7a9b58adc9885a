package capture

import (
	"math"
	"sync"
	"time"
)

// Tone is a sine generator paced in real time. Channel n plays
// Frequency*(n+1) so channel subsets are easy to tell apart on the receiver.
type Tone struct {
	format    Format
	frequency float64
	amplitude float32

	mu      sync.Mutex
	started bool
	phase   float64
	buf     []float32
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewTone returns a generator for format. A non-positive frequency defaults
// to 440 Hz.
func NewTone(format Format, frequency float64) (*Tone, error) {
	if !format.valid() {
		return nil, ErrBadFormat
	}
	if frequency <= 0 {
		frequency = 440
	}
	return &Tone{
		format:    format,
		frequency: frequency,
		amplitude: 0.5,
		buf:       make([]float32, format.FramesPerBuffer*format.Channels),
	}, nil
}

func (t *Tone) Format() Format {
	return t.format
}

// Fill writes the next buffer into buf and advances the phase. buf must hold
// FramesPerBuffer*Channels samples.
func (t *Tone) Fill(buf []float32) {
	ch := t.format.Channels
	step := 2 * math.Pi * t.frequency / float64(t.format.SampleRate)
	for f := 0; f < t.format.FramesPerBuffer; f++ {
		p := t.phase + float64(f)*step
		for c := 0; c < ch; c++ {
			buf[f*ch+c] = t.amplitude * float32(math.Sin(p*float64(c+1)))
		}
	}
	t.phase = math.Mod(t.phase+float64(t.format.FramesPerBuffer)*step, 2*math.Pi)
}

// Start calls cb once per buffer period until Stop.
func (t *Tone) Start(cb Callback) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrStarted
	}
	t.started = true
	t.done = make(chan struct{})

	period := time.Duration(t.format.FramesPerBuffer) * time.Second / time.Duration(t.format.SampleRate)
	done := t.done
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			t.Fill(t.buf)
			cb(t.buf, t.format.FramesPerBuffer, t.format.Channels)
		}
	}()
	return nil
}

// Stop is safe to call more than once. The tone can be started again.
func (t *Tone) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	close(t.done)
	t.mu.Unlock()
	t.wg.Wait()
}
