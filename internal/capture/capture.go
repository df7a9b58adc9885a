// Package capture produces interleaved float32 audio for the transmitter.
package capture

import "errors"

var (
	ErrStarted     = errors.New("capture: already started")
	ErrUnsupported = errors.New("capture: device capture not built in (rebuild with -tags portaudio)")
	ErrBadFormat   = errors.New("capture: channels, sample rate and buffer size must be positive")
)

// Callback receives frames*channels interleaved samples. buf is reused after
// the callback returns.
type Callback func(buf []float32, frames, channels int)

// Capturer delivers audio buffers until stopped.
type Capturer interface {
	// Start begins capturing and calls cb from a capture goroutine.
	Start(cb Callback) error
	// Stop stops capturing and waits for the last callback to return.
	Stop()
}

// Format describes the buffers a Capturer delivers.
type Format struct {
	Channels        int
	SampleRate      int
	FramesPerBuffer int
}

func (f Format) valid() bool {
	return f.Channels > 0 && f.SampleRate > 0 && f.FramesPerBuffer > 0
}
