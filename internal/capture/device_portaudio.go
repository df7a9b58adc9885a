//go:build portaudio

package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/breeze-rmm/audlink/internal/logging"
)

var log = logging.L("capture")

type device struct {
	format Format

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewDevice returns a capturer for the default input device.
func NewDevice(format Format) (Capturer, error) {
	if !format.valid() {
		return nil, ErrBadFormat
	}
	return &device{format: format}, nil
}

func (d *device) Start(cb Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return ErrStarted
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: portaudio init: %w", err)
	}
	channels := d.format.Channels
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(d.format.SampleRate), d.format.FramesPerBuffer,
		func(in []float32) {
			cb(in, len(in)/channels, channels)
		})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("capture: open default input: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("capture: start stream: %w", err)
	}
	d.stream = stream

	log.Info("capture started",
		"channels", channels,
		"sampleRate", d.format.SampleRate,
		"framesPerBuffer", d.format.FramesPerBuffer,
	)
	return nil
}

func (d *device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return
	}
	if err := d.stream.Stop(); err != nil {
		log.Warn("capture stop failed", logging.KeyError, err)
	}
	d.stream.Close()
	d.stream = nil
	portaudio.Terminate()
	log.Info("capture stopped")
}
