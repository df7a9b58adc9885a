package capture

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewToneRejectsBadFormat(t *testing.T) {
	for _, f := range []Format{
		{Channels: 0, SampleRate: 48000, FramesPerBuffer: 64},
		{Channels: 2, SampleRate: 0, FramesPerBuffer: 64},
		{Channels: 2, SampleRate: 48000, FramesPerBuffer: 0},
	} {
		if _, err := NewTone(f, 440); !errors.Is(err, ErrBadFormat) {
			t.Fatalf("NewTone(%+v) err = %v, want ErrBadFormat", f, err)
		}
	}
}

func TestToneFillChannels(t *testing.T) {
	tone, err := NewTone(Format{Channels: 2, SampleRate: 8000, FramesPerBuffer: 16}, 1000)
	if err != nil {
		t.Fatalf("NewTone: %v", err)
	}
	buf := make([]float32, 32)
	tone.Fill(buf)

	step := 2 * math.Pi * 1000 / 8000
	for f := 0; f < 16; f++ {
		want0 := 0.5 * math.Sin(float64(f)*step)
		want1 := 0.5 * math.Sin(float64(f)*step*2)
		if math.Abs(float64(buf[f*2])-want0) > 1e-5 || math.Abs(float64(buf[f*2+1])-want1) > 1e-5 {
			t.Fatalf("frame %d = (%v, %v), want (%v, %v)", f, buf[f*2], buf[f*2+1], want0, want1)
		}
	}
}

func TestToneFillIsContinuous(t *testing.T) {
	tone, _ := NewTone(Format{Channels: 1, SampleRate: 8000, FramesPerBuffer: 10}, 100)
	a := make([]float32, 10)
	b := make([]float32, 10)
	tone.Fill(a)
	tone.Fill(b)

	step := 2 * math.Pi * 100 / 8000
	want := 0.5 * math.Sin(10*step)
	if math.Abs(float64(b[0])-want) > 1e-5 {
		t.Fatalf("second buffer starts at %v, want %v", b[0], want)
	}
}

func TestToneStartStop(t *testing.T) {
	tone, _ := NewTone(Format{Channels: 2, SampleRate: 48000, FramesPerBuffer: 48}, 0)

	var calls atomic.Int32
	err := tone.Start(func(buf []float32, frames, channels int) {
		if frames != 48 || channels != 2 || len(buf) != 96 {
			t.Errorf("callback got frames=%d channels=%d len=%d", frames, channels, len(buf))
		}
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tone.Start(func([]float32, int, int) {}); !errors.Is(err, ErrStarted) {
		t.Fatalf("second Start err = %v, want ErrStarted", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	tone.Stop()
	if calls.Load() < 3 {
		t.Fatalf("calls = %d, want at least 3", calls.Load())
	}

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Fatal("callback ran after Stop")
	}
	tone.Stop()
}
