package audio

import "fmt"

// ExtractInto appends the first wanted channels of every frame of an
// interleaved buffer to dst and returns the extended slice. The output keeps
// frame-major (interleaved) order, which is the layout the wire format carries:
//
//	in  (3ch): L0 R0 C0 L1 R1 C1
//	out (2ch): L0 R0 L1 R1
//
// No state is shared, so it is safe to call concurrently.
func ExtractInto(dst, interleaved []float32, frames, channels, wanted int) ([]float32, error) {
	if channels < 1 {
		return dst, fmt.Errorf("%w: %d", ErrInvalidChannelCount, channels)
	}
	if wanted < 1 || wanted > channels {
		return dst, fmt.Errorf("%w: %d of %d", ErrInvalidChannelSubset, wanted, channels)
	}
	// Divide rather than multiply so a huge frame count cannot overflow.
	if frames < 0 || frames > len(interleaved)/channels {
		return dst, fmt.Errorf("%w: have %d samples, need %d frames x %d channels", ErrBufferTooShort, len(interleaved), frames, channels)
	}

	if wanted == channels {
		return append(dst, interleaved[:frames*channels]...), nil
	}

	for f := 0; f < frames; f++ {
		base := f * channels
		dst = append(dst, interleaved[base:base+wanted]...)
	}
	return dst, nil
}

// Extract is ExtractInto with a freshly allocated destination.
func Extract(interleaved []float32, frames, channels, wanted int) ([]float32, error) {
	if wanted < 1 {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidChannelSubset, wanted, channels)
	}
	return ExtractInto(make([]float32, 0, frames*wanted), interleaved, frames, channels, wanted)
}

// ExtractSource validates the caller-supplied channel count against the
// registered one before extracting.
func ExtractSource(dst []float32, src Source, interleaved []float32, frames, channels, wanted int) ([]float32, error) {
	if src.Channels != channels {
		return dst, fmt.Errorf("%w: %q registered with %d, pushed %d", ErrChannelCountMismatch, src.Name, src.Channels, channels)
	}
	if wanted == 0 {
		wanted = channels
	}
	return ExtractInto(dst, interleaved, frames, channels, wanted)
}
