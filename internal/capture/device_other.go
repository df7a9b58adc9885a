//go:build !portaudio

package capture

// NewDevice reports ErrUnsupported; build with -tags portaudio for device
// capture.
func NewDevice(format Format) (Capturer, error) {
	if !format.valid() {
		return nil, ErrBadFormat
	}
	return nil, ErrUnsupported
}
