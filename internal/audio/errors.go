package audio

import "errors"

var (
	ErrEmptyName            = errors.New("audio: empty source name")
	ErrNameTooLong          = errors.New("audio: source name too long")
	ErrMalformedName        = errors.New("audio: malformed source name")
	ErrInvalidChannelCount  = errors.New("audio: invalid channel count")
	ErrDuplicateSource      = errors.New("audio: duplicate source name")
	ErrUnknownSource        = errors.New("audio: unknown source")
	ErrChannelCountMismatch = errors.New("audio: channel count mismatch")
	ErrBufferTooShort       = errors.New("audio: interleaved buffer shorter than frames*channels")
	ErrInvalidChannelSubset = errors.New("audio: wanted channels out of range")
)
