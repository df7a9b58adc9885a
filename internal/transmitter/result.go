package transmitter

import (
	"errors"
	"fmt"

	"github.com/breeze-rmm/audlink/internal/audio"
	"github.com/breeze-rmm/audlink/internal/transport"
)

// Result is the code a push or a construction reports at the boundary. The
// numeric values are stable.
type Result int32

const (
	NoError Result = iota
	AudioPushed
	NoSourceCurrentlySelected
	OtherSourceSelected
	FailedToConnectToSocket
	FailedToParseInputSocket
	FailedToParseOutputAddress
	InvalidSourcePointer
	FailedToParseAudioSource
	InvalidTransmitterPointer
	// TransportSendFailed is only returned with strict send enabled.
	TransportSendFailed
)

var resultNames = [...]string{
	NoError:                    "NoError",
	AudioPushed:                "AudioPushed",
	NoSourceCurrentlySelected:  "NoSourceCurrentlySelected",
	OtherSourceSelected:        "OtherSourceSelected",
	FailedToConnectToSocket:    "FailedToConnectToSocket",
	FailedToParseInputSocket:   "FailedToParseInputSocket",
	FailedToParseOutputAddress: "FailedToParseOutputAddress",
	InvalidSourcePointer:       "InvalidSourcePointer",
	FailedToParseAudioSource:   "FailedToParseAudioSource",
	InvalidTransmitterPointer:  "InvalidTransmitterPointer",
	TransportSendFailed:        "TransportSendFailed",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("Result(%d)", int32(r))
}

// Error carries a boundary Result together with its cause.
type Error struct {
	Result Result
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Result.String()
	}
	return e.Result.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrClosed      = errors.New("transmitter: closed")
	ErrNoSelection = errors.New("transmitter: no source selected")
)

// ResultOf maps an error from New, Configure or Close to its Result. A nil
// error is NoError; an error without a Result is FailedToConnectToSocket.
func ResultOf(err error) Result {
	if err == nil {
		return NoError
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Result
	}
	return FailedToConnectToSocket
}

// classify turns a construction failure into an *Error.
func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	r := FailedToConnectToSocket
	switch {
	case errors.Is(err, transport.ErrParseInputSocket):
		r = FailedToParseInputSocket
	case errors.Is(err, transport.ErrParseOutputAddress):
		r = FailedToParseOutputAddress
	case errors.Is(err, transport.ErrConnect):
		r = FailedToConnectToSocket
	case isSourceError(err):
		r = FailedToParseAudioSource
	}
	return &Error{Result: r, Err: err}
}

func isSourceError(err error) bool {
	for _, target := range []error{
		audio.ErrEmptyName,
		audio.ErrNameTooLong,
		audio.ErrMalformedName,
		audio.ErrInvalidChannelCount,
		audio.ErrDuplicateSource,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
