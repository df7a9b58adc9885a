package transport

import "errors"

var (
	ErrParseInputSocket   = errors.New("transport: failed to parse input socket")
	ErrParseOutputAddress = errors.New("transport: failed to parse output address")
	ErrConnect            = errors.New("transport: failed to connect to socket")
	ErrClosed             = errors.New("transport: adapter closed")
	ErrEncode             = errors.New("transport: failed to encode packet")
)
