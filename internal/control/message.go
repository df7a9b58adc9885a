package control

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/breeze-rmm/audlink/internal/audio"
	"github.com/breeze-rmm/audlink/internal/selection"
)

// Message types.
const (
	TypeListSources = "list_sources"
	TypeSources     = "sources"
	TypeSelect      = "select"
	TypeDeselect    = "deselect"
	TypeReplay      = "replay"
	TypeStats       = "stats"
	TypeAck         = "ack"
	TypeError       = "error"
)

// maxMessageSize bounds a single control datagram or frame.
const maxMessageSize = 64 * 1024

var (
	ErrMalformed   = errors.New("control: malformed request")
	ErrUnknownType = errors.New("control: unknown request type")
)

// Request is what a remote peer sends. ID is optional and echoed back.
type Request struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Source   string `json:"source,omitempty"`
	Channels int    `json:"channels,omitempty"`
}

// Reply answers one Request.
type Reply struct {
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type"`
	Sources  []audio.Source `json:"sources,omitempty"`
	Replayed int            `json:"replayed,omitempty"`
	Stats    any            `json:"stats,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Handler applies decoded control requests. The transmitter implements it.
type Handler interface {
	Select(sel selection.Selection) error
	Deselect()
	Sources() []audio.Source
	Replay() (int, error)
	Stats() any
}

// Dispatch decodes raw, applies it to h and builds the reply. It never
// fails; problems are reported in an error reply.
func Dispatch(h Handler, raw []byte) Reply {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorReply("", fmt.Errorf("%w: %w", ErrMalformed, err))
	}
	return Apply(h, req)
}

// Apply is Dispatch for an already decoded request.
func Apply(h Handler, req Request) Reply {
	switch req.Type {
	case TypeListSources:
		return Reply{ID: req.ID, Type: TypeSources, Sources: h.Sources()}
	case TypeSelect:
		if req.Source == "" {
			return errorReply(req.ID, fmt.Errorf("%w: select without source", ErrMalformed))
		}
		if err := h.Select(selection.Selection{Source: req.Source, Channels: req.Channels}); err != nil {
			return errorReply(req.ID, err)
		}
		return Reply{ID: req.ID, Type: TypeAck}
	case TypeDeselect:
		h.Deselect()
		return Reply{ID: req.ID, Type: TypeAck}
	case TypeReplay:
		n, err := h.Replay()
		if err != nil {
			return errorReply(req.ID, err)
		}
		return Reply{ID: req.ID, Type: TypeAck, Replayed: n}
	case TypeStats:
		return Reply{ID: req.ID, Type: TypeStats, Stats: h.Stats()}
	}
	return errorReply(req.ID, fmt.Errorf("%w: %q", ErrUnknownType, req.Type))
}

func errorReply(id string, err error) Reply {
	return Reply{ID: id, Type: TypeError, Error: err.Error()}
}
