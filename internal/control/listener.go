package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/breeze-rmm/audlink/internal/logging"
	"github.com/breeze-rmm/audlink/internal/ratelimit"
)

var log = logging.L("control")

// Listener answers control datagrams arriving on the transmitter's input
// socket. Replies go back to the sender's address.
type Listener struct {
	conn    net.PacketConn
	handler Handler
	limiter *ratelimit.Limiter
	log     *slog.Logger
}

// ListenerOption customises a Listener.
type ListenerOption func(*Listener)

// WithRateLimit caps requests per remote address per window.
func WithRateLimit(maxRequests int, window time.Duration) ListenerOption {
	return func(l *Listener) {
		l.limiter = ratelimit.New(maxRequests, window)
	}
}

// WithLogger replaces the package logger.
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		l.log = logger
	}
}

func NewListener(conn net.PacketConn, h Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		conn:    conn,
		handler: h,
		limiter: ratelimit.New(50, time.Second),
		log:     log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Serve reads requests until ctx is cancelled or the socket is closed. It
// returns nil when the socket was closed and ctx.Err() on cancellation.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, maxMessageSize)
	for {
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.Warn("control read failed", logging.KeyError, err)
			continue
		}

		remote := addr.String()
		if !l.limiter.Allow(remote) {
			l.log.Debug("control request rate limited", logging.KeyRemote, remote, "trackedRemotes", l.limiter.Len())
			continue
		}

		reply := Dispatch(l.handler, buf[:n])
		l.log.Debug("control request", logging.KeyRemote, remote, "reply", reply.Type)
		if reply.Type == TypeError {
			l.log.Info("control request rejected", logging.KeyRemote, remote, logging.KeyError, reply.Error)
		}

		out, err := json.Marshal(reply)
		if err != nil {
			l.log.Error("failed to marshal control reply", logging.KeyError, err)
			continue
		}
		if _, err := l.conn.WriteTo(out, addr); err != nil {
			l.log.Warn("control reply failed", logging.KeyRemote, remote, logging.KeyError, err)
		}
	}
}
