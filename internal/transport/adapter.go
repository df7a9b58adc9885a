package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/breeze-rmm/audlink/internal/health"
	"github.com/breeze-rmm/audlink/internal/logging"
	"github.com/breeze-rmm/audlink/internal/packet"
)

var log = logging.L("transport")

// Options describes the two endpoints and how the data socket is tuned.
type Options struct {
	// InputSocket is the local control endpoint, e.g. "0.0.0.0:9000".
	InputSocket string
	// OutputSocket is the remote data endpoint, e.g. "192.168.1.20:9001"
	// or a multicast group such as "239.0.0.3:9001".
	OutputSocket string

	Framing      packet.Framing
	MulticastTTL int
	DSCP         int
	SendBuffer   int
	WriteTimeout time.Duration

	Health *health.Monitor
	Logger *slog.Logger
}

// Adapter owns the control (input) and data (output) UDP sockets.
type Adapter struct {
	control      *net.UDPConn
	data         *net.UDPConn
	remote       *net.UDPAddr
	framing      packet.Framing
	writeTimeout time.Duration
	health       *health.Monitor
	log          *slog.Logger
	closed       atomic.Bool
}

// Socket constructors, replaceable in tests.
var (
	listenControl = func(ctx context.Context, addr *net.UDPAddr) (*net.UDPConn, error) {
		lc := net.ListenConfig{Control: reuseAddr}
		pc, err := lc.ListenPacket(ctx, "udp", addr.String())
		if err != nil {
			return nil, err
		}
		return pc.(*net.UDPConn), nil
	}

	dialData = func(ctx context.Context, addr *net.UDPAddr, sndbuf int) (*net.UDPConn, error) {
		d := net.Dialer{Control: sendBuffer(sndbuf)}
		c, err := d.DialContext(ctx, "udp", addr.String())
		if err != nil {
			return nil, err
		}
		return c.(*net.UDPConn), nil
	}
)

// Open parses both endpoints, binds the control socket and connects the data
// socket. Each stage fails with its own sentinel: ErrParseInputSocket,
// ErrParseOutputAddress or ErrConnect. Nothing stays open on failure.
func Open(ctx context.Context, opts Options) (*Adapter, error) {
	in, err := ParseEndpoint(opts.InputSocket)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrParseInputSocket, opts.InputSocket, err)
	}
	out, err := parseDestination(opts.OutputSocket)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrParseOutputAddress, opts.OutputSocket, err)
	}

	l := opts.Logger
	if l == nil {
		l = log
	}
	framing := opts.Framing
	if framing == nil {
		framing = packet.Native{}
	}

	ctrl, err := listenControl(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrConnect, in, err)
	}
	data, err := dialData(ctx, out, opts.SendBuffer)
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnect, out, err)
	}

	a := &Adapter{
		control:      ctrl,
		data:         data,
		remote:       out,
		framing:      framing,
		writeTimeout: opts.WriteTimeout,
		health:       opts.Health,
		log:          l,
	}

	if err := tuneData(data, out, opts.MulticastTTL, opts.DSCP); err != nil {
		// Still usable with default TTL/TOS.
		l.Warn("data socket options not applied", "remote", out.String(), logging.KeyError, err)
		a.report(health.ComponentOutput, health.Degraded, err.Error())
	} else {
		a.report(health.ComponentOutput, health.Healthy, "")
	}
	a.report(health.ComponentInput, health.Healthy, "")

	l.Info("transport open",
		"control", ctrl.LocalAddr().String(),
		"local", data.LocalAddr().String(),
		logging.KeyRemote, out.String(),
		"framing", framing.Name(),
	)
	return a, nil
}

func tuneData(conn *net.UDPConn, remote *net.UDPAddr, ttl, dscp int) error {
	var errs []error
	if remote.IP.To4() != nil {
		if dscp > 0 {
			if err := ipv4.NewConn(conn).SetTOS(dscp << 2); err != nil {
				errs = append(errs, fmt.Errorf("set TOS: %w", err))
			}
		}
		if remote.IP.IsMulticast() {
			pc := ipv4.NewPacketConn(conn)
			if ttl > 0 {
				if err := pc.SetMulticastTTL(ttl); err != nil {
					errs = append(errs, fmt.Errorf("set multicast TTL: %w", err))
				}
			}
			if err := pc.SetMulticastLoopback(true); err != nil {
				errs = append(errs, fmt.Errorf("set multicast loopback: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	if dscp > 0 {
		if err := ipv6.NewConn(conn).SetTrafficClass(dscp << 2); err != nil {
			errs = append(errs, fmt.Errorf("set traffic class: %w", err))
		}
	}
	if remote.IP.IsMulticast() && ttl > 0 {
		if err := ipv6.NewPacketConn(conn).SetMulticastHopLimit(ttl); err != nil {
			errs = append(errs, fmt.Errorf("set multicast hop limit: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *Adapter) report(component string, status health.Status, msg string) {
	if a.health != nil {
		a.health.Update(component, status, msg)
	}
}

// Send frames p and writes it to the data socket. It never retries; with a
// write timeout set, a blocked write fails once the deadline passes.
func (a *Adapter) Send(p *packet.Packet) (int, error) {
	if a.closed.Load() {
		return 0, ErrClosed
	}

	d := getDatagram()
	defer putDatagram(d)

	b, err := a.framing.Append(d.b, p)
	d.b = b
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if a.writeTimeout > 0 {
		if err := a.data.SetWriteDeadline(time.Now().Add(a.writeTimeout)); err != nil {
			return 0, fmt.Errorf("transport: set write deadline: %w", err)
		}
	}
	n, err := a.data.Write(b)
	if err != nil {
		return n, fmt.Errorf("transport: send seq %d: %w", p.Seq, err)
	}
	return n, nil
}

// ControlConn is the bound input socket that the control listener reads.
func (a *Adapter) ControlConn() *net.UDPConn {
	return a.control
}

// ControlAddr returns the bound control address (useful with port 0).
func (a *Adapter) ControlAddr() *net.UDPAddr {
	return a.control.LocalAddr().(*net.UDPAddr)
}

// RemoteAddr returns the data destination.
func (a *Adapter) RemoteAddr() *net.UDPAddr {
	return a.remote
}

// Framing returns the framing used on the data socket.
func (a *Adapter) Framing() packet.Framing {
	return a.framing
}

// Close closes both sockets. Subsequent calls return nil.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	err := errors.Join(a.control.Close(), a.data.Close())
	a.report(health.ComponentInput, health.Unknown, "closed")
	a.report(health.ComponentOutput, health.Unknown, "closed")
	a.log.Info("transport closed")
	return err
}
