package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/audlink/internal/logging"
	"github.com/breeze-rmm/audlink/internal/packet"
)

var (
	listenAddr    string
	listenFraming string
	listenEvery   time.Duration
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive and check a transmitter's packets",
	Long: `Bind the output endpoint, decode incoming packets, reorder them with the
receive window and log what arrived, what was lost and what failed to decode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := listenAddr
		framingName := listenFraming
		if addr == "" || framingName == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.OutputSocket
			}
			if framingName == "" {
				framingName = cfg.Framing
			}
		}
		framing, err := packet.ParseFraming(framingName, 0)
		if err != nil {
			return err
		}

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return listen(ctx, addr, framing)
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenAddr, "addr", "", "address to receive on (default output_socket)")
	listenCmd.Flags().StringVar(&listenFraming, "framing", "", "native or rtp (default from config)")
	listenCmd.Flags().DurationVar(&listenEvery, "interval", 5*time.Second, "report interval")
}

type receiveStats struct {
	packets  uint64
	invalid  uint64
	frames   uint64
	lost     uint64
	lastSeq  uint64
	channels int
	source   string

	reorder packet.Reorderer
}

func (s *receiveStats) take(released []*packet.Packet) {
	for _, p := range released {
		if s.lastSeq != 0 && packet.SeqLess(s.lastSeq, p.Seq) {
			s.lost += p.Seq - s.lastSeq - 1
		}
		s.lastSeq = p.Seq
		s.frames += uint64(p.Frames)
		s.channels = p.Channels
		s.source = p.Source
	}
}

func listen(ctx context.Context, addr string, framing packet.Framing) error {
	log := logging.L("listen")

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("listen address %q: %w", addr, err)
	}
	var conn *net.UDPConn
	if udpAddr.IP != nil && udpAddr.IP.IsMulticast() {
		conn, err = net.ListenMulticastUDP("udp", nil, udpAddr)
	} else {
		conn, err = net.ListenUDP("udp", udpAddr)
	}
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer conn.Close()
	stopRead := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stopRead()

	log.Info("listening", "addr", conn.LocalAddr().String(), "framing", framing.Name())

	var (
		st   receiveStats
		buf  = make([]byte, 64*1024)
		next = time.Now().Add(listenEvery)
	)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				st.take(st.reorder.Consume())
				log.Info("receiver stopped", st.logArgs()...)
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		p, err := framing.Decode(buf[:n])
		if err != nil {
			st.invalid++
			log.Debug("dropping undecodable datagram", "size", n, logging.KeyError, err)
			continue
		}
		st.packets++
		st.reorder.Push(p)
		st.take(st.reorder.Extract())

		if now := time.Now(); !now.Before(next) {
			log.Info("receiver stats", st.logArgs()...)
			next = now.Add(listenEvery)
		}
	}
}

func (s *receiveStats) logArgs() []any {
	return []any{
		logging.KeySource, s.source,
		logging.KeySeq, s.lastSeq,
		"packets", s.packets,
		"invalid", s.invalid,
		"lost", s.lost,
		"frames", s.frames,
		"channels", s.channels,
		"late", s.reorder.Late,
		"duplicates", s.reorder.Dropped,
		"layoutResets", s.reorder.Resets,
		"restarts", s.reorder.Restarts,
	}
}
