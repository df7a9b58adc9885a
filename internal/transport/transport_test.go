package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/breeze-rmm/audlink/internal/health"
	"github.com/breeze-rmm/audlink/internal/packet"
	"github.com/breeze-rmm/audlink/internal/stats"
)

// freePort returns a UDP port on 127.0.0.1 that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := c.LocalAddr().(*net.UDPAddr).Port
	c.Close()
	return port
}

// assertBindable fails the test if something still holds port.
func assertBindable(t *testing.T, port int) {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("port %d still bound after failed Open: %v", port, err)
	}
	c.Close()
}

func receiver(t *testing.T) *net.UDPConn {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readPacket(t *testing.T, c *net.UDPConn, f packet.Framing) *packet.Packet {
	t.Helper()
	buf := make([]byte, 65536)
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	p, err := f.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p
}

func testPacket(seq uint64) *packet.Packet {
	return &packet.Packet{
		Seq:      seq,
		Source:   "mic1",
		Frames:   2,
		Channels: 2,
		Samples:  []float32{0.1, -0.1, 0.2, -0.2},
		Position: 10,
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"127.0.0.1:9000", false},
		{"0.0.0.0:0", false},
		{"[::1]:9000", false},
		{"239.0.0.3:5004", false},
		{"", true},
		{"127.0.0.1", true},
		{"127.0.0.1:99999", true},
		{"not an address", true},
	}
	for _, tt := range tests {
		_, err := ParseEndpoint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEndpoint(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestParseDestinationRejectsUnusable(t *testing.T) {
	for _, in := range []string{"127.0.0.1:0", "0.0.0.0:9000", "[::]:9000"} {
		if _, err := parseDestination(in); err == nil {
			t.Errorf("parseDestination(%q) should fail", in)
		}
	}
}

func TestOpenFailureStagesAreDistinct(t *testing.T) {
	rx := receiver(t)
	good := rx.LocalAddr().String()

	tests := []struct {
		name   string
		input  string
		output string
		want   error
	}{
		{"bad input", "nonsense", good, ErrParseInputSocket},
		{"input missing port", "127.0.0.1", good, ErrParseInputSocket},
		{"bad output", "127.0.0.1:0", "nonsense", ErrParseOutputAddress},
		{"output port zero", "127.0.0.1:0", "127.0.0.1:0", ErrParseOutputAddress},
		{"both bad reports input", "nonsense", "nonsense", ErrParseInputSocket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Open(context.Background(), Options{InputSocket: tt.input, OutputSocket: tt.output})
			if a != nil {
				a.Close()
				t.Fatal("Open returned an adapter on failure")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			for _, other := range []error{ErrParseInputSocket, ErrParseOutputAddress, ErrConnect} {
				if other != tt.want && errors.Is(err, other) {
					t.Fatalf("err = %v also matches %v", err, other)
				}
			}
		})
	}
}

func TestOpenBadOutputLeavesInputUnbound(t *testing.T) {
	port := freePort(t)
	input := (&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}).String()

	_, err := Open(context.Background(), Options{InputSocket: input, OutputSocket: "no-port"})
	if !errors.Is(err, ErrParseOutputAddress) {
		t.Fatalf("err = %v, want ErrParseOutputAddress", err)
	}
	assertBindable(t, port)
}

func TestOpenDialFailureClosesControlSocket(t *testing.T) {
	orig := dialData
	t.Cleanup(func() { dialData = orig })
	dialData = func(context.Context, *net.UDPAddr, int) (*net.UDPConn, error) {
		return nil, errors.New("network unreachable")
	}

	port := freePort(t)
	input := (&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}).String()
	_, err := Open(context.Background(), Options{InputSocket: input, OutputSocket: "127.0.0.1:9"})
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
	assertBindable(t, port)
}

func TestOpenInputInUse(t *testing.T) {
	held, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer held.Close()

	_, err = Open(context.Background(), Options{
		InputSocket:  held.LocalAddr().String(),
		OutputSocket: "127.0.0.1:9",
	})
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
}

func TestSendLoopback(t *testing.T) {
	for _, framing := range []packet.Framing{packet.Native{}, &packet.RTP{SSRC: 7, PayloadType: packet.DynamicPayloadType}} {
		t.Run(framing.Name(), func(t *testing.T) {
			rx := receiver(t)
			mon := health.NewMonitor()
			a, err := Open(context.Background(), Options{
				InputSocket:  "127.0.0.1:0",
				OutputSocket: rx.LocalAddr().String(),
				Framing:      framing,
				WriteTimeout: time.Second,
				Health:       mon,
			})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer a.Close()

			if a.ControlAddr().Port == 0 {
				t.Fatal("control socket has no port")
			}
			if got := mon.Overall(); got != health.Healthy {
				t.Fatalf("health = %q, want healthy", got)
			}

			in := testPacket(42)
			n, err := a.Send(in)
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if n == 0 {
				t.Fatal("Send wrote 0 bytes")
			}

			got := readPacket(t, rx, framing)
			if got.Seq != 42 || got.Source != "mic1" || got.Frames != 2 || got.Channels != 2 {
				t.Fatalf("decoded %+v", got)
			}
			for i, v := range in.Samples {
				if got.Samples[i] != v {
					t.Fatalf("sample %d = %v, want %v", i, got.Samples[i], v)
				}
			}
		})
	}
}

func TestSendAfterClose(t *testing.T) {
	rx := receiver(t)
	a, err := Open(context.Background(), Options{InputSocket: "127.0.0.1:0", OutputSocket: rx.LocalAddr().String()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := a.Send(testPacket(1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close err = %v, want ErrClosed", err)
	}
}

func TestMulticastOptions(t *testing.T) {
	a, err := Open(context.Background(), Options{
		InputSocket:  "127.0.0.1:0",
		OutputSocket: "239.0.0.3:5004",
		MulticastTTL: 2,
		DSCP:         46,
	})
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer a.Close()
	if !a.RemoteAddr().IP.IsMulticast() {
		t.Fatal("remote should be multicast")
	}
}

// fakeWriter records sends and fails while err is set.
type fakeWriter struct {
	mu    sync.Mutex
	err   error
	seqs  []uint64
	block chan struct{}
}

func (w *fakeWriter) Send(p *packet.Packet) (int, error) {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	w.seqs = append(w.seqs, p.Seq)
	return 100, nil
}

func (w *fakeWriter) sent() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint64(nil), w.seqs...)
}

func pooled(t *testing.T, pool *packet.Pool, seq uint64) *packet.Packet {
	t.Helper()
	p := pool.Get(1)
	p.Samples = append(p.Samples, 0)
	p.Seq = seq
	p.Frames, p.Channels = 1, 1
	p.Source = "mic1"
	return p
}

func TestSyncSenderReportsFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("connection refused")}
	st := stats.New()
	mon := health.NewMonitor()
	s := NewSyncSender(w, SenderOptions{Stats: st, Health: mon})
	pool := packet.NewPool(1)

	if err := s.Emit(pooled(t, pool, 1)); err == nil {
		t.Fatal("Emit should report the write error")
	}
	if c, _ := mon.Get(health.ComponentSender); c.Status != health.Degraded {
		t.Fatalf("sender health = %q, want degraded", c.Status)
	}

	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()
	if err := s.Emit(pooled(t, pool, 2)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if c, _ := mon.Get(health.ComponentSender); c.Status != health.Healthy {
		t.Fatalf("sender health = %q, want healthy", c.Status)
	}

	snap := st.Snapshot()
	if snap.SendErrors != 1 || snap.PacketsSent != 1 || snap.BytesSent != 100 {
		t.Fatalf("stats = %+v", snap)
	}
}

func TestAsyncSenderKeepsOrder(t *testing.T) {
	w := &fakeWriter{}
	s := NewAsyncSender(w, SenderOptions{QueueSize: 64})
	pool := packet.NewPool(1)

	for i := uint64(1); i <= 50; i++ {
		if err := s.Emit(pooled(t, pool, i)); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := w.sent()
	if len(got) != 50 {
		t.Fatalf("sent %d packets, want 50", len(got))
	}
	for i, seq := range got {
		if seq != uint64(i+1) {
			t.Fatalf("packet %d has seq %d", i, seq)
		}
	}
}

func TestAsyncSenderDropsWhenFull(t *testing.T) {
	w := &fakeWriter{block: make(chan struct{})}
	st := stats.New()
	s := NewAsyncSender(w, SenderOptions{QueueSize: 2, Stats: st})
	pool := packet.NewPool(1)

	for i := uint64(1); i <= 10; i++ {
		if err := s.Emit(pooled(t, pool, i)); err != nil {
			t.Fatalf("Emit must not report drops: %v", err)
		}
	}
	close(w.block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close(ctx)

	// At most one in the writer plus two queued.
	snap := st.Snapshot()
	if snap.PacketsDropped < 7 {
		t.Fatalf("dropped %d packets, want at least 7", snap.PacketsDropped)
	}
	if snap.PacketsDropped+snap.PacketsSent != 10 {
		t.Fatalf("dropped %d + sent %d != 10", snap.PacketsDropped, snap.PacketsSent)
	}
}

func TestNewSenderModes(t *testing.T) {
	w := &fakeWriter{}
	if s, err := NewSender(w, SenderOptions{}); err != nil {
		t.Fatalf("default mode: %v", err)
	} else if _, ok := s.(*AsyncSender); !ok {
		t.Fatalf("default sender is %T, want *AsyncSender", s)
	} else {
		s.Close(context.Background())
	}
	if s, err := NewSender(w, SenderOptions{Mode: ModeSync}); err != nil {
		t.Fatalf("sync mode: %v", err)
	} else if _, ok := s.(*SyncSender); !ok {
		t.Fatalf("sync sender is %T", s)
	}
	if _, err := NewSender(w, SenderOptions{Mode: "carrier-pigeon"}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v, want ErrUnknownMode", err)
	}
}
