package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/breeze-rmm/audlink/internal/packet"
)

func TestReceiveStatsCountsLoss(t *testing.T) {
	var st receiveStats
	st.take([]*packet.Packet{
		{Seq: 1, Frames: 10, Channels: 2, Source: "mic"},
		{Seq: 2, Frames: 10, Channels: 2, Source: "mic"},
		{Seq: 5, Frames: 10, Channels: 2, Source: "mic"},
	})
	if st.lost != 2 || st.frames != 30 || st.lastSeq != 5 || st.source != "mic" {
		t.Fatalf("stats = %+v", st)
	}
}

func TestResolveControlAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audlink.yaml")
	if err := os.WriteFile(path, []byte("input_socket: \"0.0.0.0:9100\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	oldCfg, oldAddr := cfgFile, controlAddr
	t.Cleanup(func() { cfgFile, controlAddr = oldCfg, oldAddr })

	cfgFile, controlAddr = path, ""
	got, err := resolveControlAddr()
	if err != nil {
		t.Fatalf("resolveControlAddr: %v", err)
	}
	if got != "127.0.0.1:9100" {
		t.Fatalf("addr = %q, want 127.0.0.1:9100", got)
	}

	controlAddr = "10.0.0.7:9000"
	if got, _ := resolveControlAddr(); got != "10.0.0.7:9000" {
		t.Fatalf("explicit addr = %q", got)
	}
}
