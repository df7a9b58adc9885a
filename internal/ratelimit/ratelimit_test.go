package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	l := New(3, time.Second)

	for i := 0; i < 3; i++ {
		if !l.Allow("127.0.0.1:9000") {
			t.Errorf("event %d should be allowed", i+1)
		}
	}
	if l.Allow("127.0.0.1:9000") {
		t.Error("4th event should be rejected")
	}
	if !l.Allow("127.0.0.1:9001") {
		t.Error("different key should be allowed")
	}
}

func TestLimiterWindowExpiry(t *testing.T) {
	l := New(2, 100*time.Millisecond)

	l.Allow("send")
	l.Allow("send")
	if l.Allow("send") {
		t.Error("third event should be rejected")
	}

	time.Sleep(150 * time.Millisecond)

	if !l.Allow("send") {
		t.Error("should be allowed after window expires")
	}
}

func TestLimiterSweepsIdleKeys(t *testing.T) {
	l := New(1, 200*time.Millisecond)

	for i := 0; i < 10000; i++ {
		l.Allow(fmt.Sprintf("10.0.%d.%d:5000", i/256, i%256))
	}
	if l.Len() != 10000 {
		t.Fatalf("Len = %d, want 10000 while inside the window", l.Len())
	}

	time.Sleep(250 * time.Millisecond)
	l.Allow("127.0.0.1:9000")
	if l.Len() != 1 {
		t.Fatalf("Len = %d after the window expired, want 1", l.Len())
	}
}

func TestLimiterSweepKeepsActiveKeys(t *testing.T) {
	l := New(1, 50*time.Millisecond)

	l.Allow("old")
	time.Sleep(60 * time.Millisecond)
	l.Allow("fresh")
	if l.Allow("fresh") {
		t.Error("fresh key should still be limited after a sweep")
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want only the fresh key", l.Len())
	}
}
