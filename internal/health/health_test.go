package health

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/breeze-rmm/audlink/internal/logging"
)

func TestNewMonitorOverallReturnsUnknown(t *testing.T) {
	m := NewMonitor()
	if got := m.Overall(); got != Unknown {
		t.Fatalf("Overall() on empty monitor = %q, want %q", got, Unknown)
	}
}

func TestSummaryOnEmptyMonitor(t *testing.T) {
	m := NewMonitor()
	s := m.Summary()
	if s["status"] != "unknown" {
		t.Fatalf("Summary status = %v, want unknown", s["status"])
	}
	components, _ := s["components"].(map[string]string)
	if len(components) != 0 {
		t.Fatalf("Summary components = %v, want empty", components)
	}
}

func TestOverallReturnsWorstStatus(t *testing.T) {
	m := NewMonitor()
	m.Update(ComponentInput, Healthy, "")
	m.Update(ComponentOutput, Degraded, "send errors")
	m.Update(ComponentControl, Healthy, "")

	if got := m.Overall(); got != Degraded {
		t.Fatalf("Overall() = %q, want %q", got, Degraded)
	}
}

func TestOverallUnknownIsWorstStatus(t *testing.T) {
	m := NewMonitor()
	m.Update("a", Unhealthy, "")
	m.Update("b", Unknown, "")

	if got := m.Overall(); got != Unknown {
		t.Fatalf("Overall() = %q, want %q", got, Unknown)
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{Healthy, Degraded, Unhealthy, Unknown} {
		if !s.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", s)
		}
	}
	for _, s := range []Status{Status("garbage"), Status(""), Status("ok")} {
		if s.IsValid() {
			t.Errorf("IsValid(%q) = true, want false", s)
		}
	}
}

func TestUpdateCoercesInvalidStatus(t *testing.T) {
	m := NewMonitor()
	m.Update("test", Status("invalid"), "bad value")

	c, ok := m.Get("test")
	if !ok {
		t.Fatal("component not found after Update")
	}
	if c.Status != Unhealthy {
		t.Fatalf("Status = %q, want %q", c.Status, Unhealthy)
	}
}

func TestObserve(t *testing.T) {
	m := NewMonitor()
	m.Observe(ComponentSender, errors.New("connection refused"))
	c, _ := m.Get(ComponentSender)
	if c.Status != Degraded || c.Message != "connection refused" {
		t.Fatalf("after error: %+v", c)
	}

	m.Observe(ComponentSender, nil)
	c, _ = m.Get(ComponentSender)
	if c.Status != Healthy || c.Message != "" {
		t.Fatalf("after recovery: %+v", c)
	}
}

func TestAllSortedByName(t *testing.T) {
	m := NewMonitor()
	m.Update("c", Healthy, "")
	m.Update("a", Healthy, "")
	m.Update("b", Healthy, "")

	all := m.All()
	if len(all) != 3 || all[0].Name != "a" || all[1].Name != "b" || all[2].Name != "c" {
		t.Fatalf("All() = %+v", all)
	}
}

func TestSummaryAtomicity(t *testing.T) {
	m := NewMonitor()
	m.Update("comp1", Healthy, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Update("comp1", Degraded, "test")
			} else {
				m.Update("comp1", Healthy, "")
			}
		}(i)
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Summary()
			status, _ := s["status"].(string)
			components, _ := s["components"].(map[string]string)
			// With only one component, overall must match it.
			if status != components["comp1"] {
				t.Errorf("summary inconsistency: overall=%q comp1=%q", status, components["comp1"])
			}
		}()
	}

	wg.Wait()
}

func TestCloseTransitionIsNotAWarning(t *testing.T) {
	var buf bytes.Buffer
	logging.Init("text", "debug", &buf)
	defer logging.Init("text", "info", nil)

	m := NewMonitor()
	m.Update(ComponentInput, Healthy, "")
	m.Update(ComponentInput, Unknown, "closed")

	out := buf.String()
	if strings.Contains(out, "level=WARN") {
		t.Fatalf("close logged a warning: %s", out)
	}
	if !strings.Contains(out, "health check stopped") {
		t.Fatalf("missing stop transition in %s", out)
	}

	buf.Reset()
	m.Update(ComponentInput, Degraded, "socket error")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("degraded transition not warned: %s", buf.String())
	}
}
