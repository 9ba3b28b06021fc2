package miclevel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type levelRecorder struct {
	mu     sync.Mutex
	levels []float64
}

func (r *levelRecorder) sink(level float64) {
	r.mu.Lock()
	r.levels = append(r.levels, level)
	r.mu.Unlock()
}

func (r *levelRecorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.levels...)
}

// newManualMonitor builds a monitor whose Tick and Frame are driven by the
// test instead of the scheduler.
func newManualMonitor(t *testing.T) (*Monitor, *fakeOpener, *fakeClock, *levelRecorder) {
	t.Helper()
	o := newFakeOpener()
	clock := &fakeClock{now: time.Unix(5000, 0)}
	rec := &levelRecorder{}
	m := NewMonitor(MonitorConfig{
		UpdateInterval:    time.Hour,
		AnimationDuration: 100 * time.Millisecond,
		FrameInterval:     time.Hour,
	}, newTestTester(o), rec.sink, zap.NewNop().Sugar())
	m.now = clock.Now
	t.Cleanup(m.Stop)
	return m, o, clock, rec
}

func TestMonitorAnimatesTowardDrainedLevel(t *testing.T) {
	m, o, clock, rec := newManualMonitor(t)
	if err := m.Start(Device{ID: "mic"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	o.push("mic", 0.8)
	m.Tick()
	for i := 0; i < 4; i++ {
		clock.Advance(25 * time.Millisecond)
		m.Frame()
	}

	levels := rec.snapshot()
	if len(levels) != 4 {
		t.Fatalf("Expected 4 published frames, got %d", len(levels))
	}
	for i := 1; i < len(levels); i++ {
		if levels[i] < levels[i-1] {
			t.Errorf("Rising animation went down at frame %d: %v", i, levels)
		}
	}
	if got := m.Level(); got != 0.8 {
		t.Errorf("Expected animation to settle at 0.8, got %v", got)
	}
	if _, running := m.Animation(); running {
		t.Error("Animation should be finished")
	}

	clock.Advance(25 * time.Millisecond)
	m.Frame()
	if n := len(rec.snapshot()); n != 4 {
		t.Errorf("Idle frame should not publish, got %d updates", n)
	}
}

func TestMonitorNeverOvershootsAcrossTicks(t *testing.T) {
	m, o, clock, rec := newManualMonitor(t)
	if err := m.Start(Device{ID: "mic"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	peaks := []float64{0.9, 0.1, 0.6, 0, 1, 0.35, 2.5}
	for _, p := range peaks {
		o.push("mic", p)
		m.Tick()
		anim, _ := m.Animation()
		lo, hi := min(anim.From, anim.To), max(anim.From, anim.To)

		before := len(rec.snapshot())
		for step := 0; step < 3; step++ {
			clock.Advance(40 * time.Millisecond)
			m.Frame()
		}
		for _, v := range rec.snapshot()[before:] {
			if v < lo || v > hi {
				t.Fatalf("Level %v outside [%v, %v]", v, lo, hi)
			}
			if v < 0 || v > 1 {
				t.Fatalf("Level %v outside display range", v)
			}
		}
	}
}

func TestMonitorRebindKeepsDisplayedLevel(t *testing.T) {
	m, o, clock, _ := newManualMonitor(t)
	if err := m.Start(Device{ID: "a"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	o.push("a", 1)
	m.Tick()
	clock.Advance(50 * time.Millisecond)
	m.Frame()
	mid := m.Level()
	if mid <= 0 || mid >= 1 {
		t.Fatalf("Expected a mid-animation level, got %v", mid)
	}

	if err := m.Rebind(Device{ID: "b"}); err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}
	if got := m.Level(); got != mid {
		t.Errorf("Rebind changed the displayed level from %v to %v", mid, got)
	}

	o.push("b", 0.2)
	m.Tick()
	anim, running := m.Animation()
	if !running {
		t.Fatal("Expected a running animation after tick")
	}
	if anim.From != mid {
		t.Errorf("Next animation should start at %v, started at %v", mid, anim.From)
	}
	if anim.To != 0.2 {
		t.Errorf("Next animation should target 0.2, got %v", anim.To)
	}
}

func TestMonitorTickAfterStopIsNoop(t *testing.T) {
	m, o, clock, rec := newManualMonitor(t)
	if err := m.Start(Device{ID: "mic"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	o.push("mic", 0.5)
	m.Tick()

	m.Stop()
	m.Tick()
	clock.Advance(time.Second)
	m.Frame()

	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("Expected no updates after Stop, got %d", n)
	}
	if n := o.source("mic").closeCount(); n != 1 {
		t.Errorf("Expected input released once, got %d", n)
	}
	if err := m.Start(Device{ID: "mic"}); !errors.Is(err, ErrMonitorStopped) {
		t.Errorf("Expected ErrMonitorStopped, got %v", err)
	}
	if err := m.Rebind(Device{ID: "x"}); !errors.Is(err, ErrMonitorStopped) {
		t.Errorf("Expected ErrMonitorStopped, got %v", err)
	}
}

func TestMonitorStopWithoutStart(t *testing.T) {
	m := NewMonitor(MonitorConfig{}, newTestTester(newFakeOpener()), nil, zap.NewNop().Sugar())
	m.Stop()
	m.Stop()
	m.Tick()
	m.Frame()
}

func TestMonitorStartTwiceRebinds(t *testing.T) {
	m, o, _, _ := newManualMonitor(t)
	if err := m.Start(Device{ID: "a"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	o.push("a", 0.6)
	if err := m.Start(Device{ID: "b"}); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	if got := m.tester.GetAndResetLevel(); got != 0 {
		t.Errorf("Restart should reset the accumulator, got %v", got)
	}
	if dev := m.Device(); dev.ID != "b" {
		t.Errorf("Expected device b, got %q", dev.ID)
	}
}

func TestMonitorDeadDeviceDrainsToZero(t *testing.T) {
	m, o, clock, rec := newManualMonitor(t)
	o.fail["unplugged"] = errors.New("no such device")
	if err := m.Start(Device{ID: "unplugged"}); err != nil {
		t.Fatalf("Start should not fail on a dead device: %v", err)
	}

	m.Tick()
	clock.Advance(time.Second)
	m.Frame()

	levels := rec.snapshot()
	if len(levels) != 1 || levels[0] != 0 {
		t.Errorf("Expected a single zero level, got %v", levels)
	}
}

func TestMonitorSchedulerPublishes(t *testing.T) {
	o := newFakeOpener()
	published := make(chan float64, 64)
	m := NewMonitor(MonitorConfig{
		UpdateInterval:    5 * time.Millisecond,
		AnimationDuration: 5 * time.Millisecond,
		FrameInterval:     time.Millisecond,
	}, newTestTester(o), func(level float64) {
		select {
		case published <- level:
		default:
		}
	}, zap.NewNop().Sugar())
	defer m.Stop()

	if err := m.Start(Device{ID: "mic"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		o.push("mic", 0.5)
		select {
		case v := <-published:
			if v > 0 {
				return
			}
		case <-deadline:
			t.Fatal("scheduler never published a non-zero level")
		}
	}
}
