package miclevel

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type fakeSource struct {
	mu     sync.Mutex
	closed int
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOpener records every opened device and keeps its feed so tests can
// push samples as if the hardware produced them.
type fakeOpener struct {
	mu      sync.Mutex
	feeds   map[string]Feed
	sources map[string]*fakeSource
	fail    map[string]error
	opened  []string
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		feeds:   map[string]Feed{},
		sources: map[string]*fakeSource{},
		fail:    map[string]error{},
	}
}

func (o *fakeOpener) Open(dev Device, feed Feed) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, dev.ID)
	if err := o.fail[dev.ID]; err != nil {
		return nil, err
	}
	src := &fakeSource{}
	o.feeds[dev.ID] = feed
	o.sources[dev.ID] = src
	return src, nil
}

func (o *fakeOpener) push(id string, peak float64) {
	o.mu.Lock()
	feed := o.feeds[id]
	o.mu.Unlock()
	feed(peak)
}

func (o *fakeOpener) source(id string) *fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sources[id]
}

func newTestTester(o Opener) *Tester {
	return NewTester(o, zap.NewNop().Sugar())
}

func TestTesterKeepsPeakUntilDrained(t *testing.T) {
	o := newFakeOpener()
	tester := newTestTester(o)
	tester.SetDevice(Device{ID: "mic"})

	o.push("mic", 0.2)
	o.push("mic", 0.7)
	o.push("mic", 0.4)

	if got := tester.GetAndResetLevel(); got != 0.7 {
		t.Errorf("Expected peak 0.7, got %v", got)
	}
	if got := tester.GetAndResetLevel(); got != 0 {
		t.Errorf("Expected second drain to be 0, got %v", got)
	}
}

func TestTesterRebindDiscardsPreviousSource(t *testing.T) {
	o := newFakeOpener()
	tester := newTestTester(o)
	tester.SetDevice(Device{ID: "a"})
	o.push("a", 0.9)

	tester.SetDevice(Device{ID: "b"})
	if got := tester.GetAndResetLevel(); got != 0 {
		t.Errorf("Rebind should reset the accumulator, got %v", got)
	}

	o.push("a", 0.8)
	o.push("b", 0.3)
	if got := tester.GetAndResetLevel(); got != 0.3 {
		t.Errorf("Expected only samples from the new device, got %v", got)
	}
	if n := o.source("a").closeCount(); n != 1 {
		t.Errorf("Expected old source closed once, got %d", n)
	}
	if dev := tester.Device(); dev.ID != "b" {
		t.Errorf("Expected bound device b, got %q", dev.ID)
	}
}

func TestTesterOpenFailureMetersSilence(t *testing.T) {
	o := newFakeOpener()
	o.fail["gone"] = errors.New("device unplugged")
	tester := newTestTester(o)

	tester.SetDevice(Device{ID: "gone"})

	if got := tester.GetAndResetLevel(); got != 0 {
		t.Errorf("Expected silence, got %v", got)
	}
	if err := tester.Close(); err != nil {
		t.Errorf("Close should succeed on silent source: %v", err)
	}
}

func TestTesterCloseIsFinal(t *testing.T) {
	o := newFakeOpener()
	tester := newTestTester(o)
	tester.SetDevice(Device{ID: "mic"})

	if err := tester.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tester.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if n := o.source("mic").closeCount(); n != 1 {
		t.Errorf("Expected source closed exactly once, got %d", n)
	}

	o.push("mic", 1)
	if got := tester.GetAndResetLevel(); got != 0 {
		t.Errorf("Closed tester should not accumulate, got %v", got)
	}

	tester.SetDevice(Device{ID: "other"})
	if len(o.opened) != 1 {
		t.Errorf("SetDevice after Close should not open anything, opened %v", o.opened)
	}
}

func TestTesterOverlappingRebindsKeepSharedTap(t *testing.T) {
	tap := &fakeTap{}
	gate := make(chan struct{})
	var calls sync.Mutex
	first := true
	opener := OpenerFunc(func(_ Device, feed Feed) (Source, error) {
		src := openPeerSource(tap, feed)
		calls.Lock()
		block := first
		first = false
		calls.Unlock()
		if block {
			<-gate
		}
		return src, nil
	})
	tester := newTestTester(opener)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tester.SetDevice(PeerDevice("dlg"))
	}()
	go func() {
		defer wg.Done()
		tester.SetDevice(PeerDevice("dlg"))
	}()
	close(gate)
	wg.Wait()

	tap.deliver([]int16{16384})
	if got := tester.GetAndResetLevel(); got != 0.5 {
		t.Errorf("Expected the surviving binding to meter 0.5, got %v", got)
	}
}
