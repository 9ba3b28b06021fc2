package miclevel

import (
	"sync"

	"go.uber.org/zap"
)

// Source is a running capture bound to one device.
type Source interface {
	Close() error
}

// Feed receives the normalized peak amplitude of one captured buffer.
type Feed func(peak float64)

// Opener starts capturing from a device and delivers buffers to feed.
type Opener interface {
	Open(dev Device, feed Feed) (Source, error)
}

type OpenerFunc func(dev Device, feed Feed) (Source, error)

func (f OpenerFunc) Open(dev Device, feed Feed) (Source, error) {
	return f(dev, feed)
}

type silentSource struct{}

func (silentSource) Close() error { return nil }

// Tester accumulates the peak input level of the bound device between
// reads. Rebinding resets the accumulator and drops late buffers from the
// previous source.
type Tester struct {
	logger *zap.SugaredLogger
	opener Opener

	// bindMu serializes rebinds so an old source is closed before the
	// next one opens. Sources of the same device may share state.
	bindMu sync.Mutex

	mu     sync.Mutex
	level  float64
	gen    uint64
	src    Source
	device Device
	closed bool
}

func NewTester(opener Opener, logger *zap.SugaredLogger) *Tester {
	return &Tester{opener: opener, logger: logger}
}

// SetDevice binds the tester to dev. A device that fails to open is
// replaced by silence.
func (t *Tester) SetDevice(dev Device) {
	t.bindMu.Lock()
	defer t.bindMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen
	old, prev := t.src, t.device
	t.src = nil
	t.level = 0
	t.device = dev
	t.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			t.logger.Warnf("close input %q failed: %v", prev.ID, err)
		}
	}

	src, err := t.opener.Open(dev, func(peak float64) { t.accumulate(gen, peak) })
	if err != nil {
		t.logger.Warnf("open input device %q failed, metering silence: %v", dev.ID, err)
		src = silentSource{}
	}

	t.mu.Lock()
	if t.closed || t.gen != gen {
		t.mu.Unlock()
		_ = src.Close()
		return
	}
	t.src = src
	t.mu.Unlock()
	t.logger.Debugf("input bound to %q (%s)", dev.ID, dev.Name)
}

func (t *Tester) accumulate(gen uint64, peak float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || gen != t.gen {
		return
	}
	if peak > t.level {
		t.level = peak
	}
}

// GetAndResetLevel returns the peak seen since the previous call.
func (t *Tester) GetAndResetLevel() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	level := t.level
	t.level = 0
	return level
}

func (t *Tester) Device() Device {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.device
}

func (t *Tester) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.gen++
	src := t.src
	t.src = nil
	t.level = 0
	t.mu.Unlock()

	if src == nil {
		return nil
	}
	return src.Close()
}
