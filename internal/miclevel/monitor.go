package miclevel

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrMonitorStopped = errors.New("level monitor stopped")

type MonitorConfig struct {
	// UpdateInterval is the sampling cadence: how often the tester is drained.
	UpdateInterval time.Duration
	// AnimationDuration is how long the meter takes to reach a new sample.
	AnimationDuration time.Duration
	// FrameInterval is the animation cadence.
	FrameInterval time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 100 * time.Millisecond
	}
	if c.AnimationDuration <= 0 {
		c.AnimationDuration = 100 * time.Millisecond
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = 16 * time.Millisecond
	}
	return c
}

// Sink receives every displayed level.
type Sink func(level float64)

// Monitor drives a Tester on a fixed cadence and animates the displayed
// level toward each drained sample. Ticks and frames run on one
// goroutine, so they never overlap.
type Monitor struct {
	cfg    MonitorConfig
	logger *zap.SugaredLogger
	tester *Tester
	sink   Sink
	now    func() time.Time

	alive atomic.Bool

	mu        sync.Mutex
	started   bool
	anim      Animation
	animating bool
	display   float64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMonitor(cfg MonitorConfig, tester *Tester, sink Sink, logger *zap.SugaredLogger) *Monitor {
	m := &Monitor{
		cfg:    cfg.withDefaults(),
		logger: logger,
		tester: tester,
		sink:   sink,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	m.alive.Store(true)
	return m
}

// Start binds dev and starts the scheduler. Calling Start again only
// rebinds; the running cadence is kept.
func (m *Monitor) Start(dev Device) error {
	if !m.alive.Load() {
		return ErrMonitorStopped
	}
	m.tester.SetDevice(dev)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive.Load() {
		return ErrMonitorStopped
	}
	if m.started {
		return nil
	}
	m.started = true
	m.wg.Add(1)
	go m.loop()
	return nil
}

// Rebind swaps the input device. The displayed level is left alone so
// the meter does not jump; the next tick animates from it.
func (m *Monitor) Rebind(dev Device) error {
	if !m.alive.Load() {
		return ErrMonitorStopped
	}
	m.tester.SetDevice(dev)
	return nil
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()
	frames := time.NewTicker(m.cfg.FrameInterval)
	defer frames.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Tick()
		case <-frames.C:
			m.Frame()
		}
	}
}

// Tick drains the tester and starts animating from the current display
// value to the drained level.
func (m *Monitor) Tick() {
	if !m.alive.Load() {
		return
	}
	level := clampLevel(m.tester.GetAndResetLevel())

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive.Load() {
		return
	}
	m.anim = Animation{
		From:     m.display,
		To:       level,
		Start:    m.now(),
		Duration: m.cfg.AnimationDuration,
	}
	m.animating = true
}

// Frame advances the running animation and publishes the result. It is
// the only writer of the displayed level.
func (m *Monitor) Frame() {
	m.mu.Lock()
	if !m.alive.Load() || !m.animating {
		m.mu.Unlock()
		return
	}
	now := m.now()
	level := m.anim.Value(now)
	m.display = level
	if m.anim.Finished(now) {
		m.animating = false
	}
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(level)
	}
}

// Level returns the last displayed level.
func (m *Monitor) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.display
}

// Animation returns the running animation, if any.
func (m *Monitor) Animation() (Animation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anim, m.animating
}

func (m *Monitor) Device() Device {
	return m.tester.Device()
}

// Stop halts the scheduler, drops the running animation and releases the
// tester. It is safe to call repeatedly and before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.alive.Store(false)
		m.animating = false
		m.mu.Unlock()

		close(m.stopCh)
		m.wg.Wait()
		if err := m.tester.Close(); err != nil {
			m.logger.Warnf("release input failed: %v", err)
		}
	})
}

func clampLevel(v float64) float64 {
	return min(max(v, 0), 1)
}
