package dialog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pccr10001/groupcall/internal/miclevel"
	"go.uber.org/zap"
)

type Config struct {
	Monitor        miclevel.MonitorConfig
	DefaultInput   miclevel.Device
	IdleTimeout    time.Duration
	ReapInterval   time.Duration
	RequestTimeout time.Duration
}

// Manager owns the call sessions and the dialogs opened on them.
type Manager struct {
	cfg       Config
	authority Authority
	opener    miclevel.Opener
	logger    *zap.SugaredLogger

	// OnDialogClosed, if set, runs after a dialog has been torn down.
	OnDialogClosed func(dialogID string)

	mu       sync.Mutex
	stopped  bool
	sessions map[string]*Session
	dialogs  map[string]*Dialog

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	commits  sync.WaitGroup
}

func NewManager(cfg Config, authority Authority, opener miclevel.Opener, logger *zap.SugaredLogger) *Manager {
	if cfg.DefaultInput.ID == "" {
		cfg.DefaultInput = miclevel.DefaultDevice()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	return &Manager{
		cfg:       cfg,
		authority: authority,
		opener:    opener,
		logger:    logger,
		sessions:  map[string]*Session{},
		dialogs:   map[string]*Dialog{},
		stop:      make(chan struct{}),
	}
}

// Open creates a settings dialog for userID on callID and starts its
// level meter on input, or on the default input when input is nil.
func (m *Manager) Open(ctx context.Context, callID string, userID uint, input *miclevel.Device) (*Dialog, error) {
	snap, err := m.authority.Snapshot(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if !snap.Active {
		return nil, ErrCallNotFound
	}

	dev := m.cfg.DefaultInput
	if input != nil && input.ID != "" {
		dev = *input
	}

	d := &Dialog{
		ID:          uuid.NewString(),
		UserID:      userID,
		snapshot:    snap,
		logger:      m.logger,
		subscribers: map[int]chan Event{},
	}
	d.alive.Store(true)
	d.Touch()

	target := PolicyTarget{ChannelID: snap.ChannelID, CallID: snap.CallID, UserID: userID}
	d.reconciler = NewReconciler(m.authority, target, m.cfg.RequestTimeout, m.logger)
	d.reconciler.Observe(snap.JoinMuted)

	tester := miclevel.NewTester(m.opener, m.logger)
	d.monitor = miclevel.NewMonitor(m.cfg.Monitor, tester, func(level float64) {
		d.publish(Event{Type: EventLevel, Value: level})
	}, m.logger)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		d.monitor.Stop()
		return nil, ErrManagerStopped
	}
	session := m.sessions[snap.CallID]
	if session == nil || !session.Alive() {
		session = newSession(snap.CallID, snap.ChannelID, m.authority, m.cfg.RequestTimeout, m.logger)
		m.sessions[snap.CallID] = session
	}
	d.session = session
	// The listener is in place before the dialog becomes visible to
	// EndCall and the reaper.
	d.stopLink = session.Invite.OnResolved(func(link string) {
		d.publish(Event{Type: EventInviteLink, Link: link})
	})
	m.dialogs[d.ID] = d
	m.mu.Unlock()

	if err := d.monitor.Start(dev); err != nil {
		m.closeDialog(ctx, d)
		return nil, fmt.Errorf("start level meter: %w", err)
	}
	m.logger.Infof("dialog %s opened on call %s by user %d (input %q)", d.ID, snap.CallID, userID, dev.ID)
	return d, nil
}

func (m *Manager) Get(id string) (*Dialog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dialogs[id]
	if !ok {
		return nil, ErrDialogNotFound
	}
	return d, nil
}

// Close closes the dialog and returns the fate of its join-muted edit.
func (m *Manager) Close(ctx context.Context, id string) (ReconcileState, error) {
	d, err := m.Get(id)
	if err != nil {
		return StateSkipped, err
	}
	return m.closeDialog(ctx, d), nil
}

func (m *Manager) closeDialog(ctx context.Context, d *Dialog) ReconcileState {
	m.mu.Lock()
	_, owned := m.dialogs[d.ID]
	delete(m.dialogs, d.ID)
	if owned {
		m.commits.Add(1)
	}
	m.mu.Unlock()

	if !owned {
		return d.close(ctx)
	}
	return m.finishClose(ctx, d)
}

// finishClose tears d down. The caller has removed d from the dialog map
// and added it to commits.
func (m *Manager) finishClose(ctx context.Context, d *Dialog) ReconcileState {
	outcome := d.close(ctx)
	go func() {
		defer m.commits.Done()
		d.reconciler.Wait()
	}()
	if m.OnDialogClosed != nil {
		m.OnDialogClosed(d.ID)
	}
	return outcome
}

// EndCall ends the call for everyone. Only users who can manage the call
// may do so. Open dialogs are closed and the session's link cache dies
// with it.
func (m *Manager) EndCall(ctx context.Context, callID string, userID uint) error {
	snap, err := m.authority.Snapshot(ctx, callID, userID)
	if err != nil {
		return err
	}
	if !snap.Active {
		return ErrCallNotFound
	}
	if !snap.CanManage {
		return ErrNotAllowed
	}
	if err := m.authority.EndCall(ctx, PolicyTarget{ChannelID: snap.ChannelID, CallID: callID, UserID: userID}); err != nil {
		return fmt.Errorf("end call %s: %w", callID, err)
	}

	m.mu.Lock()
	session := m.sessions[callID]
	delete(m.sessions, callID)
	var open []*Dialog
	for _, d := range m.dialogs {
		if d.snapshot.CallID == callID {
			open = append(open, d)
		}
	}
	m.mu.Unlock()

	if session != nil {
		session.close()
	}
	for _, d := range open {
		m.closeDialog(ctx, d)
	}
	m.logger.Infof("call %s ended by user %d, %d dialogs closed", callID, userID, len(open))
	return nil
}

// Start runs the idle dialog sweeper.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.reap(time.Now())
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *Manager) reap(now time.Time) int {
	m.mu.Lock()
	var idle []*Dialog
	for _, d := range m.dialogs {
		if now.Sub(d.idleSince()) > m.cfg.IdleTimeout {
			idle = append(idle, d)
		}
	}
	m.mu.Unlock()

	for _, d := range idle {
		m.logger.Infof("dialog %s idle since %s, closing", d.ID, d.idleSince().Format(time.RFC3339))
		m.closeDialog(context.Background(), d)
	}
	return len(idle)
}

// Stop closes every dialog and waits for outstanding commits and link
// requests.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()

		m.mu.Lock()
		m.stopped = true
		dialogs := make([]*Dialog, 0, len(m.dialogs))
		for _, d := range m.dialogs {
			dialogs = append(dialogs, d)
		}
		m.dialogs = map[string]*Dialog{}
		m.commits.Add(len(dialogs))
		sessions := make([]*Session, 0, len(m.sessions))
		for _, s := range m.sessions {
			sessions = append(sessions, s)
		}
		m.mu.Unlock()

		for _, d := range dialogs {
			m.finishClose(context.Background(), d)
		}
		m.commits.Wait()
		for _, s := range sessions {
			s.Invite.Wait()
		}
	})
}

func (m *Manager) Session(callID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[callID]
}

// Count returns the number of open dialogs.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dialogs)
}
