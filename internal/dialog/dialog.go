package dialog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pccr10001/groupcall/internal/miclevel"
	"go.uber.org/zap"
)

const (
	EventLevel      = "level"
	EventInviteLink = "invite_link"
	EventClosed     = "closed"
)

// Event is pushed to the dialog's subscribers.
type Event struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
	Link  string  `json:"link,omitempty"`
}

// Info is what the client needs to render the dialog.
type Info struct {
	ID                 string          `json:"dialog_id"`
	CallID             string          `json:"call_id"`
	ChannelID          uint            `json:"channel_id"`
	JoinMuted          bool            `json:"join_muted"`
	CanChangeJoinMuted bool            `json:"can_change_join_muted"`
	CanManage          bool            `json:"can_manage"`
	CanShare           bool            `json:"can_share"`
	Input              miclevel.Device `json:"input"`
	Output             string          `json:"output,omitempty"`
}

// Dialog is one open settings dialog.
type Dialog struct {
	ID     string
	UserID uint

	snapshot   CallSnapshot
	session    *Session
	monitor    *miclevel.Monitor
	reconciler *Reconciler
	logger     *zap.SugaredLogger

	alive    atomic.Bool
	lastSeen atomic.Int64

	mu          sync.Mutex
	output      string
	subscribers map[int]chan Event
	nextSub     int
	stopLink    func()

	closeOnce sync.Once
	outcome   ReconcileState
}

func (d *Dialog) Alive() bool {
	return d.alive.Load()
}

// Touch marks client activity; idle dialogs are reaped.
func (d *Dialog) Touch() {
	d.lastSeen.Store(time.Now().UnixNano())
}

func (d *Dialog) idleSince() time.Time {
	return time.Unix(0, d.lastSeen.Load())
}

func (d *Dialog) Info() Info {
	d.mu.Lock()
	output := d.output
	d.mu.Unlock()

	joinMuted := d.snapshot.JoinMuted
	if d.snapshot.CanChangeJoinMuted {
		joinMuted = d.reconciler.Current()
	}
	return Info{
		ID:                 d.ID,
		CallID:             d.snapshot.CallID,
		ChannelID:          d.snapshot.ChannelID,
		JoinMuted:          joinMuted,
		CanChangeJoinMuted: d.snapshot.CanChangeJoinMuted,
		CanManage:          d.snapshot.CanManage,
		CanShare:           d.snapshot.CanShare,
		Input:              d.monitor.Device(),
		Output:             output,
	}
}

// SetJoinMuted records the toggle state. It is committed on close.
func (d *Dialog) SetJoinMuted(value bool) error {
	if !d.alive.Load() {
		return ErrDialogClosed
	}
	if !d.snapshot.CanChangeJoinMuted {
		return ErrNotAllowed
	}
	d.Touch()
	d.reconciler.Edit(value)
	return nil
}

// SetInput switches the monitored microphone.
func (d *Dialog) SetInput(dev miclevel.Device) error {
	if !d.alive.Load() {
		return ErrDialogClosed
	}
	d.Touch()
	if err := d.monitor.Rebind(dev); err != nil {
		return ErrDialogClosed
	}
	return nil
}

func (d *Dialog) SetOutput(name string) error {
	if !d.alive.Load() {
		return ErrDialogClosed
	}
	d.Touch()
	d.mu.Lock()
	d.output = name
	d.mu.Unlock()
	return nil
}

// Share returns the invite link, or ready=false while it is being
// generated. Subscribers get an invite_link event once it arrives.
func (d *Dialog) Share(ctx context.Context) (link string, ready bool, err error) {
	if !d.alive.Load() {
		return "", false, ErrDialogClosed
	}
	if !d.snapshot.CanShare {
		return "", false, ErrShareUnavailable
	}
	d.Touch()
	link, ready = d.session.Invite.ObtainOrGenerate(ctx)
	return link, ready, nil
}

func (d *Dialog) Level() float64 {
	return d.monitor.Level()
}

// Subscribe returns a stream of level and link events. Slow readers miss
// events rather than stall the meter.
func (d *Dialog) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	d.mu.Lock()
	if !d.alive.Load() {
		d.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := d.nextSub
	d.nextSub++
	d.subscribers[id] = ch
	d.mu.Unlock()

	return ch, func() {
		d.mu.Lock()
		if c, ok := d.subscribers[id]; ok {
			delete(d.subscribers, id)
			close(c)
		}
		d.mu.Unlock()
	}
}

func (d *Dialog) publish(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive.Load() {
		return
	}
	for _, ch := range d.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close tears the dialog down: the meter stops before anything else so
// no callback touches a closed dialog, then the edit is reconciled.
func (d *Dialog) close(ctx context.Context) ReconcileState {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.alive.Store(false)
		stopLink := d.stopLink
		d.mu.Unlock()

		if stopLink != nil {
			stopLink()
		}
		d.monitor.Stop()
		d.outcome = d.reconciler.OnClose(ctx)

		d.mu.Lock()
		for id, ch := range d.subscribers {
			select {
			case ch <- Event{Type: EventClosed}:
			default:
			}
			close(ch)
			delete(d.subscribers, id)
		}
		d.mu.Unlock()
		d.logger.Infof("dialog %s closed (join-muted %s)", d.ID, d.outcome)
	})
	return d.outcome
}
