package dialog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type ReconcileState int

const (
	StateLoaded ReconcileState = iota
	StateClosing
	StateCommitted
	StateSkipped
)

func (s ReconcileState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateClosing:
		return "closing"
	case StateCommitted:
		return "committed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Reconciler holds the join-muted value edited in a dialog and commits it
// at most once, when the dialog closes.
type Reconciler struct {
	authority PolicyAuthority
	target    PolicyTarget
	timeout   time.Duration
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	state   ReconcileState
	origin  bool
	current bool

	wg sync.WaitGroup
}

func NewReconciler(authority PolicyAuthority, target PolicyTarget, timeout time.Duration, logger *zap.SugaredLogger) *Reconciler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{authority: authority, target: target, timeout: timeout, logger: logger}
}

// Observe records the value loaded when the dialog opened.
func (r *Reconciler) Observe(origin bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateLoaded {
		return
	}
	r.origin = origin
	r.current = origin
}

// Edit records the user's choice. Nothing is sent until OnClose.
func (r *Reconciler) Edit(value bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateLoaded {
		return
	}
	r.current = value
}

func (r *Reconciler) Current() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Reconciler) State() ReconcileState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnClose decides the fate of the edit. Preconditions are checked now,
// not at edit time. A commit is dispatched in the background and its
// failure is only logged. Later calls return the settled state.
func (r *Reconciler) OnClose(ctx context.Context) ReconcileState {
	r.mu.Lock()
	if r.state != StateLoaded {
		state := r.state
		r.mu.Unlock()
		return state
	}
	r.state = StateClosing
	origin, current := r.origin, r.current
	r.mu.Unlock()

	if current == origin {
		return r.settle(StateSkipped)
	}
	if err := r.authority.CheckJoinMuted(ctx, r.target, current); err != nil {
		r.logger.Debugf("join-muted edit on call %s dropped: %v", r.target.CallID, err)
		return r.settle(StateSkipped)
	}

	r.wg.Add(1)
	go r.commit(current)
	return r.settle(StateCommitted)
}

func (r *Reconciler) commit(value bool) {
	defer r.wg.Done()

	// The dialog is gone by now; the request outlives it.
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.authority.SetJoinMuted(ctx, r.target, value); err != nil {
		r.logger.Warnf("commit join-muted=%v on call %s failed: %v", value, r.target.CallID, err)
		return
	}
	r.logger.Infof("join-muted=%v committed on call %s", value, r.target.CallID)
}

func (r *Reconciler) settle(state ReconcileState) ReconcileState {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	return state
}

// Wait blocks until a dispatched commit has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
