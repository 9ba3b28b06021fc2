package dialog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type linkState int

const (
	linkAbsent linkState = iota
	linkInFlight
	linkCached
)

// InviteResolver memoizes a channel's invite link. At most one generation
// request is outstanding, and a link once obtained is kept for the life of
// the owning session.
type InviteResolver struct {
	authority LinkAuthority
	channelID uint
	alive     func() bool
	timeout   time.Duration
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	state     linkState
	link      string
	listeners map[int]func(string)
	nextID    int

	wg sync.WaitGroup
}

func NewInviteResolver(authority LinkAuthority, channelID uint, alive func() bool, timeout time.Duration, logger *zap.SugaredLogger) *InviteResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InviteResolver{
		authority: authority,
		channelID: channelID,
		alive:     alive,
		timeout:   timeout,
		logger:    logger,
		listeners: map[int]func(string){},
	}
}

// ObtainOrGenerate returns the link if it is known. Otherwise it starts a
// generation request, unless one is already running, and reports false.
func (r *InviteResolver) ObtainOrGenerate(ctx context.Context) (string, bool) {
	if link, ok, settled := r.peek(); settled {
		return link, ok
	}

	existing, err := r.authority.InviteLink(ctx, r.channelID)
	if err != nil {
		r.logger.Debugf("lookup invite link for channel %d failed: %v", r.channelID, err)
	}

	r.mu.Lock()
	switch {
	case !r.alive():
		r.mu.Unlock()
		return "", false
	case r.state == linkCached:
		link := r.link
		r.mu.Unlock()
		return link, true
	case r.state == linkInFlight:
		r.mu.Unlock()
		return "", false
	case existing != "":
		r.state = linkCached
		r.link = existing
		r.mu.Unlock()
		return existing, true
	}
	r.state = linkInFlight
	r.wg.Add(1)
	r.mu.Unlock()

	go r.generate()
	return "", false
}

func (r *InviteResolver) peek() (link string, ok, settled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case !r.alive():
		return "", false, true
	case r.state == linkCached:
		return r.link, true, true
	case r.state == linkInFlight:
		return "", false, true
	}
	return "", false, false
}

func (r *InviteResolver) generate() {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	link, err := r.authority.ExportInvite(ctx, r.channelID)

	r.mu.Lock()
	if !r.alive() {
		r.state = linkAbsent
		r.mu.Unlock()
		r.logger.Debugf("invite link for channel %d arrived after session ended", r.channelID)
		return
	}
	if err != nil || link == "" {
		r.state = linkAbsent
		r.mu.Unlock()
		r.logger.Warnf("export invite link for channel %d failed: %v", r.channelID, err)
		return
	}
	r.state = linkCached
	r.link = link
	listeners := make([]func(string), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(link)
	}
}

// OnResolved registers fn to be called when a generated link arrives.
func (r *InviteResolver) OnResolved(fn func(link string)) (cancel func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *InviteResolver) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == linkInFlight
}

// Wait blocks until an outstanding generation request has completed.
func (r *InviteResolver) Wait() {
	r.wg.Wait()
}
