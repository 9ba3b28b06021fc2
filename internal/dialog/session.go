package dialog

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Session is the server side of a live call. It outlives the dialogs
// opened on it and owns the invite link cache.
type Session struct {
	CallID    string
	ChannelID uint
	Invite    *InviteResolver

	alive atomic.Bool
}

func newSession(callID string, channelID uint, links LinkAuthority, timeout time.Duration, logger *zap.SugaredLogger) *Session {
	s := &Session{CallID: callID, ChannelID: channelID}
	s.alive.Store(true)
	s.Invite = NewInviteResolver(links, channelID, s.Alive, timeout, logger)
	return s
}

func (s *Session) Alive() bool {
	return s.alive.Load()
}

func (s *Session) close() {
	s.alive.Store(false)
}
