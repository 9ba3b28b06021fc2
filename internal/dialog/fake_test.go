package dialog

import (
	"context"
	"errors"
	"sync"

	"github.com/pccr10001/groupcall/internal/miclevel"
	"go.uber.org/zap"
)

var errRemote = errors.New("remote rejected")

type fakeAuthority struct {
	mu sync.Mutex

	snap    CallSnapshot
	snapErr error

	checkErr  error
	commitErr error
	checks    int
	commits   []bool

	existing   string
	exportLink string
	exportErr  error
	exports    int
	gate       chan struct{}

	ended []string
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		snap: CallSnapshot{
			ChannelID:          7,
			CallID:             "call-1",
			Active:             true,
			CanChangeJoinMuted: true,
			CanManage:          true,
			CanShare:           true,
		},
		exportLink: "https://call.example.com/join/+abc",
	}
}

func (f *fakeAuthority) Snapshot(_ context.Context, callID string, _ uint) (CallSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapErr != nil {
		return CallSnapshot{}, f.snapErr
	}
	if callID != f.snap.CallID {
		return CallSnapshot{}, ErrCallNotFound
	}
	return f.snap, nil
}

func (f *fakeAuthority) CheckJoinMuted(context.Context, PolicyTarget, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.checkErr
}

func (f *fakeAuthority) SetJoinMuted(_ context.Context, _ PolicyTarget, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, value)
	return f.commitErr
}

func (f *fakeAuthority) InviteLink(context.Context, uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing, nil
}

func (f *fakeAuthority) ExportInvite(context.Context, uint) (string, error) {
	f.mu.Lock()
	f.exports++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exportLink, f.exportErr
}

func (f *fakeAuthority) EndCall(_ context.Context, t PolicyTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, t.CallID)
	f.snap.Active = false
	return nil
}

func (f *fakeAuthority) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

func (f *fakeAuthority) exportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exports
}

type nopSource struct{}

func (nopSource) Close() error { return nil }

var silentOpener = miclevel.OpenerFunc(func(miclevel.Device, miclevel.Feed) (miclevel.Source, error) {
	return nopSource{}, nil
})

func nopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
