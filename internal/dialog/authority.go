// Package dialog hosts call settings dialogs: each open dialog runs a
// microphone level monitor, tracks the join-muted toggle and reconciles
// it once when the dialog closes.
package dialog

import (
	"context"
	"errors"
)

var (
	ErrCallNotFound     = errors.New("call not found")
	ErrDialogNotFound   = errors.New("dialog not found")
	ErrDialogClosed     = errors.New("dialog closed")
	ErrNotAllowed       = errors.New("not allowed")
	ErrShareUnavailable = errors.New("channel has no invite link")
	ErrManagerStopped   = errors.New("dialog manager stopped")
)

// PolicyTarget names the call being configured and the user configuring it.
type PolicyTarget struct {
	ChannelID uint
	CallID    string
	UserID    uint
}

// CallSnapshot is the call state as seen when a dialog opens.
type CallSnapshot struct {
	ChannelID          uint
	CallID             string
	Active             bool
	JoinMuted          bool
	CanChangeJoinMuted bool
	CanManage          bool
	CanShare           bool
}

// PolicyAuthority is the remote owner of the join-muted policy.
type PolicyAuthority interface {
	// CheckJoinMuted reports whether value may still be committed for t.
	CheckJoinMuted(ctx context.Context, t PolicyTarget, value bool) error
	SetJoinMuted(ctx context.Context, t PolicyTarget, value bool) error
}

// LinkAuthority resolves and generates channel invite links.
type LinkAuthority interface {
	// InviteLink returns the link the channel already has, or "".
	InviteLink(ctx context.Context, channelID uint) (string, error)
	ExportInvite(ctx context.Context, channelID uint) (string, error)
}

type Authority interface {
	PolicyAuthority
	LinkAuthority
	Snapshot(ctx context.Context, callID string, userID uint) (CallSnapshot, error)
	EndCall(ctx context.Context, t PolicyTarget) error
}
