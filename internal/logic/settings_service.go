package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pccr10001/groupcall/internal/dialog"
	"github.com/pccr10001/groupcall/internal/model"
	"github.com/pccr10001/groupcall/internal/repository"
	"github.com/pccr10001/groupcall/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrCallMismatch = errors.New("channel is running another call")
	ErrUnchanged    = errors.New("join-muted already has this value")
)

// SettingsService is the database-backed owner of call settings and
// invite links.
type SettingsService struct {
	calls    *repository.CallRepository
	channels *repository.ChannelRepository
	users    *repository.UserRepository
	webhooks *WebhookService
	baseURL  string
	now      func() time.Time
}

func NewSettingsService(db *gorm.DB, webhooks *WebhookService, inviteBaseURL string) *SettingsService {
	return &SettingsService{
		calls:    repository.NewCallRepository(db),
		channels: repository.NewChannelRepository(db),
		users:    repository.NewUserRepository(db),
		webhooks: webhooks,
		baseURL:  strings.TrimRight(inviteBaseURL, "/"),
		now:      time.Now,
	}
}

var _ dialog.Authority = (*SettingsService)(nil)

func (s *SettingsService) Snapshot(ctx context.Context, callID string, userID uint) (dialog.CallSnapshot, error) {
	call, err := s.findCall(ctx, callID)
	if err != nil {
		return dialog.CallSnapshot{}, err
	}
	channel, err := s.channels.FindByID(ctx, call.ChannelID)
	if err != nil {
		return dialog.CallSnapshot{}, fmt.Errorf("load channel %d: %w", call.ChannelID, err)
	}
	canManage, err := s.canManage(ctx, userID, call.ChannelID)
	if err != nil {
		return dialog.CallSnapshot{}, err
	}

	return dialog.CallSnapshot{
		ChannelID:          call.ChannelID,
		CallID:             call.ID,
		Active:             call.Active,
		JoinMuted:          call.JoinMuted,
		CanChangeJoinMuted: canManage && call.CanChangeJoinMuted,
		CanManage:          canManage,
		CanShare:           channel.Username != "" || channel.InviteLink != "" || channel.CanHaveInviteLink,
	}, nil
}

// CheckJoinMuted re-validates a pending join-muted change against the
// current state of the call.
func (s *SettingsService) CheckJoinMuted(ctx context.Context, t dialog.PolicyTarget, value bool) error {
	call, err := s.findCall(ctx, t.CallID)
	if err != nil {
		return err
	}
	if !call.Active {
		return dialog.ErrCallNotFound
	}
	current, err := s.calls.FindActiveByChannel(ctx, t.ChannelID)
	if err != nil || current.ID != t.CallID {
		return ErrCallMismatch
	}
	canManage, err := s.canManage(ctx, t.UserID, call.ChannelID)
	if err != nil {
		return err
	}
	if !canManage || !call.CanChangeJoinMuted {
		return dialog.ErrNotAllowed
	}
	if call.JoinMuted == value {
		return ErrUnchanged
	}
	return nil
}

// SetJoinMuted stores the flag. The update is conditional, so a call that
// ended or stopped allowing the change after CheckJoinMuted is left alone.
func (s *SettingsService) SetJoinMuted(ctx context.Context, t dialog.PolicyTarget, value bool) error {
	changed, err := s.calls.SetJoinMuted(ctx, t.CallID, value)
	if err != nil {
		return fmt.Errorf("update call %s: %w", t.CallID, err)
	}
	if !changed {
		return ErrUnchanged
	}
	logger.Log.Infof("Call %s join-muted set to %v by user %d", t.CallID, value, t.UserID)
	s.dispatch(&SettingsEvent{
		Kind:      EventJoinMutedChanged,
		ChannelID: t.ChannelID,
		CallID:    t.CallID,
		UserID:    t.UserID,
		JoinMuted: value,
	})
	return nil
}

// InviteLink returns the public link of the channel, or the last exported
// one. Empty means a link has to be generated.
func (s *SettingsService) InviteLink(ctx context.Context, channelID uint) (string, error) {
	channel, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return "", fmt.Errorf("load channel %d: %w", channelID, err)
	}
	if channel.Username != "" {
		return s.baseURL + "/" + channel.Username, nil
	}
	return channel.InviteLink, nil
}

// ExportInvite generates a new private invite link and stores it.
func (s *SettingsService) ExportInvite(ctx context.Context, channelID uint) (string, error) {
	channel, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return "", fmt.Errorf("load channel %d: %w", channelID, err)
	}
	if !channel.CanHaveInviteLink {
		return "", dialog.ErrShareUnavailable
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	link := s.baseURL + "/+" + token
	if err := s.channels.SetInviteLink(ctx, channelID, link); err != nil {
		return "", fmt.Errorf("store invite link: %w", err)
	}
	logger.Log.Infof("Exported invite link for channel %d", channelID)
	s.dispatch(&SettingsEvent{Kind: EventInviteExported, ChannelID: channelID, Link: link})
	return link, nil
}

func (s *SettingsService) EndCall(ctx context.Context, t dialog.PolicyTarget) error {
	ended, err := s.calls.End(ctx, t.CallID, s.now())
	if err != nil {
		return fmt.Errorf("end call %s: %w", t.CallID, err)
	}
	if !ended {
		return dialog.ErrCallNotFound
	}
	s.dispatch(&SettingsEvent{Kind: EventCallEnded, ChannelID: t.ChannelID, CallID: t.CallID, UserID: t.UserID})
	return nil
}

// StartCall opens a new call on a channel. A channel runs one call at a
// time.
func (s *SettingsService) StartCall(ctx context.Context, channelID uint, title string, canChangeJoinMuted bool) (*model.GroupCall, error) {
	if _, err := s.channels.FindByID(ctx, channelID); err != nil {
		return nil, fmt.Errorf("load channel %d: %w", channelID, err)
	}
	if _, err := s.calls.FindActiveByChannel(ctx, channelID); err == nil {
		return nil, ErrCallMismatch
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	call := &model.GroupCall{
		ID:                 uuid.NewString(),
		ChannelID:          channelID,
		Title:              title,
		Active:             true,
		CanChangeJoinMuted: canChangeJoinMuted,
		StartedAt:          s.now(),
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}
	return call, nil
}

func (s *SettingsService) ActiveCalls(ctx context.Context) ([]model.GroupCall, error) {
	return s.calls.ListActive(ctx)
}

func (s *SettingsService) findCall(ctx context.Context, callID string) (*model.GroupCall, error) {
	call, err := s.calls.FindByID(ctx, callID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dialog.ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load call %s: %w", callID, err)
	}
	return call, nil
}

// canManage: site admins manage every call, others need the channel right.
func (s *SettingsService) canManage(ctx context.Context, userID, channelID uint) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user.Role == "admin" {
		return true, nil
	}
	admin, err := s.channels.FindAdmin(ctx, userID, channelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load channel rights: %w", err)
	}
	return admin.CanManageCall, nil
}

func (s *SettingsService) dispatch(ev *SettingsEvent) {
	if s.webhooks != nil {
		s.webhooks.Dispatch(ev)
	}
}
