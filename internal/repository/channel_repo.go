package repository

import (
	"context"

	"github.com/pccr10001/groupcall/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChannelRepository struct {
	db *gorm.DB
}

func NewChannelRepository(db *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) Create(ctx context.Context, channel *model.Channel) error {
	return r.db.WithContext(ctx).Create(channel).Error
}

func (r *ChannelRepository) FindByID(ctx context.Context, id uint) (*model.Channel, error) {
	var channel model.Channel
	err := r.db.WithContext(ctx).First(&channel, id).Error
	return &channel, err
}

func (r *ChannelRepository) List(ctx context.Context) ([]model.Channel, error) {
	var list []model.Channel
	err := r.db.WithContext(ctx).Order("id").Find(&list).Error
	return list, err
}

func (r *ChannelRepository) SetInviteLink(ctx context.Context, id uint, link string) error {
	return r.db.WithContext(ctx).Model(&model.Channel{}).Where("id = ?", id).Update("invite_link", link).Error
}

// GrantAdmin creates or replaces the user's rights on the channel.
func (r *ChannelRepository) GrantAdmin(ctx context.Context, admin *model.ChannelAdmin) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"can_manage_call", "can_invite"}),
	}).Create(admin).Error
}

func (r *ChannelRepository) FindAdmin(ctx context.Context, userID, channelID uint) (*model.ChannelAdmin, error) {
	var admin model.ChannelAdmin
	err := r.db.WithContext(ctx).First(&admin, "user_id = ? AND channel_id = ?", userID, channelID).Error
	return &admin, err
}
