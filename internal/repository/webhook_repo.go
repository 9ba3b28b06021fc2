package repository

import (
	"context"

	"github.com/pccr10001/groupcall/internal/model"
	"gorm.io/gorm"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, webhook *model.Webhook) error {
	return r.db.WithContext(ctx).Create(webhook).Error
}

// FindByChannel returns the enabled webhooks of a channel.
func (r *WebhookRepository) FindByChannel(ctx context.Context, channelID uint) ([]model.Webhook, error) {
	var list []model.Webhook
	err := r.db.WithContext(ctx).Where("channel_id = ? AND enabled = ?", channelID, true).Find(&list).Error
	return list, err
}

func (r *WebhookRepository) ListByChannel(ctx context.Context, channelID uint) ([]model.Webhook, error) {
	var list []model.Webhook
	err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).Find(&list).Error
	return list, err
}

func (r *WebhookRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Webhook{}, id).Error
}
