package repository

import (
	"context"
	"time"

	"github.com/pccr10001/groupcall/internal/model"
	"gorm.io/gorm"
)

type CallRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) *CallRepository {
	return &CallRepository{db: db}
}

func (r *CallRepository) Create(ctx context.Context, call *model.GroupCall) error {
	return r.db.WithContext(ctx).Create(call).Error
}

func (r *CallRepository) FindByID(ctx context.Context, id string) (*model.GroupCall, error) {
	var call model.GroupCall
	err := r.db.WithContext(ctx).First(&call, "id = ?", id).Error
	return &call, err
}

// FindActiveByChannel returns the call currently running on the channel.
func (r *CallRepository) FindActiveByChannel(ctx context.Context, channelID uint) (*model.GroupCall, error) {
	var call model.GroupCall
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND active = ?", channelID, true).
		Order("started_at desc").
		First(&call).Error
	return &call, err
}

func (r *CallRepository) ListActive(ctx context.Context) ([]model.GroupCall, error) {
	var calls []model.GroupCall
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("started_at desc").Find(&calls).Error
	return calls, err
}

// SetJoinMuted flips the flag only on a live call that allows it and
// only if the stored value differs. It reports whether a row changed.
func (r *CallRepository) SetJoinMuted(ctx context.Context, id string, value bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.GroupCall{}).
		Where("id = ? AND active = ? AND can_change_join_muted = ? AND join_muted <> ?", id, true, true, value).
		Update("join_muted", value)
	return res.RowsAffected > 0, res.Error
}

// End marks the call as finished. Ending an ended call is a no-op.
func (r *CallRepository) End(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.GroupCall{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{"active": false, "ended_at": at})
	return res.RowsAffected > 0, res.Error
}
