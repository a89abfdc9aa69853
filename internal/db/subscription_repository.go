package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Save 按 endpoint 去重保存订阅，同一 endpoint 重新订阅时更新房间与密钥
func (r *SubscriptionRepository) Save(ctx context.Context, sub *PushSubscription) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"room_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("保存推送订阅失败: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) ListByRoom(ctx context.Context, roomID string) ([]PushSubscription, error) {
	var subs []PushSubscription
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("获取推送订阅失败: %w", err)
	}
	return subs, nil
}

func (r *SubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if err := r.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&PushSubscription{}).Error; err != nil {
		return fmt.Errorf("删除推送订阅失败: %w", err)
	}
	return nil
}
