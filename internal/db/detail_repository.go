// internal/db/detail_repository.go
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pch10086/BUPT-Hotel/internal/logger"
)

type DetailRepository struct {
	db *gorm.DB
}

func NewDetailRepository(db *gorm.DB) *DetailRepository {
	return &DetailRepository{db: db}
}

// SaveDetail 追加一条详单
func (r *DetailRepository) SaveDetail(ctx context.Context, detail *BillingDetail) error {
	if err := r.db.WithContext(ctx).Create(detail).Error; err != nil {
		logger.Error("创建详单记录失败 - 房间ID: %s, 错误: %v", detail.RoomID, err)
		return fmt.Errorf("创建详单记录失败: %w", err)
	}
	logger.Debug("成功创建详单记录 - 房间ID: %s, 服务时长: %.0f秒, 费用: %.2f, 风速: %s",
		detail.RoomID, detail.DurationSeconds, detail.Fee, detail.FanSpeed)
	return nil
}

// ListByRoom 获取指定房间的所有详单
func (r *DetailRepository) ListByRoom(ctx context.Context, roomID string) ([]BillingDetail, error) {
	var details []BillingDetail
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).
		Order("start_time ASC, id ASC").
		Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("获取房间详单失败: %w", err)
	}
	return details, nil
}

// ListUnbilled 获取 since 之后开始、尚未关联账单的详单，即本次入住产生的详单
func (r *DetailRepository) ListUnbilled(ctx context.Context, roomID string, since time.Time) ([]BillingDetail, error) {
	var details []BillingDetail
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND billing_record_id IS NULL AND start_time >= ?", roomID, since).
		Order("start_time ASC, id ASC").
		Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("获取未结算详单失败: %w", err)
	}
	return details, nil
}

// ListByRecord 获取某张账单关联的详单
func (r *DetailRepository) ListByRecord(ctx context.Context, recordID uint) ([]BillingDetail, error) {
	var details []BillingDetail
	err := r.db.WithContext(ctx).
		Where("billing_record_id = ?", recordID).
		Order("start_time ASC, id ASC").
		Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("获取账单详单失败: %w", err)
	}
	return details, nil
}

// ListInRange 获取开始时间落在 [from, to) 内的详单
func (r *DetailRepository) ListInRange(ctx context.Context, from, to time.Time) ([]BillingDetail, error) {
	var details []BillingDetail
	err := r.db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ?", from, to).
		Order("start_time ASC, id ASC").
		Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("获取时间范围内详单失败: %w", err)
	}
	return details, nil
}
