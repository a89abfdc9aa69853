// internal/db/bill_repository.go
package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrBillNotFound = errors.New("bill not found")

type BillRepository struct {
	db *gorm.DB
}

func NewBillRepository(db *gorm.DB) *BillRepository {
	return &BillRepository{db: db}
}

// CreateACBill 创建空调账单并把详单关联到该账单
func (r *BillRepository) CreateACBill(ctx context.Context, record *BillingRecord, detailIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("创建空调账单失败: %w", err)
		}
		if len(detailIDs) == 0 {
			return nil
		}
		err := tx.Model(&BillingDetail{}).
			Where("id IN ? AND billing_record_id IS NULL", detailIDs).
			Update("billing_record_id", record.ID).Error
		if err != nil {
			return fmt.Errorf("关联详单失败: %w", err)
		}
		return nil
	})
}

// CreateLodgingBill 创建住宿费账单
func (r *BillRepository) CreateLodgingBill(ctx context.Context, bill *LodgingBill) error {
	if err := r.db.WithContext(ctx).Create(bill).Error; err != nil {
		return fmt.Errorf("创建住宿账单失败: %w", err)
	}
	return nil
}

// LatestACBill 获取房间最近一次的空调账单
func (r *BillRepository) LatestACBill(ctx context.Context, roomID string) (*BillingRecord, error) {
	var record BillingRecord
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("获取空调账单失败: %w", err)
	}
	return &record, nil
}

// LatestLodgingBill 获取房间最近一次的住宿账单
func (r *BillRepository) LatestLodgingBill(ctx context.Context, roomID string) (*LodgingBill, error) {
	var bill LodgingBill
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id DESC").First(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("获取住宿账单失败: %w", err)
	}
	return &bill, nil
}
