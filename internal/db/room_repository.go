// internal/db/room_repository.go
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pch10086/BUPT-Hotel/internal/types"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomOccupied = errors.New("room is occupied")
	ErrRoomVacant   = errors.New("room is not checked in")
)

// schedulerColumns 调度器拥有的字段，Save 只更新这些列
var schedulerColumns = []string{"mode", "current_temp", "target_temp", "fan_speed", "is_on", "status", "total_fee"}

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetByRoomID 通过房间号获取房间信息
func (r *RoomRepository) GetByRoomID(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("获取房间 %s 失败: %w", roomID, err)
	}
	return &room, nil
}

// Save 写回调度器维护的空调状态
func (r *RoomRepository) Save(ctx context.Context, room *Room) error {
	res := r.db.WithContext(ctx).Model(&Room{RoomID: room.RoomID}).
		Select(schedulerColumns).
		Updates(room)
	if res.Error != nil {
		return fmt.Errorf("保存房间 %s 失败: %w", room.RoomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// ListAll 按房间号列出全部房间
func (r *RoomRepository) ListAll(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := r.db.WithContext(ctx).Order("room_id ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("获取房间列表失败: %w", err)
	}
	return rooms, nil
}

// ListOccupied 列出已入住的房间
func (r *RoomRepository) ListOccupied(ctx context.Context) ([]Room, error) {
	var rooms []Room
	err := r.db.WithContext(ctx).
		Where("check_in_time IS NOT NULL").
		Order("room_id ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("获取入住房间失败: %w", err)
	}
	return rooms, nil
}

// CheckIn 办理入住：记录住客信息，费用清零，空调关机
func (r *RoomRepository) CheckIn(ctx context.Context, roomID, customerName, idCard string, at time.Time) (*Room, error) {
	var room Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if room.Occupied() {
			return ErrRoomOccupied
		}
		room.CustomerName = customerName
		room.IDCard = idCard
		room.CheckInTime = &at
		room.TotalFee = 0
		room.IsOn = false
		room.Status = types.StatusShutdown
		return tx.Model(&room).
			Select("customer_name", "id_card", "check_in_time", "total_fee", "is_on", "status").
			Updates(&room).Error
	})
	if err != nil {
		return nil, fmt.Errorf("房间 %s 入住失败: %w", roomID, err)
	}
	return &room, nil
}

// CheckOut 清除住客信息
func (r *RoomRepository) CheckOut(ctx context.Context, roomID string) error {
	res := r.db.WithContext(ctx).Model(&Room{RoomID: roomID}).
		Where("check_in_time IS NOT NULL").
		Updates(map[string]interface{}{
			"customer_name": "",
			"id_card":       "",
			"check_in_time": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("房间 %s 退房失败: %w", roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("房间 %s 退房失败: %w", roomID, ErrRoomVacant)
	}
	return nil
}
