package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pch10086/BUPT-Hotel/internal/config"
	"github.com/pch10086/BUPT-Hotel/internal/logger"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// Open 打开 sqlite 数据库并迁移表结构
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&Room{},
		&BillingDetail{},
		&BillingRecord{},
		&LodgingBill{},
		&PushSubscription{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}
	logger.Info("数据库初始化完成: %s", cfg.Path)
	return db, nil
}

// 101-105 使用固定的初始温度与房价
var presetRooms = map[string]struct {
	initialTemp float64
	pricePerDay float64
}{
	"101": {32.0, 100},
	"102": {28.0, 125},
	"103": {30.0, 150},
	"104": {29.0, 200},
	"105": {35.0, 100},
}

// DefaultRooms 4 层、每层 10 间的初始房间数据
func DefaultRooms(targetTemp float64) []Room {
	rooms := make([]Room, 0, 40)
	for floor := 1; floor <= 4; floor++ {
		for num := 1; num <= 10; num++ {
			id := fmt.Sprintf("%d%02d", floor, num)
			// 每层 01 号是大床房
			temp, price := 28.0, 100.0
			if num == 1 {
				temp, price = 25.0, 200.0
			}
			if p, ok := presetRooms[id]; ok {
				temp, price = p.initialTemp, p.pricePerDay
			}
			rooms = append(rooms, Room{
				RoomID:      id,
				Mode:        types.ModeCool,
				CurrentTemp: temp,
				TargetTemp:  targetTemp,
				InitialTemp: temp,
				FanSpeed:    types.SpeedMiddle,
				Status:      types.StatusShutdown,
				PricePerDay: price,
			})
		}
	}
	return rooms
}

// SeedRooms 房间表为空时写入初始房间，返回写入数量
func SeedRooms(ctx context.Context, db *gorm.DB, targetTemp float64) (int, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&Room{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	rooms := DefaultRooms(targetTemp)
	if err := db.WithContext(ctx).CreateInBatches(rooms, 20).Error; err != nil {
		return 0, fmt.Errorf("seed rooms: %w", err)
	}
	logger.Info("初始化房间数据完成，共 %d 间", len(rooms))
	return len(rooms), nil
}
