package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.45, Round2(0.44999999999))
	assert.Equal(t, 1.01, Round2(1.005))
	assert.Equal(t, 0.33, Round2(1.0/3.0))
	assert.Equal(t, 0.0, Round2(0))
}

func TestCloseSession(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	room := &db.Room{RoomID: "101", TotalFee: 1.0 / 3.0}

	d := CloseSession(Session{
		RoomID:        "101",
		RequestTime:   start.Add(-30 * time.Second),
		StartTime:     start,
		FanSpeed:      types.SpeedLow,
		ServedSeconds: 27.5,
		Fee:           2.0 / 3.0,
	}, room, start.Add(28*time.Second))

	assert.InDelta(t, 1.0, room.TotalFee, 1e-12, "room keeps full precision")
	assert.Equal(t, "101", d.RoomID)
	assert.Equal(t, 0.67, d.Fee)
	assert.Equal(t, 1.0, d.CumulativeFee)
	assert.Equal(t, 27.5, d.DurationSeconds)
	assert.Equal(t, types.SpeedLow, d.FanSpeed)
	assert.Equal(t, start, d.StartTime)
	assert.Equal(t, start.Add(28*time.Second), d.EndTime)
	assert.Nil(t, d.BillingRecordID)
}

func TestCloseSessionZeroFee(t *testing.T) {
	room := &db.Room{RoomID: "102", TotalFee: 4.2}
	d := CloseSession(Session{RoomID: "102", FanSpeed: types.SpeedHigh}, room, time.Time{})
	assert.Equal(t, 4.2, room.TotalFee)
	assert.Zero(t, d.Fee)
	assert.Equal(t, 4.2, d.CumulativeFee)
}
