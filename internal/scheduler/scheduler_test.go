package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

func TestRequestSupplyRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, room("101", 28))

	cases := []struct {
		name   string
		mode   types.Mode
		target float64
		speed  types.FanSpeed
	}{
		{"cool below range", types.ModeCool, 17.5, types.SpeedHigh},
		{"cool above range", types.ModeCool, 28.5, types.SpeedHigh},
		{"heat above range", types.ModeHeat, 26, types.SpeedHigh},
		{"unknown speed", types.ModeCool, 24, types.FanSpeed("TURBO")},
		{"unknown mode", types.Mode("DRY"), 24, types.SpeedLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.s.RequestSupply(ctx, "101", tc.mode, tc.target, tc.speed)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	_, ok := h.s.LastRequestOf("101")
	assert.False(t, ok)
	assert.Empty(t, h.serving())
	assert.Zero(t, h.rooms.saves)
}

func TestRequestSupplyUnknownRoom(t *testing.T) {
	h := newHarness(t, 3, room("101", 28))
	_, err := h.s.RequestSupply(context.Background(), "999", types.ModeCool, 24, types.SpeedHigh)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "999", nf.RoomID)

	err = h.s.StopSupply(context.Background(), "999", true)
	require.ErrorAs(t, err, &nf)
}

func TestCapacityFill(t *testing.T) {
	h := newHarness(t, 3, room("A", 28), room("B", 28), room("C", 28), room("D", 28))
	for _, id := range []string{"A", "B", "C"} {
		r := h.request(t, id, 22, types.SpeedHigh)
		assert.Equal(t, types.StatusServing, r.Status)
	}
	r := h.request(t, "D", 22, types.SpeedHigh)
	assert.Equal(t, types.StatusWaiting, r.Status)

	assert.Equal(t, []string{"A", "B", "C"}, h.serving())
	assert.Equal(t, []string{"D"}, h.waiting())
	assert.Empty(t, h.details.all(), "no preemption among equals")
}

func TestPreemptionOfWeakest(t *testing.T) {
	h := newHarness(t, 3, room("A", 28), room("B", 28), room("C", 28), room("D", 28))
	h.request(t, "A", 22, types.SpeedLow)
	h.request(t, "B", 22, types.SpeedMiddle)
	h.request(t, "C", 22, types.SpeedHigh)

	r := h.request(t, "D", 22, types.SpeedHigh)
	assert.Equal(t, types.StatusServing, r.Status)
	assert.Equal(t, []string{"B", "C", "D"}, h.serving())

	wait := h.s.WaitingSnapshot()
	require.Len(t, wait, 1)
	assert.Equal(t, "A", wait[0].RoomID)
	assert.Equal(t, 120.0, wait[0].WaitRemaining, "fresh time slice")
	assert.Zero(t, wait[0].TotalWaited)
	assert.Equal(t, types.StatusWaiting, h.rooms.get("A").Status)

	details := h.details.forRoom("A")
	require.Len(t, details, 1, "preempted session is billed")
	assert.Equal(t, types.SpeedLow, details[0].FanSpeed)
}

func TestWeakestTieBreaks(t *testing.T) {
	h := newHarness(t, 2, room("101", 28), room("102", 28), room("103", 28))
	h.request(t, "101", 20, types.SpeedLow)
	h.ticks(t, 2)
	h.request(t, "102", 20, types.SpeedLow)

	// 同为低风，服务更久的 101 被抢占
	h.request(t, "103", 20, types.SpeedMiddle)
	assert.Equal(t, []string{"102", "103"}, h.serving())
	assert.Equal(t, []string{"101"}, h.waiting())

	// 服务时长相同时房间号小的先被抢占
	h2 := newHarness(t, 2, room("201", 28), room("202", 28), room("203", 28))
	h2.request(t, "202", 20, types.SpeedLow)
	h2.request(t, "201", 20, types.SpeedLow)
	h2.request(t, "203", 20, types.SpeedHigh)
	assert.Equal(t, []string{"201"}, h2.waiting())
}

func TestTimeSliceRotation(t *testing.T) {
	h := newHarness(t, 2, room("A", 28), room("B", 28), room("C", 28))
	h.request(t, "A", 18, types.SpeedMiddle)
	h.ticks(t, 5)
	h.request(t, "B", 18, types.SpeedMiddle)
	h.request(t, "C", 18, types.SpeedMiddle)
	assert.Equal(t, []string{"C"}, h.waiting())

	h.ticks(t, 19)
	wait := h.s.WaitingSnapshot()
	require.Len(t, wait, 1)
	assert.Equal(t, "C", wait[0].RoomID)
	assert.InDelta(t, 114, wait[0].TotalWaited, 1e-9)
	assert.False(t, wait[0].Boosted)

	h.ticks(t, 1)
	assert.Equal(t, []string{"B", "C"}, h.serving(), "A served longer and is swapped out")
	assert.Equal(t, []string{"A"}, h.waiting())

	details := h.details.forRoom("A")
	require.Len(t, details, 1)
	assert.InDelta(t, 150, details[0].DurationSeconds, 1e-6)
	assert.InDelta(t, 1.25, details[0].Fee, 1e-9)

	// A 再等满一个时间片后轮转掉服务最久的 B
	h.ticks(t, 20)
	assert.Equal(t, []string{"A", "C"}, h.serving())
	assert.Equal(t, []string{"B"}, h.waiting())
}

func TestBoostNeverOutranksHigherSpeed(t *testing.T) {
	h := newHarness(t, 1, room("A", 28), room("B", 28))
	h.request(t, "A", 18, types.SpeedHigh)
	h.request(t, "B", 18, types.SpeedLow)

	h.ticks(t, 40)
	assert.Equal(t, []string{"A"}, h.serving())
	wait := h.s.WaitingSnapshot()
	require.Len(t, wait, 1)
	assert.True(t, wait[0].Boosted)
	assert.InDelta(t, 240, wait[0].TotalWaited, 1e-9, "wait keeps accumulating")
	assert.Greater(t, wait[0].WaitRemaining, 0.0, "slice restarts after an unsuccessful expiry")
}

func TestTargetReachedMidTick(t *testing.T) {
	r := room("101", 19.4)
	h := newHarness(t, 3, r)
	h.request(t, "101", 19.0, types.SpeedHigh)

	h.ticks(t, 3)
	assert.Equal(t, []string{"101"}, h.serving())
	assert.InDelta(t, 19.1, h.rooms.get("101").CurrentTemp, 1e-9)
	assert.Empty(t, h.details.all())

	h.ticks(t, 1)
	assert.Empty(t, h.serving())
	got := h.rooms.get("101")
	assert.Equal(t, types.StatusIdle, got.Status)
	assert.InDelta(t, 19.0, got.CurrentTemp, 1e-6)

	details := h.details.forRoom("101")
	require.Len(t, details, 1)
	assert.Equal(t, 0.4, details[0].Fee)
	assert.Equal(t, 0.4, details[0].CumulativeFee)
	assert.InDelta(t, 24, details[0].DurationSeconds, 1e-6)

	_, ok := h.s.LastRequestOf("101")
	assert.True(t, ok, "last request survives for drift replay")
}

func TestNoOvershootBilling(t *testing.T) {
	h := newHarness(t, 3, room("101", 19.45))
	h.request(t, "101", 19.0, types.SpeedHigh)

	h.ticks(t, 5)
	details := h.details.forRoom("101")
	require.Len(t, details, 1)
	assert.Equal(t, 0.45, details[0].Fee, "fee equals start minus target")
	assert.InDelta(t, 27, details[0].DurationSeconds, 1e-6, "only the served part of the last tick counts")
	assert.InDelta(t, 0.45, h.rooms.get("101").TotalFee, 1e-9)
	// 剩余 3 秒待机回温
	assert.InDelta(t, 19.025, h.rooms.get("101").CurrentTemp, 1e-6)
}

func TestFreedSlotUsedWithinSameTick(t *testing.T) {
	h := newHarness(t, 1, room("101", 19.05), room("102", 28))
	h.request(t, "101", 19.0, types.SpeedHigh)
	h.request(t, "102", 25.0, types.SpeedHigh)
	assert.Equal(t, []string{"102"}, h.waiting())

	h.ticks(t, 1)
	assert.Equal(t, []string{"102"}, h.serving())

	rec := h.record("102")
	require.NotNil(t, rec)
	assert.InDelta(t, 3, rec.ServedSeconds, 1e-6)
	assert.InDelta(t, 0.05, rec.Fee, 1e-9)
	assert.InDelta(t, 27.95, h.rooms.get("102").CurrentTemp, 1e-9)
	assert.InDelta(t, 0.05, h.s.CurrentSessionFee("102"), 1e-9)

	d := h.details.forRoom("101")
	require.Len(t, d, 1)
	assert.InDelta(t, 3, d[0].DurationSeconds, 1e-6)
	assert.Equal(t, 0.05, d[0].Fee)
}

func TestIdleDriftReplaysLastRequest(t *testing.T) {
	h := newHarness(t, 3, room("101", 24.0))
	h.request(t, "101", 24.0, types.SpeedHigh)

	h.ticks(t, 1)
	assert.Equal(t, types.StatusIdle, h.rooms.get("101").Status)
	assert.InDelta(t, 24.05, h.rooms.get("101").CurrentTemp, 1e-9)

	h.ticks(t, 18)
	assert.Equal(t, types.StatusIdle, h.rooms.get("101").Status)
	assert.InDelta(t, 24.95, h.rooms.get("101").CurrentTemp, 1e-9)

	h.ticks(t, 1)
	got := h.rooms.get("101")
	assert.Equal(t, types.StatusServing, got.Status)
	assert.InDelta(t, 25.0, got.CurrentTemp, 1e-9)
	assert.Equal(t, []string{"101"}, h.serving())
	assert.Equal(t, types.SpeedHigh, h.record("101").FanSpeed)
}

func TestHeatIdleDrift(t *testing.T) {
	r := room("101", 21.9)
	r.Mode = types.ModeHeat
	r.IsOn = true
	h := newHarness(t, 3, r)
	_, err := h.s.RequestSupply(context.Background(), "101", types.ModeHeat, 22, types.SpeedHigh)
	require.NoError(t, err)

	h.ticks(t, 1)
	assert.Equal(t, types.StatusIdle, h.rooms.get("101").Status)
	h.ticks(t, 20)
	assert.Equal(t, types.StatusServing, h.rooms.get("101").Status)
	assert.LessOrEqual(t, h.rooms.get("101").CurrentTemp, 21.0+1e-9)
}

func TestShutdownDriftsToAmbient(t *testing.T) {
	r := room("101", 28)
	r.CurrentTemp = 24
	h := newHarness(t, 3, r)

	h.ticks(t, 10)
	assert.InDelta(t, 24.5, h.rooms.get("101").CurrentTemp, 1e-9)

	h.ticks(t, 100)
	assert.Equal(t, 28.0, h.rooms.get("101").CurrentTemp, "clamped at ambient")
}

func TestModeSwitchWhileOffResetsTemperature(t *testing.T) {
	r := room("101", 30)
	r.CurrentTemp = 27
	r.InitialHeatTemp = 15
	h := newHarness(t, 3, r)

	got, err := h.s.RequestSupply(context.Background(), "101", types.ModeHeat, 22, types.SpeedMiddle)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.CurrentTemp)
	assert.Equal(t, types.ModeHeat, got.Mode)
	assert.True(t, got.IsOn)

	// 开机状态下切换模式不重置温度
	h.ticks(t, 1)
	before := h.rooms.get("101").CurrentTemp
	got, err = h.s.RequestSupply(context.Background(), "101", types.ModeCool, 18, types.SpeedMiddle)
	require.NoError(t, err)
	assert.Equal(t, before, got.CurrentTemp)
}

func TestFanSpeedChangeWhileServing(t *testing.T) {
	h := newHarness(t, 2, room("A", 28), room("B", 28), room("C", 28))
	h.request(t, "A", 20, types.SpeedHigh)
	h.request(t, "B", 20, types.SpeedHigh)
	h.request(t, "C", 20, types.SpeedMiddle)
	h.ticks(t, 2)

	t.Run("same speed only updates target", func(t *testing.T) {
		h.request(t, "A", 21, types.SpeedHigh)
		assert.Empty(t, h.details.forRoom("A"))
		assert.Equal(t, 21.0, h.rooms.get("A").TargetTemp)
		assert.InDelta(t, 12, h.record("A").ServedSeconds, 1e-9)
	})

	t.Run("lower speed closes session and yields to waiter", func(t *testing.T) {
		h.request(t, "A", 21, types.SpeedLow)
		details := h.details.forRoom("A")
		require.Len(t, details, 2, "high session and the empty low session")
		assert.Equal(t, types.SpeedHigh, details[0].FanSpeed)
		assert.InDelta(t, 12, details[0].DurationSeconds, 1e-9)
		assert.InDelta(t, 0.2, details[0].Fee, 1e-9)
		assert.Equal(t, types.SpeedLow, details[1].FanSpeed)
		assert.Zero(t, details[1].DurationSeconds)

		assert.Equal(t, []string{"B", "C"}, h.serving())
		assert.Equal(t, []string{"A"}, h.waiting())
	})
}

func TestFanSpeedChangeWhileWaiting(t *testing.T) {
	h := newHarness(t, 1, room("A", 28), room("B", 28))
	h.request(t, "A", 20, types.SpeedMiddle)
	h.request(t, "B", 20, types.SpeedLow)
	h.ticks(t, 3)

	h.request(t, "B", 22, types.SpeedLow)
	assert.Equal(t, []string{"B"}, h.waiting())
	assert.InDelta(t, 18, h.s.WaitingSnapshot()[0].TotalWaited, 1e-9, "same speed keeps the wait entry")
	assert.Equal(t, 22.0, h.rooms.get("B").TargetTemp)

	h.request(t, "B", 22, types.SpeedHigh)
	assert.Equal(t, []string{"B"}, h.serving())
	assert.Equal(t, []string{"A"}, h.waiting())
}

func TestStopSupply(t *testing.T) {
	ctx := context.Background()

	t.Run("power off bills and admits waiter", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28), room("B", 28))
		h.request(t, "A", 20, types.SpeedMiddle)
		h.request(t, "B", 20, types.SpeedMiddle)
		h.ticks(t, 2)

		require.NoError(t, h.s.StopSupply(ctx, "A", true))
		h.check(t)
		a := h.rooms.get("A")
		assert.Equal(t, types.StatusShutdown, a.Status)
		assert.False(t, a.IsOn)
		_, ok := h.s.LastRequestOf("A")
		assert.False(t, ok)
		require.Len(t, h.details.forRoom("A"), 1)
		assert.Equal(t, []string{"B"}, h.serving())
		assert.Zero(t, h.s.CurrentSessionFee("A"))
	})

	t.Run("pause keeps last request", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28), room("B", 28))
		h.request(t, "A", 20, types.SpeedMiddle)
		h.request(t, "B", 20, types.SpeedMiddle)

		require.NoError(t, h.s.StopSupply(ctx, "B", false))
		assert.Equal(t, types.StatusIdle, h.rooms.get("B").Status)
		assert.Empty(t, h.waiting())
		_, ok := h.s.LastRequestOf("B")
		assert.True(t, ok)
		assert.Empty(t, h.details.forRoom("B"), "waiting room has no session to bill")
	})

	t.Run("no session is a no-op", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28))
		require.NoError(t, h.s.StopSupply(ctx, "A", false))
		require.NoError(t, h.s.StopSupply(ctx, "A", true))
		assert.Empty(t, h.details.all())
		assert.Equal(t, types.StatusShutdown, h.rooms.get("A").Status)
	})
}

func TestPersistenceFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("load failure mutates nothing", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28))
		h.rooms.failList = true
		_, err := h.s.RequestSupply(ctx, "A", types.ModeCool, 20, types.SpeedHigh)
		var perr *PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.ErrorIs(t, err, errStoreDown)
		assert.Empty(t, h.serving())
		_, ok := h.s.LastRequestOf("A")
		assert.False(t, ok)
	})

	t.Run("room save failure keeps scheduler state and retries", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28))
		h.rooms.failSave = true
		r, err := h.s.RequestSupply(ctx, "A", types.ModeCool, 20, types.SpeedHigh)
		var perr *PersistenceError
		require.ErrorAs(t, err, &perr)
		require.NotNil(t, r)
		assert.Equal(t, types.StatusServing, r.Status)
		assert.Equal(t, []string{"A"}, h.serving())
		assert.Equal(t, 1, h.s.Stats().PendingRooms)
		assert.Equal(t, types.StatusShutdown, h.rooms.get("A").Status)

		rooms, err := h.s.Rooms(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.StatusServing, rooms[0].Status, "views overlay unsaved state")

		h.rooms.failSave = false
		h.ticks(t, 1)
		assert.Equal(t, types.StatusServing, h.rooms.get("A").Status)
		assert.InDelta(t, 27.9, h.rooms.get("A").CurrentTemp, 1e-9)
		assert.Zero(t, h.s.Stats().PendingRooms)
	})

	t.Run("detail save failure is retried exactly once", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28))
		h.request(t, "A", 20, types.SpeedHigh)
		h.ticks(t, 1)

		h.details.fail = true
		err := h.s.StopSupply(ctx, "A", true)
		var perr *PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Empty(t, h.details.all())
		assert.Equal(t, 1, h.s.Stats().PendingDetails)
		assert.Equal(t, types.StatusShutdown, h.rooms.get("A").Status)

		h.details.fail = false
		h.ticks(t, 2)
		require.Len(t, h.details.all(), 1)
		assert.Zero(t, h.s.Stats().PendingDetails)
	})
}

func TestNotificationsFollowSaves(t *testing.T) {
	h := newHarness(t, 1, room("A", 28), room("B", 28))
	h.request(t, "A", 20, types.SpeedHigh)
	assert.Equal(t, 1, h.notifier.count("A"))

	h.request(t, "B", 20, types.SpeedHigh)
	assert.Equal(t, 1, h.notifier.count("B"))
	assert.Equal(t, 1, h.notifier.count("A"), "untouched rooms are not republished")

	h.notifier.mu.Lock()
	last := h.notifier.events[len(h.notifier.events)-1]
	h.notifier.mu.Unlock()
	assert.Equal(t, types.StatusWaiting, last.Status)
}

func TestTickFollowsLogicalClock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1, room("A", 28))
	h.request(t, "A", 20, types.SpeedHigh)

	h.time.Advance(1100e6) // 1.1s -> 6 logical seconds
	require.NoError(t, h.s.Tick(ctx))
	assert.InDelta(t, 6, h.record("A").ServedSeconds, 1e-9)

	h.time.Advance(100e6) // 1.2s -> 7
	require.NoError(t, h.s.Tick(ctx))
	assert.InDelta(t, 7, h.record("A").ServedSeconds, 1e-9)

	require.NoError(t, h.s.Tick(ctx), "no elapsed logical second is a no-op")
	assert.Equal(t, int64(2), h.s.Stats().Ticks)

	h.rooms.failList = true
	h.time.Advance(1e9)
	require.Error(t, h.s.Tick(ctx))
	h.rooms.failList = false
	h.time.Advance(1e9)
	require.NoError(t, h.s.Tick(ctx))
	assert.InDelta(t, 19, h.record("A").ServedSeconds, 1e-9, "time from the failed tick carries over")
}

func TestRestore(t *testing.T) {
	serving := room("101", 26)
	serving.IsOn, serving.Status, serving.FanSpeed, serving.TargetTemp = true, types.StatusServing, types.SpeedHigh, 20
	waiting := room("102", 26)
	waiting.IsOn, waiting.Status, waiting.FanSpeed, waiting.TargetTemp = true, types.StatusWaiting, types.SpeedLow, 20
	idle := room("103", 25)
	idle.IsOn, idle.Status = true, types.StatusIdle
	off := room("104", 28)

	h := newHarness(t, 1, serving, waiting, idle, off)
	require.NoError(t, h.s.Restore(context.Background()))
	h.check(t)

	assert.Equal(t, []string{"101"}, h.serving())
	assert.Equal(t, []string{"102"}, h.waiting())
	_, ok := h.s.LastRequestOf("103")
	assert.True(t, ok)
	_, ok = h.s.LastRequestOf("104")
	assert.False(t, ok)
}

func TestShutdownClosesOpenSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("fees are persisted and rooms re-admitted after restart", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28), room("B", 28))
		h.request(t, "A", 20, types.SpeedHigh)
		h.request(t, "B", 20, types.SpeedMiddle)
		h.ticks(t, 30)
		assert.InDelta(t, 25, h.rooms.get("A").CurrentTemp, 1e-9)

		require.NoError(t, h.s.Shutdown(ctx))
		details := h.details.forRoom("A")
		require.Len(t, details, 1)
		assert.Equal(t, 3.0, details[0].Fee)
		assert.InDelta(t, 180, details[0].DurationSeconds, 1e-9)
		assert.Empty(t, h.details.forRoom("B"), "waiting rooms have no open session")
		assert.Empty(t, h.serving())
		assert.Empty(t, h.waiting())

		a := h.rooms.get("A")
		assert.True(t, a.IsOn)
		assert.Equal(t, types.StatusServing, a.Status)
		assert.InDelta(t, 3.0, a.TotalFee, 1e-9)
		assert.Equal(t, types.StatusWaiting, h.rooms.get("B").Status)

		restarted, err := New(h.s.Config(), h.s.Clock(), h.rooms, h.details, nil)
		require.NoError(t, err)
		require.NoError(t, restarted.Restore(ctx))
		assert.InDelta(t, 0, restarted.CurrentSessionFee("A"), 1e-9)
		views := restarted.ServiceSnapshot()
		require.Len(t, views, 1)
		assert.Equal(t, "A", views[0].RoomID)
		assert.Equal(t, types.SpeedHigh, views[0].FanSpeed)
	})

	t.Run("pending details are flushed", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28))
		h.request(t, "A", 20, types.SpeedHigh)
		h.ticks(t, 1)

		h.details.fail = true
		require.Error(t, h.s.StopSupply(ctx, "A", false))
		assert.Equal(t, 1, h.s.Stats().PendingDetails)

		h.details.fail = false
		require.NoError(t, h.s.Shutdown(ctx))
		require.Len(t, h.details.all(), 1)
		assert.Zero(t, h.s.Stats().PendingDetails)
	})

	t.Run("failed flush is reported", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28))
		h.request(t, "A", 20, types.SpeedHigh)
		h.ticks(t, 1)

		h.details.fail = true
		var perr *PersistenceError
		require.ErrorAs(t, h.s.Shutdown(ctx), &perr)
		assert.Equal(t, 1, h.s.Stats().PendingDetails)
	})
}

func TestPowerOffThenRunsInsideLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1, room("A", 28))
	h.request(t, "A", 20, types.SpeedHigh)
	h.ticks(t, 1)

	ran := false
	err := h.s.PowerOffThen(ctx, "A", func() error {
		ran = true
		assert.False(t, h.s.mu.TryLock())
		assert.Len(t, h.details.forRoom("A"), 1, "last session is persisted before then runs")
		assert.Equal(t, types.StatusShutdown, h.rooms.get("A").Status)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	t.Run("persistence failure skips then", func(t *testing.T) {
		h := newHarness(t, 1, room("A", 28))
		h.request(t, "A", 20, types.SpeedHigh)
		h.ticks(t, 1)
		h.details.fail = true

		err := h.s.PowerOffThen(ctx, "A", func() error {
			t.Fatal("then must not run when the last detail is not saved")
			return nil
		})
		var perr *PersistenceError
		assert.ErrorAs(t, err, &perr)
	})
}

func TestRequestSupplyGuarded(t *testing.T) {
	h := newHarness(t, 1, room("A", 28))
	vacant := errors.New("vacant")
	_, err := h.s.RequestSupplyGuarded(context.Background(), "A", types.ModeCool, 22, types.SpeedHigh,
		func(room db.Room) error {
			assert.Equal(t, "A", room.RoomID)
			return vacant
		})
	assert.ErrorIs(t, err, vacant)
	assert.Empty(t, h.serving())
	_, ok := h.s.LastRequestOf("A")
	assert.False(t, ok, "rejected requests leave no trace")
	assert.False(t, h.rooms.get("A").IsOn)
}

func TestLogicalSinceCoversTickLag(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1, room("A", 28))
	origin := h.time.Now()

	// 真实 1.9 秒后入住，此时调度器还停在 6 逻辑秒
	h.time.Advance(1100e6)
	require.NoError(t, h.s.Tick(ctx))
	h.time.Advance(800e6)
	checkIn := h.time.Now()
	h.request(t, "A", 20, types.SpeedHigh)
	require.NoError(t, h.s.StopSupply(ctx, "A", true))

	details := h.details.forRoom("A")
	require.Len(t, details, 1)
	assert.True(t, details[0].StartTime.Before(h.s.Clock().ToLogical(checkIn)))
	assert.False(t, details[0].StartTime.Before(h.s.LogicalSince(checkIn)))
	assert.Equal(t, origin.Add(11400*time.Millisecond-7*time.Second), h.s.LogicalSince(checkIn))
}

func TestLockedSerializesWithScheduler(t *testing.T) {
	h := newHarness(t, 1, room("A", 28))
	want := errors.New("checked")
	err := h.s.Locked(func() error {
		assert.False(t, h.s.mu.TryLock())
		return want
	})
	assert.Equal(t, want, err)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{MaxServiceUnits: 0, TimeSliceSeconds: 1, TimeScaleMs: 1}, nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{MaxServiceUnits: 1, TimeSliceSeconds: 1, TimeScaleMs: 1}, nil, nil, nil, nil)
	assert.Error(t, err, "clock is required")
}

func TestRoomsIncludeSessionFee(t *testing.T) {
	h := newHarness(t, 1, room("A", 28), room("B", 28))
	h.request(t, "A", 20, types.SpeedHigh)
	h.ticks(t, 1)

	views, err := h.s.Rooms(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.InDelta(t, 0.1, views[0].CurrentSessionFee, 1e-9)
	assert.Zero(t, views[1].CurrentSessionFee)
	assert.Equal(t, "B", views[1].RoomID)
}
