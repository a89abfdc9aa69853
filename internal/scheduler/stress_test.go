package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pch10086/BUPT-Hotel/internal/clock"
	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

func TestRandomWorkloadAccounting(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	speeds := []types.FanSpeed{types.SpeedLow, types.SpeedMiddle, types.SpeedHigh}

	var ids []string
	var seeds []db.Room
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("%d", 301+i)
		ids = append(ids, id)
		seeds = append(seeds, room(id, 26+rng.Float64()*6))
	}
	h := newHarness(t, 3, seeds...)

	for i := 0; i < 400; i++ {
		id := ids[rng.Intn(len(ids))]
		switch op := rng.Intn(10); {
		case op < 4:
			target := float64(18 + rng.Intn(11))
			_, err := h.s.RequestSupply(ctx, id, types.ModeCool, target, speeds[rng.Intn(len(speeds))])
			require.NoError(t, err)
		case op < 5:
			require.NoError(t, h.s.StopSupply(ctx, id, rng.Intn(2) == 0))
		default:
			require.NoError(t, h.s.advance(ctx, float64(1+rng.Intn(12))))
		}
		h.check(t)
	}
	for _, id := range ids {
		require.NoError(t, h.s.StopSupply(ctx, id, true))
	}

	st := h.s.Stats()
	details := h.details.all()
	assert.Empty(t, h.serving())
	assert.Empty(t, h.waiting())
	assert.Equal(t, st.Admissions, st.SessionsClosed)
	assert.Equal(t, int(st.SessionsClosed), len(details), "every session billed exactly once")

	for _, id := range ids {
		sum, n := 0.0, 0
		for _, d := range h.details.forRoom(id) {
			assert.GreaterOrEqual(t, d.Fee, 0.0)
			assert.GreaterOrEqual(t, d.DurationSeconds, 0.0)
			sum += d.Fee
			n++
		}
		r := h.rooms.get(id)
		assert.InDelta(t, r.TotalFee, sum, 0.005*float64(n)+1e-9, "room %s", id)
		assert.GreaterOrEqual(t, r.CurrentTemp, 18.0-1e-9, "room %s never overshoots", id)
	}
}

func TestDriverStartStop(t *testing.T) {
	clk, err := clock.New(10000)
	require.NoError(t, err)
	s, err := New(Config{MaxServiceUnits: 1, TimeSliceSeconds: 120, TimeScaleMs: 10000, TickInterval: 10 * time.Millisecond},
		clk, newMemRooms(), &memDetails{}, nil)
	require.NoError(t, err)

	d := NewDriver(s)
	assert.Equal(t, time.Second, d.interval, "sub-second intervals are raised to one second")
	require.NoError(t, d.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}
