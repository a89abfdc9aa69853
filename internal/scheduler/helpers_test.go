package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pch10086/BUPT-Hotel/internal/clock"
	"github.com/pch10086/BUPT-Hotel/internal/db"
	"github.com/pch10086/BUPT-Hotel/internal/types"
)

var errStoreDown = errors.New("store unavailable")

type memRooms struct {
	mu       sync.Mutex
	rooms    map[string]db.Room
	failList bool
	failSave bool
	saves    int
}

func newMemRooms(rooms ...db.Room) *memRooms {
	m := &memRooms{rooms: make(map[string]db.Room)}
	for _, r := range rooms {
		m.rooms[r.RoomID] = r
	}
	return m
}

func (m *memRooms) GetByRoomID(_ context.Context, id string) (*db.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, db.ErrRoomNotFound
	}
	return &r, nil
}

func (m *memRooms) Save(_ context.Context, room *db.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errStoreDown
	}
	if _, ok := m.rooms[room.RoomID]; !ok {
		return db.ErrRoomNotFound
	}
	m.rooms[room.RoomID] = *room
	m.saves++
	return nil
}

func (m *memRooms) ListAll(_ context.Context) ([]db.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errStoreDown
	}
	out := make([]db.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out, nil
}

func (m *memRooms) get(id string) db.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[id]
}

func (m *memRooms) set(r db.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.RoomID] = r
}

type memDetails struct {
	mu      sync.Mutex
	details []db.BillingDetail
	fail    bool
}

func (m *memDetails) SaveDetail(_ context.Context, d *db.BillingDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	m.details = append(m.details, *d)
	return nil
}

func (m *memDetails) all() []db.BillingDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]db.BillingDetail(nil), m.details...)
}

func (m *memDetails) forRoom(id string) []db.BillingDetail {
	var out []db.BillingDetail
	for _, d := range m.all() {
		if d.RoomID == id {
			out = append(out, d)
		}
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []db.Room
}

func (n *recordingNotifier) PublishStatus(_ string, room db.Room) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, room)
}

func (n *recordingNotifier) count(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, r := range n.events {
		if r.RoomID == id {
			c++
		}
	}
	return c
}

type manualTime struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// room 构造一个已入住、关机的房间
func room(id string, temp float64) db.Room {
	checkIn := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return db.Room{
		RoomID:      id,
		Mode:        types.ModeCool,
		CurrentTemp: temp,
		TargetTemp:  25,
		InitialTemp: temp,
		FanSpeed:    types.SpeedMiddle,
		Status:      types.StatusShutdown,
		CheckInTime: &checkIn,
		PricePerDay: 100,
	}
}

type harness struct {
	s        *Scheduler
	rooms    *memRooms
	details  *memDetails
	notifier *recordingNotifier
	time     *manualTime
}

func newHarness(t *testing.T, maxUnits int, rooms ...db.Room) *harness {
	t.Helper()
	h := &harness{
		rooms:    newMemRooms(rooms...),
		details:  &memDetails{},
		notifier: &recordingNotifier{},
		time:     &manualTime{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	clk, err := clock.New(10000, clock.WithSource(h.time.Now))
	require.NoError(t, err)
	h.s, err = New(Config{
		MaxServiceUnits:  maxUnits,
		TimeSliceSeconds: 120,
		TimeScaleMs:      10000,
		TickInterval:     time.Second,
	}, clk, h.rooms, h.details, h.notifier)
	require.NoError(t, err)
	return h
}

func (h *harness) request(t *testing.T, id string, target float64, speed types.FanSpeed) *db.Room {
	t.Helper()
	r, err := h.s.RequestSupply(context.Background(), id, types.ModeCool, target, speed)
	require.NoError(t, err)
	h.check(t)
	return r
}

// ticks 以 6 逻辑秒（真实 1 秒）为步长推进 n 次
func (h *harness) ticks(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.s.advance(context.Background(), 6))
		h.check(t)
	}
}

func (h *harness) serving() []string {
	var ids []string
	for _, v := range h.s.ServiceSnapshot() {
		ids = append(ids, v.RoomID)
	}
	return ids
}

func (h *harness) waiting() []string {
	var ids []string
	for _, v := range h.s.WaitingSnapshot() {
		ids = append(ids, v.RoomID)
	}
	return ids
}

func (h *harness) record(id string) *ServiceRecord {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	rec, ok := h.s.service[id]
	if !ok {
		return nil
	}
	c := *rec
	return &c
}

// check 从外部视角校验容量、互斥与无遗漏抢占
func (h *harness) check(t *testing.T) {
	t.Helper()
	svc := h.s.ServiceSnapshot()
	wait := h.s.WaitingSnapshot()
	limit := h.s.Config().MaxServiceUnits

	require.LessOrEqual(t, len(svc), limit, "capacity")
	inService := map[string]types.FanSpeed{}
	for _, v := range svc {
		inService[v.RoomID] = v.FanSpeed
	}
	for _, w := range wait {
		_, dup := inService[w.RoomID]
		require.False(t, dup, "room %s in both sets", w.RoomID)
	}
	if len(wait) > 0 {
		require.Len(t, svc, limit, "waiting rooms while service units are free")
	}
	for _, w := range wait {
		eff := w.FanSpeed.Priority()
		if w.Boosted {
			eff++
		}
		for _, v := range svc {
			require.LessOrEqual(t, eff, v.FanSpeed.Priority(),
				"waiting %s (%d) outranks serving %s (%s)", w.RoomID, eff, v.RoomID, v.FanSpeed)
		}
	}
}
