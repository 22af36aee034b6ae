package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"simrig-booking-backend/config"
	"simrig-booking-backend/internal/apperr"
	"simrig-booking-backend/internal/db"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/store"
)

const testDate = "2026-03-10"

var bangkok = mustZone("Asia/Bangkok")

func mustZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return store.NewGormStore(gormDB)
}

func businessHours(open, close string) config.BusinessConfig {
	return config.BusinessConfig{
		Timezone:           "Asia/Bangkok",
		Open:               open,
		Close:              close,
		SlotMinutes:        30,
		BookingHorizonDays: 7,
	}
}

func newTestEngine(t *testing.T, s store.Store, cfg config.BusinessConfig) *Engine {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC) }
	e, err := NewEngine(s, cfg, now, zap.NewNop())
	require.NoError(t, err)
	return e
}

func addMachine(t *testing.T, s store.Store, id string) {
	t.Helper()
	require.NoError(t, s.SaveMachine(context.Background(), &model.Machine{
		ID: id, Name: id, IsActive: true, Status: model.MachineAvailable,
	}))
}

func book(t *testing.T, s store.Store, machineID, date, clock string, minutes int, customerID string) *model.Booking {
	t.Helper()
	start, err := localtime.ToInstant(date, clock, bangkok)
	require.NoError(t, err)
	end, cross := localtime.EndInstant(start, minutes, bangkok)
	_, localEnd := localtime.LocalParts(end, bangkok)
	b := &model.Booking{
		MachineID:       machineID,
		CustomerName:    "Somchai",
		Phone:           "081-234-5678",
		StartAt:         start,
		EndAt:           end,
		LocalDate:       date,
		LocalStart:      clock,
		LocalEnd:        localEnd,
		DurationMinutes: minutes,
		Timezone:        bangkok.String(),
		IsCrossMidnight: cross,
		Status:          model.BookingConfirmed,
	}
	if customerID != "" {
		b.CustomerID = &customerID
	}
	require.NoError(t, s.CreateBooking(context.Background(), b, FindConflict))
	return b
}

func localRef(t *testing.T, date, clock string) *time.Time {
	t.Helper()
	ref, err := localtime.ToInstant(date, clock, bangkok)
	require.NoError(t, err)
	return &ref
}

func TestInterval_OverlapsIsSymmetric(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	at := func(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

	var intervals []Interval
	for s := 0; s <= 120; s += 15 {
		for d := 15; d <= 90; d += 15 {
			intervals = append(intervals, Interval{Start: at(s), End: at(s + d)})
		}
	}
	for _, a := range intervals {
		for _, b := range intervals {
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "%v / %v", a, b)
		}
	}

	assert.True(t, Interval{at(0), at(60)}.Overlaps(Interval{at(30), at(60)}))
	assert.False(t, Interval{at(0), at(60)}.Overlaps(Interval{at(60), at(90)}), "touching ranges do not overlap")
}

func TestFindConflict(t *testing.T) {
	base := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
	existing := []model.Booking{
		{ID: "a", MachineID: "m1", StartAt: base, EndAt: base.Add(time.Hour), Status: model.BookingConfirmed},
		{ID: "b", MachineID: "m1", StartAt: base.Add(2 * time.Hour), EndAt: base.Add(3 * time.Hour), Status: model.BookingCancelled},
	}

	testCases := []struct {
		name      string
		candidate model.Booking
		wantID    string
	}{
		{"overlap", model.Booking{MachineID: "m1", StartAt: base.Add(30 * time.Minute), EndAt: base.Add(90 * time.Minute)}, "a"},
		{"adjacent", model.Booking{MachineID: "m1", StartAt: base.Add(time.Hour), EndAt: base.Add(90 * time.Minute)}, ""},
		{"cancelled booking ignored", model.Booking{MachineID: "m1", StartAt: base.Add(2 * time.Hour), EndAt: base.Add(150 * time.Minute)}, ""},
		{"own row ignored", model.Booking{ID: "a", MachineID: "m1", StartAt: base.Add(15 * time.Minute), EndAt: base.Add(75 * time.Minute)}, ""},
		{"other machine", model.Booking{MachineID: "m2", StartAt: base, EndAt: base.Add(time.Hour)}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindConflict(&tc.candidate, existing)
			if tc.wantID == "" {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, tc.wantID, got.ID)
			}
		})
	}
}

func TestNewEngine_RejectsBadHours(t *testing.T) {
	_, err := NewEngine(nil, businessHours("22:00", "10:00"), nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewEngine(nil, businessHours("10:00", "25:00"), nil, zap.NewNop())
	assert.Error(t, err)

	cfg := businessHours("10:00", "22:00")
	cfg.Timezone = "Mars/Olympus"
	_, err = NewEngine(nil, cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_IsSlotAvailable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addMachine(t, s, "M1")
	book(t, s, "M1", testDate, "14:00", 60, "")
	e := newTestEngine(t, s, businessHours("10:00", "24:00"))

	testCases := []struct {
		name     string
		query    SlotQuery
		want     bool
		wantKind apperr.Kind
	}{
		{"overlapping start", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "14:30", DurationMinutes: 30}, false, ""},
		{"adjacent start", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "15:00", DurationMinutes: 30}, true, ""},
		{"ends where booking starts", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "13:00", DurationMinutes: 60}, true, ""},
		{"covers booking", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "13:30", DurationMinutes: 120}, false, ""},
		{"passed start", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "10:00", DurationMinutes: 30, ReferenceTime: localRef(t, testDate, "10:05")}, false, ""},
		{"start equal to reference", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "10:30", DurationMinutes: 30, ReferenceTime: localRef(t, testDate, "10:30")}, true, ""},
		{"explicit timezone", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "07:30", DurationMinutes: 30, Timezone: "UTC"}, false, ""},
		{"unknown machine", SlotQuery{MachineID: "M9", Date: testDate, StartTime: "12:00", DurationMinutes: 30}, false, apperr.KindNotFound},
		{"malformed time", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "2pm", DurationMinutes: 30}, false, apperr.KindInvalidInput},
		{"malformed date", SlotQuery{MachineID: "M1", Date: "10/03/2026", StartTime: "12:00", DurationMinutes: 30}, false, apperr.KindInvalidInput},
		{"zero duration", SlotQuery{MachineID: "M1", Date: testDate, StartTime: "12:00"}, false, apperr.KindInvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.IsSlotAvailable(ctx, tc.query)
			if tc.wantKind != "" {
				assert.Equal(t, tc.wantKind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// failingRepo serves machines but fails every booking read.
type failingRepo struct {
	Repository
}

func (failingRepo) GetMachine(_ context.Context, id string) (*model.Machine, error) {
	return &model.Machine{ID: id, IsActive: true}, nil
}

func (failingRepo) ListBookingsByMachine(context.Context, string, time.Time, time.Time) ([]model.Booking, error) {
	return nil, apperr.New(apperr.KindStoreUnavailable, "connection refused")
}

func TestEngine_StoreFailureIsNotUnavailable(t *testing.T) {
	e, err := NewEngine(failingRepo{}, businessHours("10:00", "22:00"), nil, zap.NewNop())
	require.NoError(t, err)

	ok, err := e.IsSlotAvailable(context.Background(), SlotQuery{MachineID: "M1", Date: testDate, StartTime: "12:00", DurationMinutes: 30})
	assert.False(t, ok)
	assert.Equal(t, apperr.KindStoreUnavailable, apperr.KindOf(err))

	_, err = e.DaySchedule(context.Background(), DayQuery{MachineID: "M1", Date: testDate})
	assert.Equal(t, apperr.KindStoreUnavailable, apperr.KindOf(err))
}

func TestEngine_DaySchedule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addMachine(t, s, "M1")
	owned := book(t, s, "M1", testDate, "14:00", 60, "cust-1")
	e := newTestEngine(t, s, businessHours("10:00", "24:00"))

	day, err := e.DaySchedule(ctx, DayQuery{MachineID: "M1", Date: testDate, ReferenceTime: localRef(t, testDate, "10:05")})
	require.NoError(t, err)

	assert.Equal(t, 28, day.Total)
	assert.Equal(t, day.Total, day.Available+day.Booked+day.Passed)
	assert.Equal(t, 1, day.Passed)
	assert.Equal(t, 2, day.Booked)
	assert.Equal(t, "Asia/Bangkok", day.Timezone)

	first := day.Slots[0]
	assert.Equal(t, "10:00", first.LocalStart)
	assert.Equal(t, "10:30", first.LocalEnd)
	assert.Equal(t, SlotPassed, first.Status)

	last := day.Slots[len(day.Slots)-1]
	assert.Equal(t, "23:30", last.LocalStart)
	assert.Equal(t, "24:00", last.LocalEnd)

	for i := 1; i < len(day.Slots); i++ {
		assert.True(t, day.Slots[i-1].End.Equal(day.Slots[i].Start), "slots must be contiguous")
	}

	var booked []TimeSlot
	for _, slot := range day.Slots {
		if slot.Status == SlotBooked {
			booked = append(booked, slot)
		}
	}
	require.Len(t, booked, 2)
	assert.Equal(t, "14:00", booked[0].LocalStart)
	assert.Equal(t, "14:30", booked[1].LocalStart)
	assert.Equal(t, owned.ID, booked[0].Booking.ID)
	assert.Equal(t, "S***", booked[0].Booking.CustomerName)
	assert.Equal(t, "***5678", booked[0].Booking.Phone)

	t.Run("owner sees full details", func(t *testing.T) {
		day, err := e.DaySchedule(ctx, DayQuery{MachineID: "M1", Date: testDate, ViewerCustomerID: "cust-1"})
		require.NoError(t, err)
		assert.Equal(t, 0, day.Passed)
		for _, slot := range day.Slots {
			if slot.Status == SlotBooked {
				assert.Equal(t, "Somchai", slot.Booking.CustomerName)
				assert.Equal(t, "081-234-5678", slot.Booking.Phone)
			}
		}
	})

	t.Run("passed wins over booked", func(t *testing.T) {
		day, err := e.DaySchedule(ctx, DayQuery{MachineID: "M1", Date: testDate, ReferenceTime: localRef(t, testDate, "16:00")})
		require.NoError(t, err)
		assert.Equal(t, 0, day.Booked)
		assert.Equal(t, 12, day.Passed)
		assert.Equal(t, day.Total, day.Available+day.Booked+day.Passed)
	})

	t.Run("unknown machine", func(t *testing.T) {
		_, err := e.DaySchedule(ctx, DayQuery{MachineID: "nope", Date: testDate})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestEngine_DayScheduleUnevenHours(t *testing.T) {
	s := newTestStore(t)
	addMachine(t, s, "M1")
	cfg := businessHours("10:00", "11:45")
	e := newTestEngine(t, s, cfg)

	day, err := e.DaySchedule(context.Background(), DayQuery{MachineID: "M1", Date: testDate})
	require.NoError(t, err)
	require.Len(t, day.Slots, 4)
	assert.Equal(t, "11:30", day.Slots[3].LocalStart)
	assert.Equal(t, "11:45", day.Slots[3].LocalEnd)
}

func TestEngine_CrossMidnightBooking(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addMachine(t, s, "M1")
	b := book(t, s, "M1", testDate, "23:30", 90, "")
	assert.True(t, b.IsCrossMidnight)
	assert.Equal(t, "01:00", b.LocalEnd)

	e := newTestEngine(t, s, businessHours("00:00", "24:00"))

	day, err := e.DaySchedule(ctx, DayQuery{MachineID: "M1", Date: testDate})
	require.NoError(t, err)
	assert.Equal(t, 48, day.Total)
	assert.Equal(t, 1, day.Booked)
	assert.Equal(t, SlotBooked, day.Slots[47].Status)

	next, err := e.DaySchedule(ctx, DayQuery{MachineID: "M1", Date: "2026-03-11"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Booked)
	assert.Equal(t, SlotBooked, next.Slots[0].Status)
	assert.Equal(t, SlotBooked, next.Slots[1].Status)
	assert.Equal(t, SlotAvailable, next.Slots[2].Status)
}

func TestEngine_AvailableDates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addMachine(t, s, "M1")
	addMachine(t, s, "M2")
	require.NoError(t, s.SaveMachine(ctx, &model.Machine{ID: "M3", Name: "M3", Status: model.MachineMaintenance}))
	book(t, s, "M1", testDate, "10:00", 60, "")
	book(t, s, "M2", "2026-03-11", "12:00", 30, "")

	e := newTestEngine(t, s, businessHours("10:00", "12:00"))

	dates, err := e.AvailableDates(ctx, DatesQuery{Days: 3})
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, DateAvailability{Date: testDate, Total: 8, Available: 6}, dates[0])
	assert.Equal(t, DateAvailability{Date: "2026-03-11", Total: 8, Available: 8}, dates[1], "12:00 is past closing")
	assert.Equal(t, "2026-03-12", dates[2].Date)

	single, err := e.AvailableDates(ctx, DatesQuery{From: testDate, Days: 1, MachineID: "M1"})
	require.NoError(t, err)
	assert.Equal(t, []DateAvailability{{Date: testDate, Total: 4, Available: 2}}, single)

	capped, err := e.AvailableDates(ctx, DatesQuery{Days: 90})
	require.NoError(t, err)
	assert.Len(t, capped, 7)

	t.Run("zero horizon is unlimited", func(t *testing.T) {
		cfg := businessHours("10:00", "12:00")
		cfg.BookingHorizonDays = 0
		open := newTestEngine(t, s, cfg)
		assert.Zero(t, open.HorizonDays())

		dates, err := open.AvailableDates(ctx, DatesQuery{Days: 30})
		require.NoError(t, err)
		assert.Len(t, dates, 30)
	})
}

func TestEngine_FreeStartTimes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addMachine(t, s, "M1")
	book(t, s, "M1", testDate, "11:00", 60, "")
	e := newTestEngine(t, s, businessHours("10:00", "13:00"))

	starts, err := e.FreeStartTimes(ctx, FreeStartsQuery{MachineID: "M1", Date: testDate, DurationMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "12:00", "12:30"}, startClocks(starts))
	assert.Equal(t, testDate, starts[0].Date)

	starts, err = e.FreeStartTimes(ctx, FreeStartsQuery{
		MachineID: "M1", Date: testDate, DurationMinutes: 30, ReferenceTime: localRef(t, testDate, "10:10"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30", "12:00", "12:30"}, startClocks(starts))

	_, err = e.FreeStartTimes(ctx, FreeStartsQuery{MachineID: "M1", Date: testDate})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	t.Run("rendered in another zone", func(t *testing.T) {
		starts, err := e.FreeStartTimes(ctx, FreeStartsQuery{MachineID: "M1", Date: testDate, DurationMinutes: 60, Timezone: "UTC"})
		require.NoError(t, err)
		assert.Equal(t, []string{"03:00", "05:00", "05:30"}, startClocks(starts))
		for _, fs := range starts {
			assert.Equal(t, testDate, fs.Date)
			_, clock := localtime.LocalParts(fs.Start, bangkok)
			assert.True(t, e.WithinHours(clock), "start %s is outside business hours", clock)
		}
	})
}

func startClocks(starts []FreeStart) []string {
	out := make([]string, 0, len(starts))
	for _, fs := range starts {
		out = append(out, fs.StartTime)
	}
	return out
}

func TestEngine_DayScheduleInOtherZone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addMachine(t, s, "M1")
	book(t, s, "M1", "2026-03-12", "14:00", 60, "")
	e := newTestEngine(t, s, businessHours("10:00", "22:00"))

	local, err := e.DaySchedule(ctx, DayQuery{MachineID: "M1", Date: "2026-03-12"})
	require.NoError(t, err)
	day, err := e.DaySchedule(ctx, DayQuery{MachineID: "M1", Date: "2026-03-12", Timezone: "UTC"})
	require.NoError(t, err)

	assert.Equal(t, "UTC", day.Timezone)
	assert.Equal(t, 24, day.Total)
	assert.Equal(t, 2, day.Booked)
	assert.Equal(t, day.Total, day.Available+day.Booked+day.Passed)

	first := day.Slots[0]
	assert.Equal(t, "2026-03-12", first.LocalDate)
	assert.Equal(t, "03:00", first.LocalStart)
	last := day.Slots[len(day.Slots)-1]
	assert.Equal(t, "14:30", last.LocalStart)
	assert.Equal(t, "15:00", last.LocalEnd)

	require.Len(t, local.Slots, len(day.Slots))
	for i := range day.Slots {
		assert.True(t, local.Slots[i].Start.Equal(day.Slots[i].Start), "slot %d moved with the zone", i)
		assert.Equal(t, local.Slots[i].Status, day.Slots[i].Status)
	}

	t.Run("unknown zone", func(t *testing.T) {
		_, err := e.DaySchedule(ctx, DayQuery{MachineID: "M1", Date: "2026-03-12", Timezone: "Mars/Olympus"})
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	})
}

func TestMasking(t *testing.T) {
	assert.Equal(t, "S***", MaskName("  Somchai "))
	assert.Equal(t, "ส***", MaskName("สมชาย"))
	assert.Equal(t, "", MaskName(""))
	assert.Equal(t, "***5678", MaskPhone("+66 81 234 5678"))
	assert.Equal(t, "***", MaskPhone("123"))
}
