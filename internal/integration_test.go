package internal

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"simrig-booking-backend/config"
	"simrig-booking-backend/internal/booking"
	"simrig-booking-backend/internal/db"
	"simrig-booking-backend/internal/housekeeping"
	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/notification"
	"simrig-booking-backend/internal/queue"
	"simrig-booking-backend/internal/schedule"
	"simrig-booking-backend/internal/session"
	"simrig-booking-backend/internal/store"
)

type capturingSender struct {
	sent chan string
}

func (s *capturingSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	s.sent <- string(payload)
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

// TestVenueDayLifecycle runs a booking and two walk-ins through one operating
// day and checks machine, booking and queue state at each step.
func TestVenueDayLifecycle(t *testing.T) {
	// --- Test Setup ---
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := store.NewGormStore(gormDB)
	require.NoError(t, s.SaveMachine(ctx, &model.Machine{ID: "M1", Name: "Rig One", IsActive: true, Status: model.MachineAvailable}))

	// 09:00 in Bangkok.
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	business := config.BusinessConfig{
		Timezone:              "Asia/Bangkok",
		Open:                  "10:00",
		Close:                 "22:00",
		SlotMinutes:           30,
		AverageSessionMinutes: 30,
		BookingHorizonDays:    14,
	}

	engine, err := schedule.NewEngine(s, business, clock, zap.NewNop())
	require.NoError(t, err)
	bookings := booking.NewService(s, engine, zap.NewNop())
	sessions := session.NewService(s, clock, zap.NewNop())

	sender := &capturingSender{sent: make(chan string, 4)}
	workers := notification.NewWorkerPool(2, 10, s, &webpush.Options{}, zap.NewNop())
	workers.SetSender(sender)
	workers.Start(ctx)

	queues, err := queue.NewService(s, workers, business, clock, zap.NewNop())
	require.NoError(t, err)
	sweeper, err := housekeeping.NewService(config.HousekeepingConfig{}, business, s, clock, zap.NewNop())
	require.NoError(t, err)

	// --- Booking: 10:00 to 11:00 ---
	b, err := bookings.Create(ctx, booking.CreateRequest{
		MachineID: "M1", CustomerName: "Somchai", Phone: "0812345678",
		Date: "2026-03-10", StartTime: "10:00", DurationMinutes: 60,
	})
	require.NoError(t, err)

	day, err := engine.DaySchedule(ctx, schedule.DayQuery{MachineID: "M1", Date: "2026-03-10", ReferenceTime: &now})
	require.NoError(t, err)
	assert.Equal(t, 2, day.Booked)
	assert.Equal(t, 22, day.Available)

	now = now.Add(time.Hour)
	sess, err := bookings.CheckIn(ctx, b.ID)
	require.NoError(t, err)

	// --- Walk-ins queue up while the rig is busy ---
	first, err := queues.Join(ctx, queue.JoinRequest{CustomerName: "Ann", Phone: "0811111111", MachineID: "M1"})
	require.NoError(t, err)
	second, err := queues.Join(ctx, queue.JoinRequest{CustomerName: "Ben", Phone: "0822222222", MachineID: "M1"})
	require.NoError(t, err)
	require.NoError(t, s.SaveSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://push.example.com/ann", P256DH: "k", Auth: "a", QueueEntryID: first.ID, CreatedAt: now,
	}))

	status, err := queues.MyStatus(ctx, "", "0822222222")
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, 1, status[0].QueueAhead)

	// --- Booking ends, first walk-in is called and seated ---
	now = now.Add(55 * time.Minute)
	amount := decimal.NewFromInt(300)
	ended, err := sessions.End(ctx, sess.ID, &amount)
	require.NoError(t, err)
	assert.Equal(t, 55, *ended.DurationMinutes)

	done, err := bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, done.Status)

	_, err = queues.Call(ctx, first.ID)
	require.NoError(t, err)
	select {
	case msg := <-sender.sent:
		assert.Equal(t, "Ticket 1: it's your turn on Rig One!", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification was sent")
	}

	_, walkIn, err := queues.Seat(ctx, first.ID, "M1")
	require.NoError(t, err)

	m, err := s.GetMachine(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, model.MachineOccupied, m.Status)

	now = now.Add(30 * time.Minute)
	_, err = sessions.End(ctx, walkIn.ID, nil)
	require.NoError(t, err)

	finished, err := queues.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCompleted, finished.Status)

	status, err = queues.MyStatus(ctx, "", "0822222222")
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, 0, status[0].QueueAhead)

	// --- Ben never shows up; the next morning's sweep closes his ticket ---
	now = now.Add(20 * time.Hour)
	assert.Equal(t, int64(1), sweeper.SweepOnce(ctx))

	stale, err := queues.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCancelled, stale.Status)

	next, err := queues.NextQueueNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	st, err := sessions.Stats(ctx, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), now)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Sessions)
	assert.Equal(t, 85, st.TotalMinutes)
}
