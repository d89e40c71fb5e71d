package completion

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/schedule"
)

func newLocker(t *testing.T) (*miniredis.Miniredis, redisclient.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redisclient.NewRedisLocker(client, time.Minute)
}

type countingCompleter struct {
	calls  int
	cutoff time.Time
}

func (c *countingCompleter) CompleteElapsed(_ context.Context, cutoff time.Time) (int, error) {
	c.calls++
	c.cutoff = cutoff
	return 3, nil
}

func TestRunOnceAppliesGrace(t *testing.T) {
	_, locker := newLocker(t)
	completer := &countingCompleter{}
	now := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)

	s := NewSweeper(completer, locker, 2*time.Hour, zerolog.Nop())
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, now.Add(-2*time.Hour), completer.cutoff)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	mr, locker := newLocker(t)
	require.NoError(t, mr.Set("lock:"+lockName, "other-replica"))
	completer := &countingCompleter{}

	n, err := NewSweeper(completer, locker, time.Hour, zerolog.Nop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, completer.calls)
}

func TestRunOnceCompletesElapsedAppointments(t *testing.T) {
	_, locker := newLocker(t)
	ctx := context.Background()
	ledger := appointment.NewMemoryLedger()
	day := schedule.Date{Year: 2024, Month: time.June, Day: 10}

	var ids []uuid.UUID
	for _, start := range []schedule.Clock{schedule.NewClock(9, 0), schedule.NewClock(15, 0)} {
		appt := appointment.Appointment{
			ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(),
			Date: day, StartTime: start, DurationMinutes: 30, Status: appointment.StatusScheduled,
		}
		_, err := ledger.ConditionalCreate(ctx, appt)
		require.NoError(t, err)
		ids = append(ids, appt.ID)
	}

	svc := appointment.NewService(ledger, schedule.NewMemoryStore(), nil,
		config.Config{ClinicLocation: time.UTC}, nil, zerolog.Nop())
	s := NewSweeper(svc, locker, time.Hour, zerolog.Nop())
	s.now = func() time.Time { return day.At(schedule.NewClock(12, 0), time.UTC) }

	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	first, err := ledger.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, first.Status)

	second, err := ledger.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, second.Status)
}

func TestRunRejectsBadSchedule(t *testing.T) {
	_, locker := newLocker(t)
	s := NewSweeper(&countingCompleter{}, locker, time.Hour, zerolog.Nop())

	err := s.Run(context.Background(), "not a cron spec")
	require.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	_, locker := newLocker(t)
	s := NewSweeper(&countingCompleter{}, locker, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "@every 1h") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
