package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/schedule"
)

func TestMemoryLedgerKeyFreedOnCancel(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	first := sampleAppointment()
	_, err := l.ConditionalCreate(ctx, first)
	require.NoError(t, err)

	second := first
	second.ID = uuid.New()
	_, err = l.ConditionalCreate(ctx, second)
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = l.UpdateStatus(ctx, first.ID, StatusScheduled, StatusCancelled)
	require.NoError(t, err)

	_, err = l.ConditionalCreate(ctx, second)
	require.NoError(t, err)

	_, err = l.UpdateStatus(ctx, first.ID, StatusScheduled, StatusCompleted)
	require.ErrorIs(t, err, ErrStaleState)

	_, err = l.UpdateStatus(ctx, uuid.New(), StatusScheduled, StatusCompleted)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestMemoryLedgerReturnsCopies(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	appt := sampleAppointment()
	created, err := l.ConditionalCreate(ctx, appt)
	require.NoError(t, err)
	created.Status = StatusCompleted

	got, err := l.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)
}

func TestMemoryLedgerListScheduledThrough(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	day := schedule.Date{Year: 2024, Month: time.June, Day: 10}
	for i, d := range []schedule.Date{day.AddDays(-1), day, day.AddDays(1)} {
		a := sampleAppointment()
		a.Date = d
		a.StartTime = schedule.NewClock(9+i, 0)
		_, err := l.ConditionalCreate(ctx, a)
		require.NoError(t, err)
	}

	got, err := l.ListScheduledThrough(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Date.Before(got[1].Date))
}
