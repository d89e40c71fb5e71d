package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/schedule"
)

// 2024-06-10 is a Monday.
var (
	monday  = schedule.Date{Year: 2024, Month: time.June, Day: 10}
	sunday  = schedule.Date{Year: 2024, Month: time.June, Day: 9}
	nineAM  = schedule.NewClock(9, 0)
	fixedAt = time.Date(2024, time.June, 9, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc       *Service
	ledger    *MemoryLedger
	templates *schedule.MemoryStore
	doctor    uuid.UUID
	patient   uuid.UUID
}

func newFixture(t *testing.T, ledger Ledger) *fixture {
	t.Helper()

	mem := NewMemoryLedger()
	if ledger == nil {
		ledger = mem
	}

	f := &fixture{
		ledger:    mem,
		templates: schedule.NewMemoryStore(),
		doctor:    uuid.New(),
		patient:   uuid.New(),
	}
	require.NoError(t, f.templates.Put(context.Background(), schedule.DefaultTemplate(f.doctor)))

	cfg := config.Config{ClinicLocation: time.UTC, LedgerTimeout: time.Second}
	f.svc = NewService(ledger, f.templates, nil, cfg, nil, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedAt }
	return f
}

func (f *fixture) request(patient uuid.UUID) BookingRequest {
	return BookingRequest{
		DoctorID:  f.doctor,
		PatientID: patient,
		Date:      monday,
		StartTime: nineAM,
		Reason:    "checkup",
	}
}

func TestBookThenConflictThenFreeSlotsExcludesTime(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.patient))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 30, appt.DurationMinutes)

	_, err = f.svc.Book(ctx, f.request(uuid.New()))
	require.ErrorIs(t, err, ErrConflict)

	free, err := f.svc.FreeSlots(ctx, f.doctor, monday)
	require.NoError(t, err)
	assert.Len(t, free, 15)
	assert.NotContains(t, free, nineAM)
	assert.Equal(t, schedule.NewClock(9, 30), free[0])

	events := f.ledger.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
}

func TestConcurrentBookingsCommitExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		conflicts int
	)
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Book(ctx, f.request(uuid.New()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, committed)
	assert.Equal(t, callers-1, conflicts)

	booked, err := f.ledger.QueryByDoctorAndDate(ctx, f.doctor, monday, StatusScheduled)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*BookingRequest)
	}{
		{"same day", func(r *BookingRequest) { r.Date = sunday }},
		{"past day", func(r *BookingRequest) { r.Date = sunday.AddDays(-3) }},
		{"missing patient", func(r *BookingRequest) { r.PatientID = uuid.Nil }},
		{"missing doctor", func(r *BookingRequest) { r.DoctorID = uuid.Nil }},
		{"off grid", func(r *BookingRequest) { r.StartTime = schedule.NewClock(9, 15) }},
		{"after closing", func(r *BookingRequest) { r.StartTime = schedule.NewClock(17, 0) }},
		{"closed day", func(r *BookingRequest) { r.Date = monday.AddDays(5) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request(f.patient)
			tc.mutate(&req)
			_, err := f.svc.Book(ctx, req)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBookUnknownDoctor(t *testing.T) {
	f := newFixture(t, nil)

	req := f.request(f.patient)
	req.DoctorID = uuid.New()
	_, err := f.svc.Book(context.Background(), req)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.FreeSlots(context.Background(), req.DoctorID, monday)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFreeSlotsClosedDayIsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	free, err := f.svc.FreeSlots(context.Background(), f.doctor, monday.AddDays(5))
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestCancelPermissionsAndTerminalState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.patient))
	require.NoError(t, err)

	stranger := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	_, err = f.svc.Cancel(ctx, appt.ID, stranger)
	require.ErrorIs(t, err, ErrForbidden)

	cancelled, err := f.svc.Cancel(ctx, appt.ID, auth.Actor{ID: f.patient, Role: auth.RolePatient})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, appt.ID, auth.Actor{ID: f.doctor, Role: auth.RoleDoctor})
	require.ErrorIs(t, err, ErrAlreadyTerminal)
	require.ErrorIs(t, err, ErrForbidden)

	// the slot is free again
	again, err := f.svc.Book(ctx, f.request(uuid.New()))
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestCancelUnknownAppointment(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Cancel(context.Background(), uuid.New(), auth.Actor{ID: f.patient, Role: auth.RolePatient})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestComplete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.patient))
	require.NoError(t, err)

	doctor := auth.Actor{ID: f.doctor, Role: auth.RoleDoctor}

	_, err = f.svc.Complete(ctx, appt.ID, auth.Actor{ID: f.patient, Role: auth.RolePatient})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Complete(ctx, appt.ID, doctor)
	require.ErrorIs(t, err, ErrValidation, "not started yet")

	f.svc.now = func() time.Time { return monday.At(nineAM.Add(10), time.UTC) }

	done, err := f.svc.Complete(ctx, appt.ID, doctor)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	_, err = f.svc.Complete(ctx, appt.ID, doctor)
	require.ErrorIs(t, err, ErrAlreadyTerminal)

	_, err = f.svc.Cancel(ctx, appt.ID, doctor)
	require.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestCompleteElapsed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	early, err := f.svc.Book(ctx, f.request(f.patient))
	require.NoError(t, err)

	late := f.request(f.patient)
	late.StartTime = schedule.NewClock(16, 30)
	lateAppt, err := f.svc.Book(ctx, late)
	require.NoError(t, err)

	cutoff := monday.At(schedule.NewClock(12, 0), time.UTC)
	n, err := f.svc.CompleteElapsed(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.ledger.Get(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = f.ledger.Get(ctx, lateAppt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	n, err = f.svc.CompleteElapsed(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.patient))
	require.NoError(t, err)

	for _, a := range []auth.Actor{
		{ID: f.patient, Role: auth.RolePatient},
		{ID: f.doctor, Role: auth.RoleDoctor},
		{ID: uuid.New(), Role: auth.RoleAdmin},
	} {
		_, err := f.svc.Get(ctx, appt.ID, a)
		assert.NoError(t, err, a.Role)
	}

	_, err = f.svc.Get(ctx, appt.ID, auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestListScopesByRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	other := uuid.New()
	_, err := f.svc.Book(ctx, f.request(f.patient))
	require.NoError(t, err)
	req := f.request(other)
	req.StartTime = schedule.NewClock(10, 0)
	_, err = f.svc.Book(ctx, req)
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, auth.Actor{ID: f.patient, Role: auth.RolePatient}, ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.patient, mine[0].PatientID)

	doctors, err := f.svc.List(ctx, auth.Actor{ID: f.doctor, Role: auth.RoleDoctor}, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, doctors, 2)

	paged, err := f.svc.List(ctx, auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin}, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, other, paged[0].PatientID)
}

type fixedUsers struct{ total, doctors int }

func (u fixedUsers) CountUsers(context.Context) (int, int, error) { return u.total, u.doctors, nil }

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.users = fixedUsers{total: 7, doctors: 2}
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.patient))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, appt.ID, auth.Actor{ID: f.patient, Role: auth.RolePatient})
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, f.request(f.patient))
	require.NoError(t, err)

	_, err = f.svc.Stats(ctx, auth.Actor{ID: f.patient, Role: auth.RolePatient})
	require.ErrorIs(t, err, ErrForbidden)

	st, err := f.svc.Stats(ctx, auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalUsers: 7, TotalDoctors: 2, TotalAppointments: 2, ScheduledAppointments: 1}, *st)
}

// flakyLedger fails the first n conditional creates. When land is set the
// failed write still reaches the wrapped ledger, like a lost acknowledgement.
type flakyLedger struct {
	*MemoryLedger
	failures int
	land     bool
	calls    int
}

func (l *flakyLedger) ConditionalCreate(ctx context.Context, appt Appointment) (*Appointment, error) {
	l.calls++
	if l.calls <= l.failures {
		if l.land {
			_, _ = l.MemoryLedger.ConditionalCreate(ctx, appt)
		}
		return nil, ErrUnavailable
	}
	return l.MemoryLedger.ConditionalCreate(ctx, appt)
}

func TestBookRetriesOnceAfterTransientFailure(t *testing.T) {
	flaky := &flakyLedger{MemoryLedger: NewMemoryLedger(), failures: 1}
	f := newFixture(t, flaky)

	appt, err := f.svc.Book(context.Background(), f.request(f.patient))
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.calls)
	assert.Equal(t, StatusScheduled, appt.Status)
}

func TestBookRecognisesOwnLandedWrite(t *testing.T) {
	flaky := &flakyLedger{MemoryLedger: NewMemoryLedger(), failures: 1, land: true}
	f := newFixture(t, flaky)
	f.svc.newID = func() uuid.UUID { return uuid.MustParse("6f1c9c39-8a55-4d4e-9a3b-2f7b1e0c5a11") }

	appt, err := f.svc.Book(context.Background(), f.request(f.patient))
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("6f1c9c39-8a55-4d4e-9a3b-2f7b1e0c5a11"), appt.ID)

	booked, err := flaky.QueryByDoctorAndDate(context.Background(), f.doctor, monday, StatusScheduled)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestBookRetryLosesToAnotherWriter(t *testing.T) {
	mem := NewMemoryLedger()
	flaky := &flakyLedger{MemoryLedger: mem, failures: 1}
	f := newFixture(t, flaky)

	// someone else takes the slot while our first attempt is in doubt
	holder := Appointment{
		ID: uuid.New(), DoctorID: f.doctor, PatientID: uuid.New(),
		Date: monday, StartTime: nineAM, DurationMinutes: 30, Status: StatusScheduled,
	}
	_, err := mem.ConditionalCreate(context.Background(), holder)
	require.NoError(t, err)
	flaky.calls = 0

	_, err = f.svc.Book(context.Background(), f.request(f.patient))
	require.ErrorIs(t, err, ErrConflict)
}

func TestBookTimesOutAfterSecondTransientFailure(t *testing.T) {
	flaky := &flakyLedger{MemoryLedger: NewMemoryLedger(), failures: 2}
	f := newFixture(t, flaky)

	_, err := f.svc.Book(context.Background(), f.request(f.patient))
	require.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, 2, flaky.calls)
}

// blockingLedger never answers a conditional create until ctx is done.
type blockingLedger struct {
	*MemoryLedger
}

func (l blockingLedger) ConditionalCreate(ctx context.Context, _ Appointment) (*Appointment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBookSurfacesLedgerDeadlineAsTimeout(t *testing.T) {
	f := newFixture(t, blockingLedger{MemoryLedger: NewMemoryLedger()})
	f.svc.cfg.LedgerTimeout = 10 * time.Millisecond

	_, err := f.svc.Book(context.Background(), f.request(f.patient))
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestBookCallerCancelled(t *testing.T) {
	f := newFixture(t, blockingLedger{MemoryLedger: NewMemoryLedger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Book(ctx, f.request(f.patient))
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, context.Canceled)
}

// blockingTemplates stalls every template read until ctx is done.
type blockingTemplates struct {
	*schedule.MemoryStore
}

func (s blockingTemplates) Get(ctx context.Context, _ uuid.UUID) (*schedule.Template, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTemplateReadIsBoundedByLedgerTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.templates = blockingTemplates{MemoryStore: f.templates}
	f.svc.cfg.LedgerTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := f.svc.Book(ctx, f.request(f.patient))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	_, err = f.svc.FreeSlots(ctx, f.doctor, monday)
	require.ErrorIs(t, err, ErrTimeout)
	require.NoError(t, ctx.Err())
}

func TestFreeSlotsIsStableWithoutWrites(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := f.request(f.patient)
	req.StartTime = schedule.NewClock(11, 0)
	_, err := f.svc.Book(ctx, req)
	require.NoError(t, err)

	first, err := f.svc.FreeSlots(ctx, f.doctor, monday)
	require.NoError(t, err)
	second, err := f.svc.FreeSlots(ctx, f.doctor, monday)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotContains(t, first, schedule.NewClock(11, 0))
}

func TestBookCountsReasonInCharacters(t *testing.T) {
	f := newFixture(t, nil)

	req := f.request(f.patient)
	req.Reason = strings.Repeat("é", maxReasonLength)
	_, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)

	req = f.request(uuid.New())
	req.StartTime = schedule.NewClock(9, 30)
	req.Reason = strings.Repeat("é", maxReasonLength+1)
	_, err = f.svc.Book(context.Background(), req)
	require.ErrorIs(t, err, ErrValidation)
}
