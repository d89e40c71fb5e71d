package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAlreadyExists       = errors.New("a scheduled appointment already holds this slot")
	ErrStaleState          = errors.New("appointment status changed concurrently")
	// ErrUnavailable marks failures where retrying the same conditional
	// write is safe: timeouts, dropped connections, serialization aborts.
	ErrUnavailable = errors.New("booking ledger unavailable")
)

// Ledger is the single writer of appointment truth.
type Ledger interface {
	QueryByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date schedule.Date, status Status) ([]Appointment, error)

	// ConditionalCreate inserts appt unless a scheduled appointment already
	// holds its natural key, in which case it returns ErrAlreadyExists.
	// The check and the insert are one atomic step.
	ConditionalCreate(ctx context.Context, appt Appointment) (*Appointment, error)

	// UpdateStatus moves id from one status to another, or returns
	// ErrStaleState when the stored status is not from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, q Query) ([]Appointment, error)
	// ListScheduledThrough returns scheduled appointments dated on or before through.
	ListScheduledThrough(ctx context.Context, through schedule.Date) ([]Appointment, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
