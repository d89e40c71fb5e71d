package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/schedule"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// NaturalKey identifies a booked slot. At most one scheduled appointment
// may hold a given key.
type NaturalKey struct {
	DoctorID  uuid.UUID
	Date      schedule.Date
	StartTime schedule.Clock
}

type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            schedule.Date
	StartTime       schedule.Clock
	DurationMinutes int
	Status          Status
	Reason          string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Key() NaturalKey {
	return NaturalKey{DoctorID: a.DoctorID, Date: a.Date, StartTime: a.StartTime}
}

func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.StartTime, loc)
}

func (a Appointment) EndsAt(loc *time.Location) time.Time {
	return a.StartsAt(loc).Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// BookingRequest is the caller's intent to take one slot.
type BookingRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      schedule.Date
	StartTime schedule.Clock
	Reason    string
	Notes     string
}

// Query filters ledger listings. Nil ids and an empty status match everything.
type Query struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Status    Status
	Limit     int
	Offset    int
}

type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

type Stats struct {
	TotalUsers            int `json:"totalUsers"`
	TotalDoctors          int `json:"totalDoctors"`
	TotalAppointments     int `json:"totalAppointments"`
	ScheduledAppointments int `json:"scheduledAppointments"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
