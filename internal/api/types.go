package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/profile"
	"github.com/hackgods/clinic-booking/internal/schedule"
)

type BookAppointmentRequest struct {
	DoctorID string `json:"doctorId" validate:"required,uuid"`
	// PatientID is only honoured for admins booking on a patient's behalf.
	PatientID string `json:"patientId" validate:"omitempty,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	Reason    string `json:"reason" validate:"max=500"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type ScheduleTemplateRequest struct {
	WeeklyRules         schedule.WeeklyRules `json:"weeklyRules"`
	SlotDurationMinutes int                  `json:"slotDurationMinutes" validate:"required,gt=0,lte=240"`
}

type EnsureProfileRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type AppointmentResponse struct {
	ID              uuid.UUID          `json:"id"`
	DoctorID        uuid.UUID          `json:"doctorId"`
	PatientID       uuid.UUID          `json:"patientId"`
	Date            schedule.Date      `json:"date"`
	StartTime       schedule.Clock     `json:"startTime"`
	DurationMinutes int                `json:"durationMinutes"`
	Status          appointment.Status `json:"status"`
	Reason          string             `json:"reason,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		Date:            a.Date,
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		Status:          a.Status,
		Reason:          a.Reason,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID        `json:"doctorId"`
	Date     schedule.Date    `json:"date"`
	Slots    []schedule.Clock `json:"slots"`
}

type ScheduleResponse struct {
	schedule.Template
	// IsDefault marks a template that has not been saved yet.
	IsDefault bool `json:"isDefault"`
}

type ProfileResponse struct {
	Profile *profile.Profile `json:"profile"`
	Created bool             `json:"created,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
