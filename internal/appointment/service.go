package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/schedule"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxReasonLength  = 500
	maxNotesLength   = 2000
)

// UserCounter supplies the profile side of admin statistics.
type UserCounter interface {
	CountUsers(ctx context.Context) (total, doctors int, err error)
}

type Service struct {
	ledger    Ledger
	templates schedule.Store
	users     UserCounter
	cfg       config.Config
	metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

func NewService(ledger Ledger, templates schedule.Store, users UserCounter, cfg config.Config, metrics *Metrics, logger zerolog.Logger) *Service {
	if cfg.ClinicLocation == nil {
		cfg.ClinicLocation = time.UTC
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 3 * time.Second
	}
	return &Service{
		ledger:    ledger,
		templates: templates,
		users:     users,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.New,
	}
}

func (s *Service) loc() *time.Location { return s.cfg.ClinicLocation }

func (s *Service) today() schedule.Date {
	return schedule.DateOf(s.now().In(s.loc()))
}

// ledgerCall bounds one storage round trip and records its latency.
func (s *Service) ledgerCall(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	s.metrics.ObserveLedger(call, time.Since(start).Seconds())

	if err != nil && callCtx.Err() != nil && !errors.Is(err, ErrUnavailable) {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (s *Service) template(ctx context.Context, doctorID uuid.UUID) (*schedule.Template, error) {
	var tmpl *schedule.Template
	err := s.ledgerCall(ctx, "get_template", func(ctx context.Context) error {
		var err error
		tmpl, err = s.templates.Get(ctx, doctorID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrTemplateNotFound):
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		case errors.Is(err, ErrUnavailable):
			return nil, fmt.Errorf("%w: load schedule template: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("load schedule template: %w", err)
	}
	return tmpl, nil
}

// FreeSlots lists the start times on date that no scheduled appointment
// holds. The answer is advisory: Book re-checks at commit time.
func (s *Service) FreeSlots(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]schedule.Clock, error) {
	tmpl, err := s.template(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	candidates := schedule.GenerateSlots(*tmpl, date)
	if len(candidates) == 0 {
		return candidates, nil
	}

	var booked []Appointment
	err = s.ledgerCall(ctx, "query_day", func(ctx context.Context) error {
		var err error
		booked, err = s.ledger.QueryByDoctorAndDate(ctx, doctorID, date, StatusScheduled)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("read booked slots: %w", err)
	}

	taken := make(map[schedule.Clock]struct{}, len(booked))
	for _, a := range booked {
		taken[a.StartTime] = struct{}{}
	}

	free := make([]schedule.Clock, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[c]; !ok {
			free = append(free, c)
		}
	}
	return free, nil
}

func (s *Service) validateRequest(req BookingRequest) error {
	switch {
	case req.DoctorID == uuid.Nil:
		return fmt.Errorf("%w: doctor id is required", ErrValidation)
	case req.PatientID == uuid.Nil:
		return fmt.Errorf("%w: patient id is required", ErrValidation)
	case req.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrValidation)
	case !req.StartTime.Valid():
		return fmt.Errorf("%w: start time is out of range", ErrValidation)
	case utf8.RuneCountInString(req.Reason) > maxReasonLength:
		return fmt.Errorf("%w: reason is longer than %d characters", ErrValidation, maxReasonLength)
	case utf8.RuneCountInString(req.Notes) > maxNotesLength:
		return fmt.Errorf("%w: notes are longer than %d characters", ErrValidation, maxNotesLength)
	}

	if today := s.today(); !req.Date.After(today) {
		return fmt.Errorf("%w: appointments can only be booked from %s onwards", ErrValidation, today.AddDays(1))
	}
	return nil
}

// Book turns a booking request into a scheduled appointment, or rejects it.
// Two concurrent requests for the same doctor, date and start time yield
// exactly one appointment and one ErrConflict.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	appt, err := s.book(ctx, req)
	s.metrics.ObserveOperation("book", err)
	return appt, err
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	tmpl, err := s.template(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !schedule.IsSlot(*tmpl, req.Date, req.StartTime) {
		return nil, fmt.Errorf("%w: %s on %s is not one of the doctor's slots", ErrValidation, req.StartTime, req.Date)
	}

	now := s.now().UTC()
	appt := Appointment{
		ID:              s.newID(),
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: tmpl.SlotDurationMinutes,
		Status:          StatusScheduled,
		Reason:          req.Reason,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.commit(ctx, appt)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("date", created.Date.String()).
		Str("start_time", created.StartTime.String()).
		Msg("appointment booked")

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       created.Date.String(),
		"start_time": created.StartTime.String(),
	})

	return created, nil
}

// commit runs the conditional create, retrying once on a transient failure.
// The retry reuses appt.ID, so a first attempt that did land is recognised
// instead of being reported as a conflict.
func (s *Service) commit(ctx context.Context, appt Appointment) (*Appointment, error) {
	var lastErr error

	for attempt := 1; attempt <= 2; attempt++ {
		var created *Appointment
		err := s.ledgerCall(ctx, "conditional_create", func(ctx context.Context) error {
			var err error
			created, err = s.ledger.ConditionalCreate(ctx, appt)
			return err
		})

		switch {
		case err == nil:
			return created, nil
		case errors.Is(err, ErrAlreadyExists):
			if attempt == 1 {
				return nil, fmt.Errorf("%w: %s on %s", ErrConflict, appt.StartTime, appt.Date)
			}
			return s.resolveRetriedCreate(ctx, appt)
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		case errors.Is(err, ErrUnavailable):
			lastErr = err
			if attempt == 1 {
				s.metrics.ObserveRetry()
				s.logger.Warn().Err(err).
					Str("appointment_id", appt.ID.String()).
					Msg("conditional create failed transiently, retrying once")
			}
		default:
			return nil, fmt.Errorf("create appointment: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrTimeout, lastErr)
}

// resolveRetriedCreate decides whether the key holder is our own first write.
func (s *Service) resolveRetriedCreate(ctx context.Context, appt Appointment) (*Appointment, error) {
	var holders []Appointment
	err := s.ledgerCall(ctx, "query_day", func(ctx context.Context) error {
		var err error
		holders, err = s.ledger.QueryByDoctorAndDate(ctx, appt.DoctorID, appt.Date, StatusScheduled)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: booking outcome unknown: %w", ErrTimeout, err)
	}

	for i := range holders {
		if holders[i].StartTime != appt.StartTime {
			continue
		}
		if holders[i].ID == appt.ID {
			return &holders[i], nil
		}
		break
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrConflict, appt.StartTime, appt.Date)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var appt *Appointment
	err := s.ledgerCall(ctx, "get", func(ctx context.Context) error {
		var err error
		appt, err = s.ledger.Get(ctx, id)
		return err
	})
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, ErrUnavailable):
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	case err != nil:
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	var updated *Appointment
	err := s.ledgerCall(ctx, "update_status", func(ctx context.Context) error {
		var err error
		updated, err = s.ledger.UpdateStatus(ctx, id, StatusScheduled, to)
		return err
	})
	switch {
	case errors.Is(err, ErrStaleState):
		return nil, ErrAlreadyTerminal
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, ErrUnavailable):
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	case err != nil:
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return updated, nil
}

// Cancel is allowed for the appointment's patient and its doctor while the
// appointment is still scheduled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Appointment, error) {
	appt, err := s.cancel(ctx, id, actor)
	s.metrics.ObserveOperation("cancel", err)
	return appt, err
}

func (s *Service) cancel(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsPatient(appt.PatientID) && !actor.IsDoctor(appt.DoctorID) {
		return nil, fmt.Errorf("%w: only the patient or the doctor may cancel", ErrForbidden)
	}
	if appt.Status != StatusScheduled {
		return nil, ErrAlreadyTerminal
	}

	updated, err := s.transition(ctx, id, StatusCancelled)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
	})
	return updated, nil
}

// Complete is allowed for the assigned doctor once the appointment started.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Appointment, error) {
	appt, err := s.complete(ctx, id, actor)
	s.metrics.ObserveOperation("complete", err)
	return appt, err
}

func (s *Service) complete(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsDoctor(appt.DoctorID) {
		return nil, fmt.Errorf("%w: only the assigned doctor may complete", ErrForbidden)
	}
	if appt.Status != StatusScheduled {
		return nil, ErrAlreadyTerminal
	}
	if appt.StartsAt(s.loc()).After(s.now()) {
		return nil, fmt.Errorf("%w: appointment has not started yet", ErrValidation)
	}

	updated, err := s.transition(ctx, id, StatusCompleted)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{
		"actor_id": actor.ID.String(),
	})
	return updated, nil
}

// CompleteElapsed completes every scheduled appointment that ended before
// cutoff. It is the administrative path used by the completion worker.
func (s *Service) CompleteElapsed(ctx context.Context, cutoff time.Time) (int, error) {
	candidates, err := s.ledger.ListScheduledThrough(ctx, schedule.DateOf(cutoff.In(s.loc())))
	if err != nil {
		return 0, fmt.Errorf("find elapsed appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		if appt.EndsAt(s.loc()).After(cutoff) {
			continue
		}
		_, err := s.ledger.UpdateStatus(ctx, appt.ID, StatusScheduled, StatusCompleted)
		if errors.Is(err, ErrStaleState) || errors.Is(err, ErrAppointmentNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to complete elapsed appointment")
			continue
		}
		completed++
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"reason": "elapsed",
		})
	}

	return completed, nil
}

// Get returns an appointment to its patient, its doctor or an admin.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.IsPatient(appt.PatientID) && !actor.IsDoctor(appt.DoctorID) {
		return nil, fmt.Errorf("%w: appointment belongs to someone else", ErrForbidden)
	}
	return appt, nil
}

// List returns the actor's appointments: a doctor's bookings, a patient's
// own, or everything for admins.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := Query{Status: f.Status, Limit: f.Limit, Offset: f.Offset}
	switch actor.Role {
	case auth.RoleDoctor:
		q.DoctorID = actor.ID
	case auth.RolePatient:
		q.PatientID = actor.ID
	case auth.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role", ErrForbidden)
	}

	list, err := s.ledger.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

func (s *Service) Stats(ctx context.Context, actor auth.Actor) (*Stats, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", ErrForbidden)
	}

	counts, err := s.ledger.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}

	var st Stats
	for status, n := range counts {
		st.TotalAppointments += n
		if status == StatusScheduled {
			st.ScheduledAppointments = n
		}
	}

	if s.users != nil {
		st.TotalUsers, st.TotalDoctors, err = s.users.CountUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("count users: %w", err)
		}
	}
	return &st, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.ledger.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
