package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/auth"
)

type Service struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// Template returns the stored template for doctorID.
func (s *Service) Template(ctx context.Context, doctorID uuid.UUID) (*Template, error) {
	return s.store.Get(ctx, doctorID)
}

// SetTemplate overwrites the template of the acting doctor.
func (s *Service) SetTemplate(ctx context.Context, actor auth.Actor, t Template) (*Template, error) {
	if !actor.IsDoctor(t.DoctorID) {
		return nil, ErrNotTemplateOwner
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	t.UpdatedAt = s.now().UTC()
	if err := s.store.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}

	s.logger.Info().
		Str("doctor_id", t.DoctorID.String()).
		Int("slot_duration_minutes", t.SlotDurationMinutes).
		Msg("schedule template updated")

	return &t, nil
}
