package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/auth"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Get never creates anything; a missing profile is ErrProfileNotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// EnsureProfile returns the actor's profile, creating a bare one with the
// actor's role on first sign-in. created reports whether this call wrote it.
func (s *Service) EnsureProfile(ctx context.Context, actor auth.Actor, email string) (p *Profile, created bool, err error) {
	if actor.ID == uuid.Nil {
		return nil, false, errors.New("ensure profile: actor id is required")
	}

	p, err = s.store.Get(ctx, actor.ID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, false, fmt.Errorf("get profile: %w", err)
	}

	now := s.now().UTC()
	fresh := Profile{
		ID:        actor.ID,
		Email:     strings.TrimSpace(email),
		Role:      actor.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err = s.store.Create(ctx, fresh)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info().
			Str("profile_id", actor.ID.String()).
			Str("role", string(actor.Role)).
			Msg("profile created")
		return &fresh, true, nil
	}

	// a concurrent sign-in won the insert
	p, err = s.store.Get(ctx, actor.ID)
	if err != nil {
		return nil, false, fmt.Errorf("get profile: %w", err)
	}
	return p, false, nil
}

func (s *Service) SearchDoctors(ctx context.Context, q DoctorSearch) ([]Profile, error) {
	q.Specialty = strings.TrimSpace(q.Specialty)
	q.Name = strings.TrimSpace(q.Name)
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	if q.Limit > maxSearchLimit {
		q.Limit = maxSearchLimit
	}

	doctors, err := s.store.SearchDoctors(ctx, q)
	if err != nil {
		return nil, err
	}
	if doctors == nil {
		doctors = []Profile{}
	}
	return doctors, nil
}

// CountUsers feeds the admin statistics.
func (s *Service) CountUsers(ctx context.Context) (total, doctors int, err error) {
	counts, err := s.store.CountByRole(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, n := range counts {
		total += n
	}
	return total, counts[auth.RoleDoctor], nil
}
