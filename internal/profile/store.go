package profile

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/auth"
)

type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
	// Create inserts p unless a profile with the same id exists. It reports
	// whether a row was written.
	Create(ctx context.Context, p Profile) (bool, error)
	SearchDoctors(ctx context.Context, q DoctorSearch) ([]Profile, error)
	CountByRole(ctx context.Context) (map[auth.Role]int, error)
}
