package profile

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/auth"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is the clinic-side record of an externally authenticated user.
// ID is the identity provider's subject.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Phone     string    `json:"phone,omitempty"`
	Specialty string    `json:"specialty,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DoctorSearch filters doctor listings. Empty fields match everything.
type DoctorSearch struct {
	Specialty string
	Name      string
	Limit     int
}
