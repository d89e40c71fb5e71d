package schedule

import (
	"context"

	"github.com/google/uuid"
)

// Store persists one template per doctor. Put overwrites wholesale.
type Store interface {
	Get(ctx context.Context, doctorID uuid.UUID) (*Template, error)
	Put(ctx context.Context, t Template) error
}
