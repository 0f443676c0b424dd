package scheduling

import (
	"context"

	"github.com/harms/harms/internal/platform/apperror"
)

var ErrNotFound = apperror.NotFound("appointment not found")

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	// GetForUpdate locks the row for the rest of the unit of work.
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	UpdateStatus(ctx context.Context, a *Appointment) error
	// List orders newest first and returns the unpaged total.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// Find orders by date and time ascending. limit <= 0 means no limit.
	Find(ctx context.Context, f Filter, limit int) ([]*Appointment, error)
	CountByStatus(ctx context.Context, f Filter) (map[Status]int, error)
}
