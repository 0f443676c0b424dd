package billing

import (
	"context"

	"github.com/harms/harms/internal/platform/apperror"
)

var ErrNotFound = apperror.NotFound("billing not found")

type BillingRepository interface {
	Create(ctx context.Context, b *Billing) error
	GetByID(ctx context.Context, id int64) (*Billing, error)
	// GetForUpdate locks the row for the rest of the unit of work.
	GetForUpdate(ctx context.Context, id int64) (*Billing, error)
	GetByAppointment(ctx context.Context, appointmentID int64) (*Billing, error)
	Update(ctx context.Context, b *Billing) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Billing, int, error)
}
